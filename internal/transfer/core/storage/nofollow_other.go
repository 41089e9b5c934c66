//go:build !unix

package storage

const openNoFollow = 0
