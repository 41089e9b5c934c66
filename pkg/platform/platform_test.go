package platform

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockPlatformTracksAndDelegates(t *testing.T) {
	mp := NewMockPlatform()
	dir := filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, mp.MkdirAll(dir, 0755))
	f, err := mp.OpenFile(filepath.Join(dir, "x"), os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := mp.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Equal(t, []string{dir}, mp.MkdirCalls)
	require.Len(t, mp.OpenFileCalls, 1)
	assert.Equal(t, os.FileMode(0644), mp.OpenFileCalls[0].Perm)
	assert.Equal(t, []string{dir}, mp.ReadDirCalls)
}

func TestMockPlatformFailureInjection(t *testing.T) {
	mp := NewMockPlatform()
	mp.ShouldFailOpenFile = true
	mp.ShouldFailMkdir = true

	_, err := mp.OpenFile(filepath.Join(t.TempDir(), "x"), os.O_CREATE|os.O_WRONLY, 0644)
	assert.ErrorIs(t, err, os.ErrPermission)

	var perr *PlatformError
	require.True(t, errors.As(mp.MkdirAll(t.TempDir(), 0755), &perr))
	assert.Equal(t, "mkdir", perr.Operation)

	mp.Reset()
	assert.Empty(t, mp.OpenFileCalls)
	assert.False(t, mp.ShouldFailOpenFile)
}

func TestMockPlatformHomeDir(t *testing.T) {
	mp := NewMockPlatform()
	_, err := mp.UserHomeDir()
	assert.Error(t, err)

	mp.HomeDir = "/home/files"
	home, err := mp.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, "/home/files", home)
}

func TestNewPlatformBuildsIndependentInstances(t *testing.T) {
	a, b := NewPlatform(), NewPlatform()
	assert.NotSame(t, a, b)
	assert.NotEmpty(t, a.GetInfo().OS)
}

func TestBasePlatformWrapsErrors(t *testing.T) {
	bp := NewBasePlatform()
	missing := filepath.Join(t.TempDir(), "missing.txt")

	_, err := bp.Open(missing)
	require.Error(t, err)
	assert.True(t, bp.IsNotExist(err))
	assert.ErrorIs(t, err, os.ErrNotExist)

	var perr *PlatformError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "open", perr.Operation)
	assert.Equal(t, missing, perr.Path)
	assert.Equal(t, "open "+missing+": no such file or directory", err.Error())

	assert.NoError(t, bp.MkdirAll(t.TempDir(), 0755))
	assert.True(t, bp.IsNotExist(bp.Remove(missing)))
}

func TestBasePlatformSymlinks(t *testing.T) {
	bp := NewBasePlatform()
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))
	require.NoError(t, os.Symlink(target, link))

	info, err := bp.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)

	resolved, err := bp.EvalSymlinks(link)
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)
	assert.Equal(t, want, resolved)

	_, err = bp.EvalSymlinks(filepath.Join(dir, "nope"))
	assert.True(t, bp.IsNotExist(err))
}
