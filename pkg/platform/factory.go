package platform

import "filetransfer/pkg/logger"

// NewPlatform builds the platform for the running OS. Callers construct one
// and hand it to the components that touch the filesystem.
func NewPlatform() Platform {
	p := NewBasePlatform()
	info := p.GetInfo()
	logger.WithField("component", "platform").Debug("platform initialized",
		"os", info.OS, "arch", info.Architecture, "zeroCopy", info.ZeroCopy)
	return p
}
