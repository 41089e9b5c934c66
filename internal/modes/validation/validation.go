package validation

import (
	"fmt"
	"os"
	"path/filepath"

	"filetransfer/pkg/logger"
	"filetransfer/pkg/platform"
)

// probeName is created and removed in the storage directory at startup.
const probeName = ".filetransfer-write-check"

// PlatformValidator checks that the host can run the transfer server.
type PlatformValidator struct {
	platform platform.Platform
	logger   *logger.Logger
}

func NewPlatformValidator(p platform.Platform, log *logger.Logger) *PlatformValidator {
	return &PlatformValidator{
		platform: p,
		logger:   log.WithField("component", "validation"),
	}
}

// ValidateRequirements verifies that storageDir accepts new files. A
// requested zero-copy delivery on a platform without sendfile(2) is only
// reported, since delivery falls back to buffered copies.
func (pv *PlatformValidator) ValidateRequirements(storageDir string, zeroCopy bool) error {
	if err := pv.validateWritable(storageDir); err != nil {
		return err
	}

	info := pv.platform.GetInfo()
	if zeroCopy && !info.ZeroCopy {
		pv.logger.Warn("sendfile not available on this platform, downloads use buffered copies",
			"os", info.OS, "arch", info.Architecture)
	}

	pv.logger.Debug("platform requirements validated",
		"os", info.OS,
		"storage", storageDir,
		"zeroCopy", zeroCopy && info.ZeroCopy)
	return nil
}

func (pv *PlatformValidator) validateWritable(dir string) error {
	probe := filepath.Join(dir, probeName)
	f, err := pv.platform.OpenFile(probe, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("storage directory %s is not writable: %w", dir, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("storage directory %s is not writable: %w", dir, err)
	}
	if err := pv.platform.Remove(probe); err != nil && !pv.platform.IsNotExist(err) {
		pv.logger.Warn("failed to remove write probe", "path", probe, "error", err)
	}
	return nil
}
