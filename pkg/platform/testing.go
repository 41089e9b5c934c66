package platform

import (
	"os"
	"sync"
)

// MockPlatform delegates to the real filesystem but records calls and can be
// told to fail individual operations.
type MockPlatform struct {
	*BasePlatform

	mu sync.Mutex

	// Mock behavior flags
	ShouldFailMkdir    bool
	ShouldFailOpenFile bool
	ShouldFailOpen     bool
	ShouldFailReadDir  bool
	HomeDir            string

	// Call tracking
	MkdirCalls    []string
	OpenFileCalls []OpenFileCall
	OpenCalls     []string
	ReadDirCalls  []string
}

type OpenFileCall struct {
	Name string
	Flag int
	Perm os.FileMode
}

// NewMockPlatform creates a new mock platform for testing
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		BasePlatform: NewBasePlatform(),
	}
}

func (mp *MockPlatform) MkdirAll(dir string, perm os.FileMode) error {
	mp.mu.Lock()
	mp.MkdirCalls = append(mp.MkdirCalls, dir)
	fail := mp.ShouldFailMkdir
	mp.mu.Unlock()

	if fail {
		return NewPlatformError("mkdir", dir, os.ErrPermission)
	}
	return mp.BasePlatform.MkdirAll(dir, perm)
}

func (mp *MockPlatform) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	mp.mu.Lock()
	mp.OpenFileCalls = append(mp.OpenFileCalls, OpenFileCall{Name: name, Flag: flag, Perm: perm})
	fail := mp.ShouldFailOpenFile
	mp.mu.Unlock()

	if fail {
		return nil, NewPlatformError("openfile", name, os.ErrPermission)
	}
	return mp.BasePlatform.OpenFile(name, flag, perm)
}

func (mp *MockPlatform) Open(name string) (*os.File, error) {
	mp.mu.Lock()
	mp.OpenCalls = append(mp.OpenCalls, name)
	fail := mp.ShouldFailOpen
	mp.mu.Unlock()

	if fail {
		return nil, NewPlatformError("open", name, os.ErrPermission)
	}
	return mp.BasePlatform.Open(name)
}

func (mp *MockPlatform) ReadDir(dir string) ([]os.DirEntry, error) {
	mp.mu.Lock()
	mp.ReadDirCalls = append(mp.ReadDirCalls, dir)
	fail := mp.ShouldFailReadDir
	mp.mu.Unlock()

	if fail {
		return nil, NewPlatformError("readdir", dir, os.ErrPermission)
	}
	return mp.BasePlatform.ReadDir(dir)
}

func (mp *MockPlatform) UserHomeDir() (string, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.HomeDir != "" {
		return mp.HomeDir, nil
	}
	return "", NewPlatformError("userhomedir", "", os.ErrNotExist)
}

func (mp *MockPlatform) GetInfo() *Info {
	return &Info{
		OS:           "mock",
		Architecture: "mock",
	}
}

// Reset clears all call tracking
func (mp *MockPlatform) Reset() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.MkdirCalls = nil
	mp.OpenFileCalls = nil
	mp.OpenCalls = nil
	mp.ReadDirCalls = nil
	mp.ShouldFailMkdir = false
	mp.ShouldFailOpenFile = false
	mp.ShouldFailOpen = false
	mp.ShouldFailReadDir = false
}

var _ Platform = (*MockPlatform)(nil)
