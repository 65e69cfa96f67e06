package fs

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Fault defines specific failure behavior for matching files.
type Fault struct {
	FailAfterReads int   // Fail read calls after this many successful reads ON THIS FILE. -1 to disable.
	FailOnOpen     bool  // Fail OpenFile immediately.
	Transient      bool  // When true the fault clears itself after firing once.
	Err            error // Error to return; defaults to the FaultyFS error.
}

// FaultyFS is a FileSystem wrapper that can inject read-side errors.
// It is used to exercise the storage retry discipline without real disk faults.
type FaultyFS struct {
	FS FileSystem

	mu    sync.Mutex
	rules map[string]*faultState

	// Err is the default injected error when a rule has none.
	Err error
}

type faultState struct {
	fault Fault
	reads int
	fired bool
}

// NewFaultyFS creates a new FaultyFS wrapping the provided FS (or Default if nil).
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{
		FS:    fsys,
		rules: make(map[string]*faultState),
		Err:   fmt.Errorf("injected fault error"),
	}
}

// AddRule adds a fault injection rule for files whose name contains pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fault.Err == nil {
		fault.Err = f.Err
	}
	if fault.FailOnOpen && fault.FailAfterReads == 0 {
		fault.FailAfterReads = -1
	}
	f.rules[pattern] = &faultState{fault: fault}
}

func (f *FaultyFS) lookup(name string) *faultState {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pattern, st := range f.rules {
		if strings.Contains(name, pattern) {
			return st
		}
	}
	return nil
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	st := f.lookup(name)
	if st != nil {
		f.mu.Lock()
		failOpen := st.fault.FailOnOpen && !(st.fault.Transient && st.fired)
		if failOpen {
			st.fired = true
		}
		f.mu.Unlock()
		if failOpen {
			return nil, st.fault.Err
		}
	}

	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return file, nil
	}
	return &faultyFile{File: file, fs: f, st: st}, nil
}

func (f *FaultyFS) Remove(name string) error             { return f.FS.Remove(name) }
func (f *FaultyFS) Rename(oldpath, newpath string) error { return f.FS.Rename(oldpath, newpath) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) {
	return f.FS.Stat(name)
}
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

type faultyFile struct {
	File
	fs *FaultyFS
	st *faultState
}

func (f *faultyFile) shouldFail() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	st := f.st
	if st.fault.FailAfterReads < 0 {
		return nil
	}
	if st.fault.Transient && st.fired {
		return nil
	}
	if st.reads >= st.fault.FailAfterReads {
		st.fired = true
		return st.fault.Err
	}
	st.reads++
	return nil
}

func (f *faultyFile) Read(p []byte) (int, error) {
	if err := f.shouldFail(); err != nil {
		return 0, err
	}
	return f.File.Read(p)
}

func (f *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if err := f.shouldFail(); err != nil {
		return 0, err
	}
	return f.File.ReadAt(p, off)
}
