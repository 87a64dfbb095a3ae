// Package dedupe tracks which files a scan session has already visited, so
// nested engine invocations do not scan the same file twice.
package dedupe

import (
	"bufio"
	"os"
	"sync"
)

// Store records visited scan keys. Implementations must be safe for
// concurrent use.
type Store interface {
	// Visit records the key and reports whether this call was the first
	// visit. A false return means the key was already recorded.
	Visit(key string) (bool, error)
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{seen: map[string]bool{}}
}

// Visit implements Store.
func (m *Memory) Visit(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

// File is a Store backed by an append-only file, shared between a parent
// process and its subprocesses. Keys are one per line.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a store backed by the file at path. The file is created on
// first visit.
func NewFile(path string) *File {
	return &File{path: path}
}

// Visit implements Store. The file is re-read on every call: another process
// sharing the same path may have appended keys since the last visit.
func (f *File) Visit(key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return false, err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		if scanner.Text() == key {
			return false, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}

	if _, err := fh.WriteString(key + "\n"); err != nil {
		return false, err
	}
	return true, nil
}
