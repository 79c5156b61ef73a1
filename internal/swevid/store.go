// ============================================================================
// Parabola swevid Store - Auxiliary Ephemeris Data
// ============================================================================
//
// Package: internal/swevid
// File: store.go
// Purpose: Byte-range access to precomputed ephemeris tables packed in
//          .swevid files.
//
// The routine never opens files itself; it asks the store for a region of a
// named file. Files are mapped read-only once at startup and shared by every
// worker, so ReadRegion only copies out of the mapping and is safe for
// concurrent use.
//
// Failure codes (kept from the original loader):
//   -1  nothing loaded, or the name is not a .swevid file
//   -2  the requested range runs past the end of the file
//
// ============================================================================

package swevid

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Extension is the only file suffix the store serves.
const Extension = ".swevid"

var (
	// ErrNotLoaded means no file has been loaded into the store.
	ErrNotLoaded = errors.New("swevid: no data loaded")
	// ErrBadExtension means the requested name is not a .swevid file.
	ErrBadExtension = errors.New("swevid: not a .swevid file")
	// ErrUnknownFile means the file was never loaded.
	ErrUnknownFile = errors.New("swevid: file not loaded")
	// ErrOutOfBounds means offset+length exceeds the file size.
	ErrOutOfBounds = errors.New("swevid: region out of bounds")
	// ErrClosed means the store has been closed.
	ErrClosed = errors.New("swevid: store closed")
)

// RegionReader is the read interface the routine uses to fetch tables.
type RegionReader interface {
	ReadRegion(name string, offset, length int) ([]byte, error)
}

// Store holds mapped .swevid files keyed by base name.
type Store struct {
	mu     sync.RWMutex
	files  map[string]*mapping
	closed bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{files: make(map[string]*mapping)}
}

// Load maps path into the store. Loading the same base name twice replaces
// the earlier mapping.
func (s *Store) Load(path string) error {
	if !strings.HasSuffix(path, Extension) {
		return fmt.Errorf("%w: %s", ErrBadExtension, path)
	}

	m, err := mapFile(path)
	if err != nil {
		return fmt.Errorf("failed to map %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		m.release()
		return ErrClosed
	}
	name := filepath.Base(path)
	if old, ok := s.files[name]; ok {
		old.release()
	}
	s.files[name] = m
	return nil
}

// ReadRegion copies length bytes at offset out of the named file.
func (s *Store) ReadRegion(name string, offset, length int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if len(s.files) == 0 {
		return nil, ErrNotLoaded
	}
	if !strings.HasSuffix(name, Extension) {
		return nil, fmt.Errorf("%w: %s", ErrBadExtension, name)
	}
	m, ok := s.files[filepath.Base(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, name)
	}
	if offset < 0 || length < 0 || offset > len(m.data) || length > len(m.data)-offset {
		return nil, fmt.Errorf("%w: %s [%d,+%d) size %d", ErrOutOfBounds, name, offset, length, len(m.data))
	}

	out := make([]byte, length)
	copy(out, m.data[offset:offset+length])
	return out, nil
}

// Files lists the loaded base names.
func (s *Store) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	return names
}

// Close unmaps every file. Further reads fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for name, m := range s.files {
		if err := m.release(); err != nil {
			errs = append(errs, fmt.Errorf("failed to unmap %s: %w", name, err))
		}
	}
	s.files = nil
	return errors.Join(errs...)
}

// Code maps a store error onto the loader's legacy failure codes.
func Code(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrOutOfBounds):
		return -2
	default:
		return -1
	}
}
