//go:build unix

package swevid

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapping is a read-only view of one file.
type mapping struct {
	data   []byte
	mapped bool
}

func mapFile(path string) (*mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	// mmap rejects zero-length mappings.
	if st.Size() == 0 {
		return &mapping{data: []byte{}}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &mapping{data: data, mapped: true}, nil
}

func (m *mapping) release() error {
	if !m.mapped {
		return nil
	}
	m.mapped = false
	data := m.data
	m.data = nil
	return unix.Munmap(data)
}
