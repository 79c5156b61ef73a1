//go:build !unix

package swevid

import "os"

// mapping is a read-only view of one file. Without mmap the file is read
// into memory once.
type mapping struct {
	data []byte
}

func mapFile(path string) (*mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &mapping{data: data}, nil
}

func (m *mapping) release() error {
	m.data = nil
	return nil
}
