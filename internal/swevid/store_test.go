package swevid

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestReadRegion_NotLoaded(t *testing.T) {
	s := NewStore()
	_, err := s.ReadRegion("a.swevid", 0, 1)
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.Equal(t, -1, Code(err))
}

func TestLoadAndReadRegion(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "table.swevid", []byte("0123456789"))

	s := NewStore()
	defer s.Close()
	require.NoError(t, s.Load(path))
	assert.Equal(t, []string{"table.swevid"}, s.Files())

	got, err := s.ReadRegion("table.swevid", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("2345"), got)

	// Full-path names resolve by base name.
	got, err = s.ReadRegion(path, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), got)
}

func TestReadRegion_Errors(t *testing.T) {
	dir := t.TempDir()
	s := NewStore()
	defer s.Close()
	require.NoError(t, s.Load(writeFile(t, dir, "t.swevid", []byte("abc"))))

	_, err := s.ReadRegion("t.se1", 0, 1)
	assert.ErrorIs(t, err, ErrBadExtension)
	assert.Equal(t, -1, Code(err))

	_, err = s.ReadRegion("other.swevid", 0, 1)
	assert.ErrorIs(t, err, ErrUnknownFile)

	_, err = s.ReadRegion("t.swevid", 2, 2)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, -2, Code(err))

	// Lengths that would wrap offset+length stay out of bounds.
	_, err = s.ReadRegion("t.swevid", 1, math.MaxInt)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = s.ReadRegion("t.swevid", math.MaxInt, 1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestLoad_RejectsWrongExtension(t *testing.T) {
	dir := t.TempDir()
	s := NewStore()
	err := s.Load(writeFile(t, dir, "t.bin", []byte("x")))
	assert.ErrorIs(t, err, ErrBadExtension)
}

func TestLoad_MissingFile(t *testing.T) {
	s := NewStore()
	err := s.Load(filepath.Join(t.TempDir(), "missing.swevid"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to map")
}

func TestLoad_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	s := NewStore()
	defer s.Close()
	require.NoError(t, s.Load(writeFile(t, dir, "empty.swevid", nil)))

	_, err := s.ReadRegion("empty.swevid", 0, 1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestClose_Idempotent(t *testing.T) {
	dir := t.TempDir()
	s := NewStore()
	require.NoError(t, s.Load(writeFile(t, dir, "t.swevid", []byte("abc"))))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.ReadRegion("t.swevid", 0, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Load(filepath.Join(dir, "t.swevid")), ErrClosed)
}

func TestFindMinor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, MinorFile)
	records := []MinorElements{
		{Number: 4, A: 2.36, E: 0.089, I: 7.14, Node: 103.8, Peri: 253.6, L: 320.0},
		{Number: 1, A: 2.77, E: 0.076, I: 10.59, Node: 80.3, Peri: 153.5, L: 291.4},
		{Number: 2, A: 2.77, E: 0.230, I: 34.84, Node: 173.1, Peri: 123.3, L: 252.3},
	}
	require.NoError(t, WriteMinorFile(path, records))

	s := NewStore()
	defer s.Close()
	require.NoError(t, s.Load(path))

	for _, want := range records {
		got, err := FindMinor(s, want.Number)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := FindMinor(s, 3)
	assert.ErrorIs(t, err, ErrMinorNotFound)
}

func TestFindMinor_BadHeader(t *testing.T) {
	dir := t.TempDir()
	s := NewStore()
	defer s.Close()
	require.NoError(t, s.Load(writeFile(t, dir, MinorFile, []byte("NOTSWEVID000"))))

	_, err := FindMinor(s, 1)
	assert.ErrorIs(t, err, ErrBadHeader)
}
