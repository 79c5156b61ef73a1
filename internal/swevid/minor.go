package swevid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
)

// Minor-body element table layout (little-endian):
//
//	header  "SWEVID01" | uint32 count
//	record  uint32 number | uint32 pad | a e i node peri L  (6 x float64)
//
// Records are sorted by number.
const (
	MinorFile       = "minor" + Extension
	minorMagic      = "SWEVID01"
	minorHeaderSize = 12
	minorRecordSize = 56
)

// ErrMinorNotFound means the body number has no record in the table.
var ErrMinorNotFound = errors.New("swevid: minor body not in table")

// ErrBadHeader means the table does not start with the expected magic.
var ErrBadHeader = errors.New("swevid: bad table header")

// MinorElements are J2000 osculating elements of a minor body.
// Angles in degrees, A in AU, L is mean longitude at epoch.
type MinorElements struct {
	Number int
	A      float64
	E      float64
	I      float64
	Node   float64
	Peri   float64 // longitude of perihelion
	L      float64
}

// FindMinor binary-searches the minor table behind r for number.
func FindMinor(r RegionReader, number int) (MinorElements, error) {
	hdr, err := r.ReadRegion(MinorFile, 0, minorHeaderSize)
	if err != nil {
		return MinorElements{}, err
	}
	if string(hdr[:8]) != minorMagic {
		return MinorElements{}, ErrBadHeader
	}
	count := int(binary.LittleEndian.Uint32(hdr[8:12]))

	lo, hi := 0, count-1
	for lo <= hi {
		mid := (lo + hi) / 2
		rec, err := r.ReadRegion(MinorFile, minorHeaderSize+mid*minorRecordSize, minorRecordSize)
		if err != nil {
			return MinorElements{}, err
		}
		n := int(binary.LittleEndian.Uint32(rec[0:4]))
		switch {
		case n == number:
			return decodeMinor(rec), nil
		case n < number:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return MinorElements{}, fmt.Errorf("%w: %d", ErrMinorNotFound, number)
}

func decodeMinor(rec []byte) MinorElements {
	f := func(i int) float64 {
		off := 8 + i*8
		return math.Float64frombits(binary.LittleEndian.Uint64(rec[off : off+8]))
	}
	return MinorElements{
		Number: int(binary.LittleEndian.Uint32(rec[0:4])),
		A:      f(0),
		E:      f(1),
		I:      f(2),
		Node:   f(3),
		Peri:   f(4),
		L:      f(5),
	}
}

// EncodeMinor serializes records into the table layout, sorted by number.
func EncodeMinor(records []MinorElements) []byte {
	sorted := append([]MinorElements(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	var buf bytes.Buffer
	buf.Grow(minorHeaderSize + len(sorted)*minorRecordSize)
	buf.WriteString(minorMagic)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(sorted)))
	for _, m := range sorted {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(m.Number))
		_ = binary.Write(&buf, binary.LittleEndian, uint32(0))
		for _, v := range []float64{m.A, m.E, m.I, m.Node, m.Peri, m.L} {
			_ = binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
		}
	}
	return buf.Bytes()
}

// WriteMinorFile writes a minor-body table to path.
func WriteMinorFile(path string, records []MinorElements) error {
	if err := os.WriteFile(path, EncodeMinor(records), 0644); err != nil {
		return fmt.Errorf("failed to write minor table: %w", err)
	}
	return nil
}
