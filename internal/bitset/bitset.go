// Package bitset implements the packed, MSB-first boolean vectors used by
// the 7-zip header grammar, plus the "bitmap with CRCs" digest encoding
// that rides along pack, folder and substream checksums.
package bitset

import (
	"fmt"

	"github.com/go-archiver/sevenzip/internal/cursor"
)

// A Bitmap is a packed boolean vector, one bit per index, stored MSB-first
// within each byte.
type Bitmap struct {
	n    int
	bits []byte
}

// Test reports whether bit i is set.
func (b *Bitmap) Test(i int) bool {
	return b.bits[i/8]>>(7-uint(i%8))&1 != 0 //nolint:gosec
}

// Len returns the number of bits represented.
func (b *Bitmap) Len() int {
	return b.n
}

func numBytes(n int) int {
	return (n + 7) / 8
}

// ReadBitmap reads the all_defined-prefixed boolean vector encoding: a
// leading byte of 1 means every bit is implicitly set and no bitmap bytes
// follow; 0 means ceil(n/8) bytes of packed bits follow.
func ReadBitmap(c *cursor.Cursor, n int) (*Bitmap, error) {
	allDefined, err := c.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("bitset: error reading all-defined flag: %w", err)
	}

	if allDefined != 0 {
		bits := make([]byte, numBytes(n))
		for i := range bits {
			bits[i] = 0xff
		}

		return &Bitmap{n: n, bits: bits}, nil
	}

	bits, err := c.ReadBytes(numBytes(n))
	if err != nil {
		return nil, fmt.Errorf("bitset: error reading bitmap: %w", err)
	}

	return &Bitmap{n: n, bits: bits}, nil
}

// A Digest layers a dense, length-N array of per-index CRC-32 values over a
// Bitmap: only indices whose bit is set carry a meaningful CRC, the rest
// are left zero.
type Digest struct {
	Bitmap *Bitmap
	CRCs   []uint32
}

// ReadDigest reads the BitmapDigest wire encoding shared by pack, folder
// and substream CRCs: an optional bitmap (see ReadBitmap) followed by one
// little-endian uint32 per set bit, in index order.
func ReadDigest(c *cursor.Cursor, n int) (*Digest, error) {
	bm, err := ReadBitmap(c, n)
	if err != nil {
		return nil, fmt.Errorf("bitset: error reading digest bitmap: %w", err)
	}

	crcs := make([]uint32, n)

	for i := 0; i < n; i++ {
		if !bm.Test(i) {
			continue
		}

		v, err := c.ReadUint32LE()
		if err != nil {
			return nil, fmt.Errorf("bitset: error reading crc %d: %w", i, err)
		}

		crcs[i] = v
	}

	return &Digest{Bitmap: bm, CRCs: crcs}, nil
}

// Defined reports whether index i carries a CRC.
func (d *Digest) Defined(i int) bool {
	return d.Bitmap.Test(i)
}
