// Package util collects small io helpers shared between the root package
// and the codec adapters: a size-aware read/seek/close interface, CRC-32
// comparison, and closer-less wrapping helpers.
package util

import (
	"encoding/binary"
	"io"
)

// SizeReadSeekCloser is satisfied by anything that can be read, seeked,
// closed, and that knows its own total size. Folder readers and the
// per-folder pool both speak this interface.
type SizeReadSeekCloser interface {
	io.ReadSeekCloser
	Size() int64
}

type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }

// NopCloser wraps r in an io.ReadCloser whose Close is a no-op, for inputs
// that don't own anything worth releasing (e.g. a bufio.Reader over a
// bounded io.SectionReader).
func NopCloser(r io.Reader) io.ReadCloser {
	return nopCloser{r}
}

// CRC32Equal compares a computed checksum, as returned by hash.Hash.Sum
// (which encodes the big-endian bytes of the underlying uint32), against
// an expected CRC-32 value already decoded into an integer.
func CRC32Equal(sum []byte, want uint32) bool {
	if len(sum) != 4 {
		return false
	}

	return binary.BigEndian.Uint32(sum) == want
}
