package sevenzip

import (
	"io"
	"sync"

	"github.com/go-archiver/sevenzip/internal/bra"
	"github.com/go-archiver/sevenzip/internal/lzma"
	"github.com/go-archiver/sevenzip/internal/lzma2"
	"github.com/go-archiver/sevenzip/internal/zstd"
)

// Decompressor turns the packed input streams feeding a single coder into
// the coder's decompressed output, given that coder's property blob and
// declared unpack size.
type Decompressor func([]byte, uint64, []io.ReadCloser) (io.ReadCloser, error)

var decompressors sync.Map //nolint:gochecknoglobals

func init() { //nolint:gochecknoinits
	// LZMA
	RegisterDecompressor([]byte{0x03, 0x01, 0x01}, Decompressor(lzma.NewReader))
	// LZMA2
	RegisterDecompressor([]byte{0x21}, Decompressor(lzma2.NewReader))
	// Zstandard
	RegisterDecompressor([]byte{0x04, 0xf7, 0x11, 0x01}, Decompressor(zstd.NewReader))
	// BCJ x86
	RegisterDecompressor([]byte{0x03, 0x03, 0x01, 0x03}, Decompressor(bra.NewBCJReader))
}

// RegisterDecompressor registers a [Decompressor] for the given coder
// method ID. It panics if a decompressor is already registered for that ID.
func RegisterDecompressor(method []byte, dcomp Decompressor) {
	if _, dup := decompressors.LoadOrStore(string(method), dcomp); dup {
		panic("sevenzip: decompressor already registered")
	}
}

func decompressor(method []byte) Decompressor {
	di, ok := decompressors.Load(string(method))
	if !ok {
		return nil
	}

	return di.(Decompressor) //nolint:forcetypeassert
}
