package sevenzip

import (
	"fmt"

	"github.com/go-archiver/sevenzip/internal/cursor"
)

// ErrTruncatedInput is returned (wrapped) whenever the header grammar tries
// to read past the end of its buffer. Codec engines report short input with
// their own errors, which are not mapped to this value.
var ErrTruncatedInput = cursor.ErrTruncated

// ErrIntegerOverflow is returned (wrapped) when a 7-zip variable-length
// integer exceeds a caller-supplied bound, e.g. a folder or file count.
var ErrIntegerOverflow = cursor.ErrOverflow

// UnexpectedTagError reports a grammar tag that isn't permitted at the
// current parse position.
type UnexpectedTagError struct {
	Tag     byte
	Context string
}

func (e *UnexpectedTagError) Error() string {
	return fmt.Sprintf("sevenzip: unexpected tag 0x%02x while reading %s", e.Tag, e.Context)
}

// UnsupportedFeatureError reports a well-formed but unimplemented part of
// the format: additional streams info, anti-files, encryption, or an
// unrecognised codec ID.
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("sevenzip: unsupported feature: %s", e.Feature)
}

// InconsistentMetadataError reports a structurally valid header whose
// cross-references don't add up: bind-pair indices out of range, a
// substream/file count mismatch, or a header CRC failure.
type InconsistentMetadataError struct {
	Detail string
}

func (e *InconsistentMetadataError) Error() string {
	return fmt.Sprintf("sevenzip: inconsistent metadata: %s", e.Detail)
}

// CodecError reports a decompression engine failure, including the case
// where the engine reports a different number of output bytes than the
// folder declared.
type CodecError struct {
	Codec  string
	Detail string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("sevenzip: codec %s failed: %s", e.Codec, e.Detail)
}

// PayloadCRCError reports that the decompressed bytes of a file didn't
// match its recorded CRC-32. The bytes are still delivered to the sink;
// this error is collected and returned alongside a successful walk so
// callers implementing something like a "-t" test mode can see every
// failure instead of stopping at the first one.
type PayloadCRCError struct {
	Name string
	Want uint32
	Got  uint32
}

func (e *PayloadCRCError) Error() string {
	return fmt.Sprintf("sevenzip: checksum mismatch for %q: want %08x, got %08x", e.Name, e.Want, e.Got)
}
