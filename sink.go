package sevenzip

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"time"
)

// Sink receives the decoded contents of an archive as [Reader.Extract] walks
// it. Calls arrive in the same order the files appear in the archive's
// FilesInfo: a directory entry yields exactly one OnDirectory call, an
// empty-stream-and-empty-file entry yields exactly one OnEmptyFile call, and
// everything else yields exactly one OnFile call carrying its fully read and
// CRC-verified content.
type Sink interface {
	// OnDirectory is called for an entry whose EmptyStream and EmptyFile
	// bits are both set to the "directory" combination (EmptyStream set,
	// EmptyFile clear).
	OnDirectory(name string, attributes uint32, created, accessed, modified time.Time) error

	// OnEmptyFile is called for a zero-length file: EmptyStream and
	// EmptyFile both set.
	OnEmptyFile(name string, attributes uint32, created, accessed, modified time.Time) error

	// OnFile is called once the entry's content has been fully read from
	// its folder and checked against its recorded CRC-32. crc is the
	// value recorded in the header, not necessarily the one computed from
	// content, so a caller can tell a [PayloadCRCError] apart from a
	// mismatch it detects itself.
	OnFile(name string, attributes uint32, created, accessed, modified time.Time, crc uint32, content []byte) error
}

// Extract walks every entry in z.File, in archive order, and drives sink
// with the decoded contents. A directory or empty-file entry never opens a
// folder reader. A regular file is opened, fully read, and closed before the
// next entry is visited, so at most one folder reader per folder is ever
// live at a time; extraction does not parallelize across files the way
// concurrent [File.Open] calls can.
//
// If a file's computed CRC-32 doesn't match the recorded one, Extract still
// delivers the bytes to sink via OnFile and continues, collecting a
// [PayloadCRCError] per mismatched file. The returned error, if non-nil,
// joins every collected [PayloadCRCError] via [errors.Join]; any other failure
// (read error, sink error) aborts the walk immediately and is returned
// alone.
func (z *Reader) Extract(sink Sink) error {
	var crcErrs []error

	for _, f := range z.File {
		h := f.FileHeader

		switch {
		case h.isEmptyStream && !h.isEmptyFile:
			if err := sink.OnDirectory(h.Name, h.Attributes, h.Created, h.Accessed, h.Modified); err != nil {
				return fmt.Errorf("sevenzip: sink rejected directory %q: %w", h.Name, err)
			}
		case h.isEmptyStream && h.isEmptyFile:
			if err := sink.OnEmptyFile(h.Name, h.Attributes, h.Created, h.Accessed, h.Modified); err != nil {
				return fmt.Errorf("sevenzip: sink rejected empty file %q: %w", h.Name, err)
			}
		default:
			content, err := extractFile(f)
			if err != nil {
				return fmt.Errorf("sevenzip: error reading %q: %w", h.Name, err)
			}

			if got := crc32.ChecksumIEEE(content); got != h.CRC32 {
				crcErrs = append(crcErrs, &PayloadCRCError{Name: h.Name, Want: h.CRC32, Got: got})
			}

			if err := sink.OnFile(h.Name, h.Attributes, h.Created, h.Accessed, h.Modified, h.CRC32, content); err != nil {
				return fmt.Errorf("sevenzip: sink rejected file %q: %w", h.Name, err)
			}
		}
	}

	return errors.Join(crcErrs...)
}

func extractFile(f *File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}

	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading content: %w", err)
	}

	return content, nil
}
