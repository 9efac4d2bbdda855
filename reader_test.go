package sevenzip

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { //nolint:gochecknoinits
	// Copy is deliberately unregistered by default (see register.go); tests
	// build tiny archives with it rather than shipping compressed fixtures.
	RegisterDecompressor([]byte{0x00}, Decompressor(func(_ []byte, _ uint64, r []io.ReadCloser) (io.ReadCloser, error) {
		return r[0], nil
	}))
}

// number writes a 7-zip variable-length integer for a value small enough
// (<128) to fit the single-byte, zero-extra-byte encoding.
func number(buf *bytes.Buffer, v uint64) {
	if v >= 0x80 {
		panic("number: value too large for single-byte test encoding")
	}

	buf.WriteByte(byte(v))
}

func utf16Name(name string) []byte {
	units := utf16.Encode([]rune(name))

	buf := make([]byte, 0, len(units)*2+2)
	for _, u := range units {
		buf = binary.LittleEndian.AppendUint16(buf, u)
	}

	return binary.LittleEndian.AppendUint16(buf, 0)
}

// buildArchive assembles a minimal, single-folder, single-file 7-zip
// archive using the Copy method, computing every length and checksum from
// the actual content rather than hardcoding wire constants.
func buildArchive(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var hdr bytes.Buffer

	hdr.WriteByte(idHeader)

	hdr.WriteByte(idMainStreamsInfo)
	{
		hdr.WriteByte(idPackInfo)
		number(&hdr, 0) // position
		number(&hdr, 1) // number of pack streams
		hdr.WriteByte(idSize)
		number(&hdr, uint64(len(content)))
		hdr.WriteByte(idEnd)

		hdr.WriteByte(idUnpackInfo)
		hdr.WriteByte(idFolder)
		number(&hdr, 1) // number of folders
		hdr.WriteByte(0) // external
		number(&hdr, 1)  // number of coders
		hdr.WriteByte(0x01) // flags: 1-byte coder id, no attributes
		hdr.WriteByte(0x00) // Copy
		hdr.WriteByte(idCodersUnpackSize)
		number(&hdr, uint64(len(content)))
		hdr.WriteByte(idCRC)
		hdr.WriteByte(1) // all_defined
		var crcBytes [4]byte
		binary.LittleEndian.PutUint32(crcBytes[:], crc32.ChecksumIEEE(content))
		hdr.Write(crcBytes[:])
		hdr.WriteByte(idEnd) // end UnpackInfo

		hdr.WriteByte(idEnd) // end StreamsInfo
	}

	hdr.WriteByte(idFilesInfo)
	{
		number(&hdr, 1) // number of files
		hdr.WriteByte(idName)

		nameBytes := utf16Name(name)
		number(&hdr, uint64(len(nameBytes)+1))
		hdr.WriteByte(0) // external
		hdr.Write(nameBytes)

		hdr.WriteByte(idEnd) // end FilesInfo
	}

	hdr.WriteByte(idEnd) // end Header

	var archive bytes.Buffer

	archive.Write([]byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c})
	archive.WriteByte(0) // major
	archive.WriteByte(4) // minor

	start := make([]byte, 20)
	binary.LittleEndian.PutUint64(start[0:8], uint64(len(content)))
	binary.LittleEndian.PutUint64(start[8:16], uint64(hdr.Len()))
	binary.LittleEndian.PutUint32(start[16:20], crc32.ChecksumIEEE(hdr.Bytes()))

	var startCRC [4]byte
	binary.LittleEndian.PutUint32(startCRC[:], crc32.ChecksumIEEE(start))

	archive.Write(startCRC[:])
	archive.Write(start)
	archive.Write(content)
	archive.Write(hdr.Bytes())

	return archive.Bytes()
}

func TestSyntheticArchiveRoundTrip(t *testing.T) {
	t.Parallel()

	content := []byte("hello, sevenzip!\n")
	archive := buildArchive(t, "hello.txt", content)

	r, err := NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	require.Len(t, r.File, 1)

	f := r.File[0]
	assert.Equal(t, "hello.txt", f.Name)
	assert.Equal(t, uint64(len(content)), f.UncompressedSize)
	assert.Equal(t, crc32.ChecksumIEEE(content), f.CRC32)

	rc, err := f.Open()
	require.NoError(t, err)

	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}
