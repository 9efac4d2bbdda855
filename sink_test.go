package sevenzip

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMixedArchive assembles an archive with one directory, one empty file
// and one regular Copy-compressed file, in that order, matching the mix of
// entry kinds Extract has to dispatch between.
func buildMixedArchive(t *testing.T, content []byte) []byte {
	t.Helper()

	var hdr bytes.Buffer

	hdr.WriteByte(idHeader)

	hdr.WriteByte(idMainStreamsInfo)
	{
		hdr.WriteByte(idPackInfo)
		number(&hdr, 0)
		number(&hdr, 1)
		hdr.WriteByte(idSize)
		number(&hdr, uint64(len(content)))
		hdr.WriteByte(idEnd)

		hdr.WriteByte(idUnpackInfo)
		hdr.WriteByte(idFolder)
		number(&hdr, 1)
		hdr.WriteByte(0)
		number(&hdr, 1)
		hdr.WriteByte(0x01)
		hdr.WriteByte(0x00) // Copy
		hdr.WriteByte(idCodersUnpackSize)
		number(&hdr, uint64(len(content)))
		hdr.WriteByte(idCRC)
		hdr.WriteByte(1)

		var crcBytes [4]byte
		binary.LittleEndian.PutUint32(crcBytes[:], crc32.ChecksumIEEE(content))
		hdr.Write(crcBytes[:])
		hdr.WriteByte(idEnd) // end UnpackInfo

		hdr.WriteByte(idEnd) // end StreamsInfo
	}

	hdr.WriteByte(idFilesInfo)
	{
		number(&hdr, 3) // dir, empty.txt, r.txt

		hdr.WriteByte(idEmptyStream)
		number(&hdr, 2) // packed size of the bitmap payload below
		hdr.WriteByte(0) // not all-defined
		hdr.WriteByte(0b11000000) // dir=1, empty.txt=1, r.txt=0, padded

		hdr.WriteByte(idEmptyFile)
		number(&hdr, 2)
		hdr.WriteByte(0)          // not all-defined
		hdr.WriteByte(0b01000000) // dir=0, empty.txt=1 (only 2 empty-stream entries)

		hdr.WriteByte(idName)

		names := append(append(utf16Name("dir"), utf16Name("empty.txt")...), utf16Name("r.txt")...)
		number(&hdr, uint64(len(names)+1))
		hdr.WriteByte(0) // external
		hdr.Write(names)

		hdr.WriteByte(idWinAttributes)
		number(&hdr, 1+1+4*3)
		hdr.WriteByte(1) // all-defined
		hdr.WriteByte(0) // external

		var attr [4]byte
		binary.LittleEndian.PutUint32(attr[:], 0x10) // FILE_ATTRIBUTE_DIRECTORY
		hdr.Write(attr[:])
		binary.LittleEndian.PutUint32(attr[:], 0x20) // FILE_ATTRIBUTE_ARCHIVE
		hdr.Write(attr[:])
		hdr.Write(attr[:])

		hdr.WriteByte(idEnd) // end FilesInfo
	}

	hdr.WriteByte(idEnd) // end Header

	var archive bytes.Buffer

	archive.Write([]byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c})
	archive.WriteByte(0)
	archive.WriteByte(4)

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

type sinkCall struct {
	kind    string
	name    string
	attrs   uint32
	crc     uint32
	content []byte
}

type recordingSink struct {
	calls []sinkCall
}

func (s *recordingSink) OnDirectory(name string, attrs uint32, _, _, _ time.Time) error {
	s.calls = append(s.calls, sinkCall{kind: "dir", name: name, attrs: attrs})

	return nil
}

func (s *recordingSink) OnEmptyFile(name string, attrs uint32, _, _, _ time.Time) error {
	s.calls = append(s.calls, sinkCall{kind: "empty", name: name, attrs: attrs})

	return nil
}

func (s *recordingSink) OnFile(name string, attrs uint32, _, _, _ time.Time, crc uint32, content []byte) error {
	s.calls = append(s.calls, sinkCall{kind: "file", name: name, attrs: attrs, crc: crc, content: content})

	return nil
}

func TestReaderExtract(t *testing.T) {
	t.Parallel()

	content := []byte("regular file content")
	archive := buildMixedArchive(t, content)

	r, err := NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	require.Len(t, r.File, 3)

	sink := &recordingSink{}
	require.NoError(t, r.Extract(sink))

	require.Len(t, sink.calls, 3)

	assert.Equal(t, "dir", sink.calls[0].kind)
	assert.Equal(t, "dir/", sink.calls[0].name)
	assert.Equal(t, uint32(0x10), sink.calls[0].attrs)

	assert.Equal(t, "empty", sink.calls[1].kind)
	assert.Equal(t, "empty.txt", sink.calls[1].name)

	assert.Equal(t, "file", sink.calls[2].kind)
	assert.Equal(t, "r.txt", sink.calls[2].name)
	assert.Equal(t, crc32.ChecksumIEEE(content), sink.calls[2].crc)
	assert.Equal(t, content, sink.calls[2].content)
}
