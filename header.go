package sevenzip

import (
	"fmt"
	"io"
	"time"
	"unicode/utf16"

	"github.com/bodgit/windows"

	"github.com/go-archiver/sevenzip/internal/bitset"
	"github.com/go-archiver/sevenzip/internal/cursor"
)

// Property IDs, per the published 7z header grammar.
const (
	idEnd                   = 0x00
	idHeader                = 0x01
	idArchiveProperties     = 0x02
	idAdditionalStreamsInfo = 0x03
	idMainStreamsInfo       = 0x04
	idFilesInfo             = 0x05
	idPackInfo              = 0x06
	idUnpackInfo            = 0x07
	idSubStreamsInfo        = 0x08
	idSize                  = 0x09
	idCRC                   = 0x0a
	idFolder                = 0x0b
	idCodersUnpackSize      = 0x0c
	idNumUnpackStream       = 0x0d
	idEmptyStream           = 0x0e
	idEmptyFile             = 0x0f
	idAnti                  = 0x10
	idName                  = 0x11
	idCTime                 = 0x12
	idATime                 = 0x13
	idMTime                 = 0x14
	idWinAttributes         = 0x15
	idComment               = 0x16
	idEncodedHeader         = 0x17
	idStartPos              = 0x18
	idDummy                 = 0x19
)

const (
	maxCoders        = 64
	maxCoderIDLength = 8
	maxStreamsFolder = 64
)

func unexpectedTag(tag byte, context string) error {
	return &UnexpectedTagError{Tag: tag, Context: context}
}

// readEncodedHeader reads the fully decompressed replacement header stream
// produced by decoding an ENCODED_HEADER's folder: it must begin with the
// HEADER tag and contains exactly the same grammar as an unencoded header.
func readEncodedHeader(r io.Reader) (*header, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading decoded header: %w", err)
	}

	c := cursor.New(buf)

	id, err := c.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading decoded header tag: %w", err)
	}

	if id != idHeader {
		return nil, unexpectedTag(id, "decoded header")
	}

	return readHeader(c)
}

// readHeader reads the top-level HEADER non-terminal: optional archive
// properties (skipped), an error on additional streams info, optional main
// streams info, and optional files info.
func readHeader(c *cursor.Cursor) (*header, error) {
	h := new(header)

	for {
		id, err := c.ReadUint8()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading header tag: %w", err)
		}

		switch id {
		case idEnd:
			return h, nil
		case idArchiveProperties:
			if err := skipArchiveProperties(c); err != nil {
				return nil, err
			}
		case idAdditionalStreamsInfo:
			return nil, &UnsupportedFeatureError{Feature: "additional streams info"}
		case idMainStreamsInfo:
			si, err := readStreamsInfo(c)
			if err != nil {
				return nil, err
			}

			h.streamsInfo = si
		case idFilesInfo:
			fi, err := readFilesInfo(c)
			if err != nil {
				return nil, err
			}

			h.filesInfo = fi
		default:
			return nil, unexpectedTag(id, "HEADER")
		}
	}
}

func skipArchiveProperties(c *cursor.Cursor) error {
	for {
		id, err := c.ReadUint8()
		if err != nil {
			return fmt.Errorf("sevenzip: error reading archive property tag: %w", err)
		}

		if id == idEnd {
			return nil
		}

		if _, err := c.SkipVector(); err != nil {
			return fmt.Errorf("sevenzip: error skipping archive property: %w", err)
		}
	}
}

// readStreamsInfo reads PackInfo, UnpackInfo and SubStreamsInfo, in that
// order, each optional, terminated by idEnd.
func readStreamsInfo(c *cursor.Cursor) (*streamsInfo, error) {
	si := new(streamsInfo)

	for {
		id, err := c.ReadUint8()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading streams info tag: %w", err)
		}

		switch id {
		case idEnd:
			return si, nil
		case idPackInfo:
			pi, err := readPackInfo(c)
			if err != nil {
				return nil, err
			}

			si.packInfo = pi
		case idUnpackInfo:
			ui, err := readUnpackInfo(c)
			if err != nil {
				return nil, err
			}

			si.unpackInfo = ui
		case idSubStreamsInfo:
			if si.unpackInfo == nil {
				return nil, &InconsistentMetadataError{Detail: "SubStreamsInfo without UnpackInfo"}
			}

			ssi, err := readSubStreamsInfo(c, si.unpackInfo)
			if err != nil {
				return nil, err
			}

			si.subStreamsInfo = ssi
		default:
			return nil, unexpectedTag(id, "StreamsInfo")
		}
	}
}

func readPackInfo(c *cursor.Cursor) (*packInfo, error) {
	pi := new(packInfo)

	pos, err := c.ReadNumber()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading pack position: %w", err)
	}

	pi.position = pos

	numPacks, err := c.ReadNumberInt()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading pack stream count: %w", err)
	}

	pi.streams = uint64(numPacks) //nolint:gosec

	for {
		id, err := c.ReadUint8()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading pack info tag: %w", err)
		}

		switch id {
		case idSize:
			pi.size = make([]uint64, numPacks)

			for i := range pi.size {
				if pi.size[i], err = c.ReadNumber(); err != nil {
					return nil, fmt.Errorf("sevenzip: error reading pack size %d: %w", i, err)
				}
			}
		case idCRC:
			d, err := bitset.ReadDigest(c, numPacks)
			if err != nil {
				return nil, fmt.Errorf("sevenzip: error reading pack crc digest: %w", err)
			}

			pi.digest = d.CRCs
		case idEnd:
			return pi, nil
		default:
			if _, err := c.SkipVector(); err != nil {
				return nil, fmt.Errorf("sevenzip: error skipping pack info property: %w", err)
			}
		}
	}
}

func readCoder(c *cursor.Cursor) (*coder, error) {
	flags, err := c.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading coder flags: %w", err)
	}

	idLen := int(flags & 0x0f)
	if idLen > maxCoderIDLength {
		return nil, &InconsistentMetadataError{Detail: "coder id too long"}
	}

	id, err := c.ReadBytes(idLen)
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading coder id: %w", err)
	}

	cd := &coder{id: id, in: 1, out: 1}

	if flags&0x10 != 0 {
		in, err := c.ReadNumberBounded(maxStreamsFolder)
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading coder input count: %w", err)
		}

		out, err := c.ReadNumberBounded(maxStreamsFolder)
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading coder output count: %w", err)
		}

		if out != 1 {
			return nil, errMultipleOutputStreams
		}

		cd.in, cd.out = in, out
	}

	if flags&0x20 != 0 {
		size, err := c.ReadNumberInt()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading coder property size: %w", err)
		}

		props, err := c.ReadBytes(size)
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading coder properties: %w", err)
		}

		cd.properties = props
	}

	return cd, nil
}

func readFolder(c *cursor.Cursor) (*folder, error) {
	numCoders, err := c.ReadNumberBounded(maxCoders)
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading coder count: %w", err)
	}

	if numCoders == 0 {
		return nil, &InconsistentMetadataError{Detail: "folder with zero coders"}
	}

	f := &folder{coder: make([]*coder, numCoders)}

	for i := range f.coder {
		cd, err := readCoder(c)
		if err != nil {
			return nil, err
		}

		f.coder[i] = cd
		f.in += cd.in
		f.out += cd.out
	}

	if f.out == 0 {
		return nil, &InconsistentMetadataError{Detail: "folder with zero output streams"}
	}

	f.bindPair = make([]*bindPair, f.out-1)

	for i := range f.bindPair {
		in, err := c.ReadNumber()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading bind pair in-index %d: %w", i, err)
		}

		out, err := c.ReadNumber()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading bind pair out-index %d: %w", i, err)
		}

		if in >= f.in || out >= f.out {
			return nil, &InconsistentMetadataError{Detail: fmt.Sprintf("bind pair %d index out of range", i)}
		}

		f.bindPair[i] = &bindPair{in: in, out: out}
	}

	f.packedStreams = f.in - uint64(len(f.bindPair)) //nolint:gosec

	switch {
	case f.packedStreams == 1:
		for i := uint64(0); i < f.in; i++ {
			if f.findInBindPair(i) == nil {
				f.packed = []uint64{i}

				break
			}
		}
	case f.packedStreams > 1:
		f.packed = make([]uint64, f.packedStreams)

		for i := range f.packed {
			idx, err := c.ReadNumberBounded(f.in - 1)
			if err != nil {
				return nil, fmt.Errorf("sevenzip: error reading packed stream index %d: %w", i, err)
			}

			f.packed[i] = idx
		}
	default:
		return nil, &InconsistentMetadataError{Detail: "folder with no packed streams"}
	}

	return f, nil
}

func readUnpackInfo(c *cursor.Cursor) (*unpackInfo, error) {
	id, err := c.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading unpack info tag: %w", err)
	}

	if id != idFolder {
		return nil, unexpectedTag(id, "UnpackInfo")
	}

	numFolders, err := c.ReadNumberInt()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading folder count: %w", err)
	}

	external, err := c.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading folder external flag: %w", err)
	}

	if external != 0 {
		return nil, &UnsupportedFeatureError{Feature: "external folder data"}
	}

	ui := &unpackInfo{folder: make([]*folder, numFolders)}

	for i := range ui.folder {
		f, err := readFolder(c)
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading folder %d: %w", i, err)
		}

		ui.folder[i] = f
	}

	id, err = c.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading coders unpack size tag: %w", err)
	}

	if id != idCodersUnpackSize {
		return nil, unexpectedTag(id, "UnpackInfo")
	}

	for _, f := range ui.folder {
		f.size = make([]uint64, len(f.coder))

		for i := range f.size {
			if f.size[i], err = c.ReadNumber(); err != nil {
				return nil, fmt.Errorf("sevenzip: error reading folder unpack size %d: %w", i, err)
			}
		}
	}

	id, err = c.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading unpack info trailer tag: %w", err)
	}

	if id == idCRC {
		d, err := bitset.ReadDigest(c, len(ui.folder))
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading folder crc digest: %w", err)
		}

		ui.digest = d.CRCs

		ui.digestDefined = make([]bool, len(ui.folder))
		for i := range ui.digestDefined {
			ui.digestDefined[i] = d.Defined(i)
		}

		if id, err = c.ReadUint8(); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading unpack info trailer tag: %w", err)
		}
	}

	if id != idEnd {
		return nil, unexpectedTag(id, "UnpackInfo")
	}

	return ui, nil
}

func readSubStreamsInfo(c *cursor.Cursor, ui *unpackInfo) (*subStreamsInfo, error) {
	ssi := &subStreamsInfo{streams: make([]uint64, len(ui.folder))}
	for i := range ssi.streams {
		ssi.streams[i] = 1
	}

	id, err := c.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading substreams info tag: %w", err)
	}

	if id == idNumUnpackStream {
		for i := range ssi.streams {
			n, err := c.ReadNumber()
			if err != nil {
				return nil, fmt.Errorf("sevenzip: error reading substream count for folder %d: %w", i, err)
			}

			ssi.streams[i] = n
		}

		if id, err = c.ReadUint8(); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading substreams info tag: %w", err)
		}
	}

	for i, f := range ui.folder {
		k := ssi.streams[i]
		if k == 0 {
			continue
		}

		var sum uint64

		if id == idSize {
			for j := uint64(1); j < k; j++ {
				size, err := c.ReadNumber()
				if err != nil {
					return nil, fmt.Errorf("sevenzip: error reading substream size in folder %d: %w", i, err)
				}

				sum += size
				ssi.size = append(ssi.size, size)
			}
		}

		if f.unpackSize() < sum {
			return nil, &InconsistentMetadataError{Detail: fmt.Sprintf("folder %d substream sizes exceed unpack size", i)}
		}

		last := f.unpackSize() - sum
		if last == 0 {
			return nil, &InconsistentMetadataError{Detail: fmt.Sprintf("folder %d derived last substream size is zero", i)}
		}

		ssi.size = append(ssi.size, last)
	}

	if id == idSize {
		if id, err = c.ReadUint8(); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading substreams info tag: %w", err)
		}
	}

	numDigests := 0

	for i := range ui.folder {
		if ssi.streams[i] != 1 || !folderDigestKnown(ui, i) {
			numDigests += int(ssi.streams[i])
		}
	}

	if id == idCRC {
		d, err := bitset.ReadDigest(c, numDigests)
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading substream crc digest: %w", err)
		}

		ssi.digest = expandSubstreamDigests(ui, ssi, d)

		if id, err = c.ReadUint8(); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading substreams info tag: %w", err)
		}
	}

	if id != idEnd {
		return nil, unexpectedTag(id, "SubStreamsInfo")
	}

	return ssi, nil
}

func folderDigestKnown(ui *unpackInfo, folder int) bool {
	return folder < len(ui.digestDefined) && ui.digestDefined[folder]
}

// expandSubstreamDigests folds the folder-level CRCs back in for folders
// that have exactly one substream and already carry a CRC from
// UnpackInfo's folder digest, matching the format's space optimisation of
// not repeating a CRC that's already known.
func expandSubstreamDigests(ui *unpackInfo, ssi *subStreamsInfo, read *bitset.Digest) []uint32 {
	total := 0
	for _, n := range ssi.streams {
		total += int(n)
	}

	out := make([]uint32, total)
	pos, idx := 0, 0

	for i := range ui.folder {
		n := int(ssi.streams[i])
		if n == 1 && folderDigestKnown(ui, i) {
			out[pos] = ui.digest[i]
			pos++

			continue
		}

		for j := 0; j < n; j++ {
			out[pos] = read.CRCs[idx]
			idx++
			pos++
		}
	}

	return out
}

func readFilesInfo(c *cursor.Cursor) (*filesInfo, error) {
	numFiles, err := c.ReadNumberInt()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading file count: %w", err)
	}

	fi := &filesInfo{file: make([]FileHeader, numFiles)}

	var (
		emptyStream *bitset.Bitmap
		numEmpty    int
	)

	for {
		id, err := c.ReadUint8()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading files info tag: %w", err)
		}

		if id == idEnd {
			return fi, nil
		}

		size, err := c.ReadNumber()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading files info property size: %w", err)
		}

		switch id {
		case idDummy:
			if err := c.Skip(int(size)); err != nil { //nolint:gosec
				return nil, fmt.Errorf("sevenzip: error skipping dummy property: %w", err)
			}
		case idEmptyStream:
			bm, err := bitset.ReadBitmap(c, numFiles)
			if err != nil {
				return nil, fmt.Errorf("sevenzip: error reading empty-stream bitmap: %w", err)
			}

			emptyStream = bm
			numEmpty = 0

			for i := 0; i < numFiles; i++ {
				fi.file[i].isEmptyStream = bm.Test(i)
				if bm.Test(i) {
					numEmpty++
				}
			}
		case idEmptyFile:
			if emptyStream == nil {
				return nil, &InconsistentMetadataError{Detail: "EMPTY_FILE without EMPTY_STREAM"}
			}

			bm, err := bitset.ReadBitmap(c, numEmpty)
			if err != nil {
				return nil, fmt.Errorf("sevenzip: error reading empty-file bitmap: %w", err)
			}

			j := 0

			for i := range fi.file {
				if !fi.file[i].isEmptyStream {
					continue
				}

				fi.file[i].isEmptyFile = bm.Test(j)
				j++
			}
		case idAnti:
			return nil, &UnsupportedFeatureError{Feature: "anti-files"}
		case idName:
			if err := readFileNames(c, fi.file); err != nil {
				return nil, err
			}
		case idCTime:
			if err := readFileTimes(c, fi.file, numFiles, idCTime); err != nil {
				return nil, err
			}
		case idATime:
			if err := readFileTimes(c, fi.file, numFiles, idATime); err != nil {
				return nil, err
			}
		case idMTime:
			if err := readFileTimes(c, fi.file, numFiles, idMTime); err != nil {
				return nil, err
			}
		case idWinAttributes:
			if err := readFileAttributes(c, fi.file, numFiles); err != nil {
				return nil, err
			}
		case idStartPos:
			return nil, &UnsupportedFeatureError{Feature: "start position"}
		default:
			if err := c.Skip(int(size)); err != nil { //nolint:gosec
				return nil, fmt.Errorf("sevenzip: error skipping files info property 0x%02x: %w", id, err)
			}
		}
	}
}

func readFileNames(c *cursor.Cursor, files []FileHeader) error {
	external, err := c.ReadUint8()
	if err != nil {
		return fmt.Errorf("sevenzip: error reading name external flag: %w", err)
	}

	if external != 0 {
		return &UnsupportedFeatureError{Feature: "external names"}
	}

	for i := range files {
		var units []uint16

		for {
			u, err := c.ReadUint16LE()
			if err != nil {
				return fmt.Errorf("sevenzip: error reading name for file %d: %w", i, err)
			}

			if u == 0 {
				break
			}

			units = append(units, u)
		}

		files[i].Name = string(utf16.Decode(units))
	}

	return nil
}

func readFileTimes(c *cursor.Cursor, files []FileHeader, numFiles int, which byte) error {
	bm, err := bitset.ReadBitmap(c, numFiles)
	if err != nil {
		return fmt.Errorf("sevenzip: error reading timestamp bitmap: %w", err)
	}

	external, err := c.ReadUint8()
	if err != nil {
		return fmt.Errorf("sevenzip: error reading timestamp external flag: %w", err)
	}

	if external != 0 {
		return &UnsupportedFeatureError{Feature: "external timestamps"}
	}

	for i := 0; i < numFiles; i++ {
		if !bm.Test(i) {
			continue
		}

		ft, err := c.ReadUint64LE()
		if err != nil {
			return fmt.Errorf("sevenzip: error reading timestamp for file %d: %w", i, err)
		}

		t := filetimeToTime(ft)

		switch which {
		case idCTime:
			files[i].Created = t
		case idATime:
			files[i].Accessed = t
		case idMTime:
			files[i].Modified = t
		}
	}

	return nil
}

// filetimeToTime converts a Windows FILETIME (100-ns ticks since
// 1601-01-01 UTC) to a time.Time.
func filetimeToTime(ft uint64) time.Time {
	return windows.FileTimeToTime(ft)
}

func readFileAttributes(c *cursor.Cursor, files []FileHeader, numFiles int) error {
	bm, err := bitset.ReadBitmap(c, numFiles)
	if err != nil {
		return fmt.Errorf("sevenzip: error reading attribute bitmap: %w", err)
	}

	external, err := c.ReadUint8()
	if err != nil {
		return fmt.Errorf("sevenzip: error reading attribute external flag: %w", err)
	}

	if external != 0 {
		return &UnsupportedFeatureError{Feature: "external attributes"}
	}

	for i := 0; i < numFiles; i++ {
		if !bm.Test(i) {
			continue
		}

		v, err := c.ReadUint32LE()
		if err != nil {
			return fmt.Errorf("sevenzip: error reading attributes for file %d: %w", i, err)
		}

		files[i].Attributes = v
	}

	return nil
}
