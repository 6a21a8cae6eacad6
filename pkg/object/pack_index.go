package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
)

const (
	packIndexVersion        = 2
	packIndexFanoutSize     = 256 * 4
	packIndexV1RecordSize   = 4 + IDSize
	packIndexTrailerSize    = 2 * IDSize
	packIndexLargeOffsetBit = uint32(1 << 31)
)

var packIndexMagic = [4]byte{0xff, 't', 'O', 'c'}

// PackIndexEntry is one row in a pack index file.
type PackIndexEntry struct {
	ID     ID
	Offset uint64
	CRC32  uint32
}

// PackIndex maps object ids to byte offsets in the companion pack file.
type PackIndex struct {
	Version      int
	PackChecksum ID

	fanout  [256]uint32
	entries []PackIndexEntry
}

// Len returns the number of objects in the index.
func (idx *PackIndex) Len() int {
	return len(idx.entries)
}

// Entries returns a copy of all index entries in id order.
func (idx *PackIndex) Entries() []PackIndexEntry {
	out := make([]PackIndexEntry, len(idx.entries))
	copy(out, idx.entries)
	return out
}

// Find performs fanout-bounded binary search for id.
func (idx *PackIndex) Find(id ID) (PackIndexEntry, bool) {
	bucket := int(id[0])
	start := 0
	if bucket > 0 {
		start = int(idx.fanout[bucket-1])
	}
	end := int(idx.fanout[bucket])
	if end > len(idx.entries) || start >= end {
		return PackIndexEntry{}, false
	}
	i := start + sort.Search(end-start, func(i int) bool {
		return bytes.Compare(idx.entries[start+i].ID[:], id[:]) >= 0
	})
	if i < end && idx.entries[i].ID == id {
		return idx.entries[i], true
	}
	return PackIndexEntry{}, false
}

// ReadPackIndexFile reads and parses the .idx file at path.
func ReadPackIndexFile(path string) (*PackIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack index: %w", err)
	}
	idx, err := ReadPackIndex(data)
	if err != nil {
		return nil, fmt.Errorf("pack index %s: %w", path, err)
	}
	return idx, nil
}

// ReadPackIndex parses a version 1 or version 2 pack index. Version 1 files
// have no magic and start directly with the fan-out table.
func ReadPackIndex(data []byte) (*PackIndex, error) {
	idx := &PackIndex{Version: 1}
	cursor := 0
	if len(data) >= 4 && bytes.Equal(data[:4], packIndexMagic[:]) {
		version, err := Uint32At(data, 4)
		if err != nil {
			return nil, err
		}
		if version != packIndexVersion {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedIndexVersion, version)
		}
		idx.Version = packIndexVersion
		cursor = 8
	}

	if len(data) < cursor+packIndexFanoutSize {
		return nil, fmt.Errorf("fan-out table: %w", ErrTruncatedInput)
	}
	var prev uint32
	for i := 0; i < 256; i++ {
		n := binary.BigEndian.Uint32(data[cursor:])
		if n < prev {
			return nil, fmt.Errorf("%w: fan-out bucket %d decreases from %d to %d", ErrCorruptIndex, i, prev, n)
		}
		idx.fanout[i] = n
		prev = n
		cursor += 4
	}
	n := int(idx.fanout[255])

	var err error
	if idx.Version == 1 {
		idx.entries, cursor, err = readPackIndexV1(data, cursor, n)
	} else {
		idx.entries, cursor, err = readPackIndexV2(data, cursor, n)
	}
	if err != nil {
		return nil, err
	}

	if len(data) < cursor+packIndexTrailerSize {
		return nil, fmt.Errorf("trailer: %w", ErrTruncatedInput)
	}
	copy(idx.PackChecksum[:], data[cursor:cursor+IDSize])
	body := data[:cursor+IDSize]
	sum := sha1.Sum(body)
	if !bytes.Equal(sum[:], data[cursor+IDSize:cursor+packIndexTrailerSize]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptIndex)
	}
	return idx, nil
}

func readPackIndexV1(data []byte, cursor, n int) ([]PackIndexEntry, int, error) {
	if len(data) < cursor+n*packIndexV1RecordSize {
		return nil, cursor, fmt.Errorf("v1 records: %w", ErrTruncatedInput)
	}
	entries := make([]PackIndexEntry, n)
	for i := range entries {
		entries[i].Offset = uint64(binary.BigEndian.Uint32(data[cursor:]))
		copy(entries[i].ID[:], data[cursor+4:cursor+packIndexV1RecordSize])
		cursor += packIndexV1RecordSize
	}
	return entries, cursor, nil
}

func readPackIndexV2(data []byte, cursor, n int) ([]PackIndexEntry, int, error) {
	namesStart := cursor
	crcStart := namesStart + n*IDSize
	offsetStart := crcStart + n*4
	end := offsetStart + n*4
	if len(data) < end {
		return nil, cursor, fmt.Errorf("v2 tables: %w", ErrTruncatedInput)
	}

	entries := make([]PackIndexEntry, n)
	for i := range entries {
		copy(entries[i].ID[:], data[namesStart+i*IDSize:])
		entries[i].CRC32 = binary.BigEndian.Uint32(data[crcStart+i*4:])
		off := binary.BigEndian.Uint32(data[offsetStart+i*4:])
		if off&packIndexLargeOffsetBit != 0 {
			return nil, cursor, fmt.Errorf("%w: object %s", ErrUnsupportedLargeOffset, entries[i].ID)
		}
		entries[i].Offset = uint64(off)
	}
	return entries, end, nil
}

// WritePackIndex writes a version 2 index for entries and returns the index
// checksum. Offsets must fit in 31 bits.
func WritePackIndex(w io.Writer, entries []PackIndexEntry, packChecksum ID) (ID, error) {
	sorted := make([]PackIndexEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].ID == sorted[i-1].ID {
			return ZeroID, fmt.Errorf("write pack index: duplicate object %s", sorted[i].ID)
		}
	}

	var buf bytes.Buffer
	buf.Write(packIndexMagic[:])
	_ = binary.Write(&buf, binary.BigEndian, uint32(packIndexVersion))

	var fanout [256]uint32
	for _, e := range sorted {
		fanout[e.ID[0]]++
	}
	var total uint32
	for i := range fanout {
		total += fanout[i]
		_ = binary.Write(&buf, binary.BigEndian, total)
	}

	for _, e := range sorted {
		buf.Write(e.ID[:])
	}
	for _, e := range sorted {
		_ = binary.Write(&buf, binary.BigEndian, e.CRC32)
	}
	for _, e := range sorted {
		if e.Offset >= uint64(packIndexLargeOffsetBit) {
			return ZeroID, fmt.Errorf("%w: offset %d for %s", ErrUnsupportedLargeOffset, e.Offset, e.ID)
		}
		_ = binary.Write(&buf, binary.BigEndian, uint32(e.Offset))
	}

	buf.Write(packChecksum[:])
	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])

	if _, err := w.Write(buf.Bytes()); err != nil {
		return ZeroID, fmt.Errorf("write pack index: %w", err)
	}
	return ID(sum), nil
}
