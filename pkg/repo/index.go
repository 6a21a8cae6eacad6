package repo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/gitkit/pkg/object"
)

const (
	indexMagic          = "DIRC"
	indexHeaderSize     = 12
	indexEntryFixedSize = 62
	indexNameMask       = 0x0fff
	indexExtendedFlag   = 0x4000
)

// IndexEntry is one record of the binary index file.
type IndexEntry struct {
	CTime     uint32
	CTimeNsec uint32
	MTime     uint32
	MTimeNsec uint32
	Dev       uint32
	Ino       uint32
	Mode      uint32
	UID       uint32
	GID       uint32
	Size      uint32
	ID        object.ID
	Flags     uint16
	ExtFlags  uint16 // present on disk only when Flags has the extended bit
	Path      string
}

// Index is the parsed content of a .git/index file. Extensions are skipped
// on read and never written.
type Index struct {
	Version uint32
	Entries []IndexEntry
}

func (r *Repo) indexPath() string {
	return filepath.Join(r.GitDir, "index")
}

// ReadIndex reads <gitDir>/index.
func (r *Repo) ReadIndex() (*Index, error) {
	return ReadIndexFile(r.indexPath())
}

// ReadIndexFile reads and parses an index file.
func ReadIndexFile(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	idx, err := ReadIndex(data)
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}
	return idx, nil
}

// ReadIndex parses index bytes: magic, version 2 or 3, entries, and the
// trailing SHA-1 over everything before it.
func ReadIndex(data []byte) (*Index, error) {
	if len(data) < indexHeaderSize+object.IDSize {
		return nil, fmt.Errorf("index is %d bytes: %w", len(data), object.ErrCorruptIndex)
	}
	if string(data[:4]) != indexMagic {
		return nil, fmt.Errorf("bad index signature %q: %w", data[:4], object.ErrCorruptIndex)
	}

	body := data[:len(data)-object.IDSize]
	want := object.HashBytes(body)
	if !bytes.Equal(want[:], data[len(body):]) {
		return nil, fmt.Errorf("index checksum mismatch: %w", object.ErrCorruptIndex)
	}

	version := binary.BigEndian.Uint32(data[4:8])
	if version != 2 && version != 3 {
		return nil, fmt.Errorf("index version %d: %w", version, object.ErrUnsupportedIndexVersion)
	}
	count := binary.BigEndian.Uint32(data[8:12])

	idx := &Index{Version: version}
	if count > 0 {
		idx.Entries = make([]IndexEntry, 0, min(int(count), len(body)/indexEntryFixedSize))
	}
	pos := indexHeaderSize
	for i := uint32(0); i < count; i++ {
		entry, next, err := readIndexEntry(body, pos)
		if err != nil {
			return nil, fmt.Errorf("index entry %d: %w", i, err)
		}
		idx.Entries = append(idx.Entries, entry)
		pos = next
	}
	return idx, nil
}

func readIndexEntry(body []byte, pos int) (IndexEntry, int, error) {
	start := pos
	if pos+indexEntryFixedSize > len(body) {
		return IndexEntry{}, 0, object.ErrTruncatedInput
	}

	var words [10]uint32
	for i := range words {
		v, err := object.Uint32At(body, pos)
		if err != nil {
			return IndexEntry{}, 0, err
		}
		words[i] = v
		pos += 4
	}

	var e IndexEntry
	e.CTime, e.CTimeNsec = words[0], words[1]
	e.MTime, e.MTimeNsec = words[2], words[3]
	e.Dev, e.Ino = words[4], words[5]
	e.Mode = words[6]
	e.UID, e.GID = words[7], words[8]
	e.Size = words[9]
	copy(e.ID[:], body[pos:pos+object.IDSize])
	pos += object.IDSize
	e.Flags = binary.BigEndian.Uint16(body[pos:])
	pos += 2

	if e.Flags&indexExtendedFlag != 0 {
		if pos+2 > len(body) {
			return IndexEntry{}, 0, object.ErrTruncatedInput
		}
		e.ExtFlags = binary.BigEndian.Uint16(body[pos:])
		pos += 2
	}

	nameLen := int(e.Flags & indexNameMask)
	if nameLen == indexNameMask {
		nul := bytes.IndexByte(body[pos:], 0)
		if nul < 0 {
			return IndexEntry{}, 0, object.ErrTruncatedInput
		}
		nameLen = nul
	}
	if pos+nameLen >= len(body) {
		return IndexEntry{}, 0, object.ErrTruncatedInput
	}
	e.Path = string(body[pos : pos+nameLen])
	pos += nameLen

	next := start + paddedEntrySize(pos-start)
	if next > len(body) {
		return IndexEntry{}, 0, object.ErrTruncatedInput
	}
	return e, next, nil
}

// paddedEntrySize rounds an entry up to a multiple of 8, always leaving at
// least one NUL after the path.
func paddedEntrySize(n int) int {
	return (n + 8) &^ 7
}

// MarshalBinary encodes the index with its checksum trailer. The name length
// bits of each entry's flags are recomputed from Path.
func (idx *Index) MarshalBinary() ([]byte, error) {
	version := idx.Version
	if version == 0 {
		version = 2
	}
	if version != 2 && version != 3 {
		return nil, fmt.Errorf("marshal index: version %d: %w", version, object.ErrUnsupportedIndexVersion)
	}

	var buf bytes.Buffer
	buf.WriteString(indexMagic)
	_ = binary.Write(&buf, binary.BigEndian, version)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(idx.Entries)))

	for _, e := range idx.Entries {
		start := buf.Len()
		words := [10]uint32{
			e.CTime, e.CTimeNsec, e.MTime, e.MTimeNsec,
			e.Dev, e.Ino, e.Mode, e.UID, e.GID, e.Size,
		}
		_ = binary.Write(&buf, binary.BigEndian, words)
		buf.Write(e.ID[:])

		flags := e.Flags&^indexNameMask | uint16(min(len(e.Path), indexNameMask))
		if version < 3 {
			flags &^= indexExtendedFlag
		}
		_ = binary.Write(&buf, binary.BigEndian, flags)
		if flags&indexExtendedFlag != 0 {
			_ = binary.Write(&buf, binary.BigEndian, e.ExtFlags)
		}
		buf.WriteString(e.Path)

		written := buf.Len() - start
		buf.Write(make([]byte, paddedEntrySize(written)-written))
	}

	sum := object.HashBytes(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

// WriteIndexFile writes idx to path, replacing any existing file.
func WriteIndexFile(path string, idx *Index) error {
	data, err := idx.MarshalBinary()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-tmp-*")
	if err != nil {
		return fmt.Errorf("write index: tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write index: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write index: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write index: rename: %w", err)
	}
	return nil
}
