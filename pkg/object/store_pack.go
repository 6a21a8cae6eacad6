package object

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// entryPrefixSize bounds the bytes needed to decode a pack entry header plus
// its OFS distance or REF base id.
const entryPrefixSize = 64

// maxDeltaDepth bounds both the OFS_DELTA links walked for one entry and the
// nesting of REF_DELTA bases read through Read.
const maxDeltaDepth = 4096

// GCSummary reports the outcome of Store.GC.
type GCSummary struct {
	PackedObjects int
	PackFile      string
	IndexFile     string
}

// VerifySummary reports the outcome of Store.Verify.
type VerifySummary struct {
	LooseObjects int
	PackFiles    int
	PackObjects  int
}

// packEntry is one raw pack record: its header and inflated payload. For
// delta entries the payload is the delta stream.
type packEntry struct {
	typ        PackObjectType
	data       []byte
	baseOffset uint64
	baseID     ID
}

// readPacked reports found=false, without error, when no pack indexes id.
func (s *Store) readPacked(id ID) (ObjectType, []byte, bool, error) {
	packPath, entry, found, err := s.findPacked(id)
	if err != nil || !found {
		return "", nil, false, err
	}
	objType, data, err := s.readPackObject(packPath, entry.Offset)
	if err != nil {
		return "", nil, false, fmt.Errorf("object read %s: pack %s: %w", id, filepath.Base(packPath), err)
	}
	return objType, data, true, nil
}

// findPacked searches each pack index in lexical order of its file name.
func (s *Store) findPacked(id ID) (string, PackIndexEntry, bool, error) {
	idxPaths, err := s.listPackIndexPaths()
	if err != nil {
		return "", PackIndexEntry{}, false, err
	}
	for _, idxPath := range idxPaths {
		idx, err := s.packIndex(idxPath)
		if err != nil {
			return "", PackIndexEntry{}, false, err
		}
		if entry, ok := idx.Find(id); ok {
			return packPathForIndex(idxPath), entry, true, nil
		}
	}
	return "", PackIndexEntry{}, false, nil
}

func (s *Store) packIndex(idxPath string) (*PackIndex, error) {
	if idx, ok := s.indexes[idxPath]; ok {
		return idx, nil
	}
	idx, err := ReadPackIndexFile(idxPath)
	if err != nil {
		return nil, fmt.Errorf("pack index %s: %w", filepath.Base(idxPath), err)
	}
	s.indexes[idxPath] = idx
	return idx, nil
}

func (s *Store) packFile(packPath string) (*os.File, error) {
	if f, ok := s.packs[packPath]; ok {
		return f, nil
	}
	f, err := os.Open(packPath)
	if err != nil {
		return nil, err
	}
	var raw [packHeaderSize]byte
	if _, err := f.ReadAt(raw[:], 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("read pack header: %w", err)
	}
	if _, err := UnmarshalPackHeader(raw[:]); err != nil {
		f.Close()
		return nil, err
	}
	s.packs[packPath] = f
	return f, nil
}

// readPackObject resolves the object at offset, following OFS_DELTA links
// within the pack and REF_DELTA links through Read. Deltas are collected
// walking back to the base and then applied in reverse order.
func (s *Store) readPackObject(packPath string, offset uint64) (ObjectType, []byte, error) {
	f, err := s.packFile(packPath)
	if err != nil {
		return "", nil, err
	}

	var deltas [][]byte
	cur := offset
	for {
		entry, err := readPackEntryAt(f, cur)
		if err != nil {
			return "", nil, fmt.Errorf("entry at offset %d: %w", cur, err)
		}

		if len(deltas) >= maxDeltaDepth {
			return "", nil, fmt.Errorf("%w: delta chain deeper than %d", ErrMalformedObject, maxDeltaDepth)
		}

		switch entry.typ {
		case PackOfsDelta:
			deltas = append(deltas, entry.data)
			cur = entry.baseOffset
		case PackRefDelta:
			deltas = append(deltas, entry.data)
			baseType, base, err := s.Read(entry.baseID)
			if err != nil {
				return "", nil, fmt.Errorf("delta base %s: %w", entry.baseID, err)
			}
			return applyDeltaChain(baseType, base, deltas)
		default:
			objType, ok := entry.typ.ObjectType()
			if !ok {
				return "", nil, fmt.Errorf("%w: unknown pack object type %d", ErrMalformedObject, entry.typ)
			}
			return applyDeltaChain(objType, entry.data, deltas)
		}
	}
}

// applyDeltaChain applies deltas, collected nearest-first, to base.
func applyDeltaChain(objType ObjectType, base []byte, deltas [][]byte) (ObjectType, []byte, error) {
	data := base
	for i := len(deltas) - 1; i >= 0; i-- {
		out, err := ApplyDelta(data, deltas[i])
		if err != nil {
			return "", nil, err
		}
		data = out
	}
	return objType, data, nil
}

// readPackEntryAt decodes the entry header at offset and inflates exactly the
// declared number of payload bytes.
func readPackEntryAt(r io.ReaderAt, offset uint64) (packEntry, error) {
	var prefix [entryPrefixSize]byte
	n, err := r.ReadAt(prefix[:], int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return packEntry{}, err
	}
	buf := prefix[:n]

	typ, size, pos, err := DecodePackEntryHeader(buf, 0)
	if err != nil {
		return packEntry{}, err
	}
	entry := packEntry{typ: typ}

	switch typ {
	case PackOfsDelta:
		dist, next, err := DecodeOffsetVarint(buf, pos)
		if err != nil {
			return packEntry{}, err
		}
		if dist == 0 || dist > offset {
			return packEntry{}, fmt.Errorf("%w: delta base distance %d from offset %d", ErrMalformedObject, dist, offset)
		}
		entry.baseOffset = offset - dist
		pos = next
	case PackRefDelta:
		if len(buf) < pos+IDSize {
			return packEntry{}, fmt.Errorf("%w: ref delta base id", ErrTruncatedInput)
		}
		copy(entry.baseID[:], buf[pos:pos+IDSize])
		pos += IDSize
	}

	section := io.NewSectionReader(r, int64(offset)+int64(pos), 1<<62)
	zr, err := zlib.NewReader(section)
	if err != nil {
		return packEntry{}, fmt.Errorf("zlib: %w", err)
	}
	defer zr.Close()

	var out bytes.Buffer
	out.Grow(int(min(size, 1<<20)))
	copied, err := io.CopyN(&out, zr, int64(size))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return packEntry{}, fmt.Errorf("%w: inflated %d of %d bytes", ErrTruncatedInput, copied, size)
		}
		return packEntry{}, fmt.Errorf("inflate: %w", err)
	}
	var extra [1]byte
	if n, _ := zr.Read(extra[:]); n != 0 {
		return packEntry{}, fmt.Errorf("%w: payload longer than declared %d bytes", ErrMalformedObject, size)
	}
	entry.data = out.Bytes()
	return entry, nil
}

// GC packs loose objects that are not already indexed by an existing pack idx.
// It is non-destructive: loose objects remain on disk.
func (s *Store) GC() (*GCSummary, error) {
	looseIDs, err := s.listLooseObjectIDs()
	if err != nil {
		return nil, err
	}
	packed, err := s.packedIDSet()
	if err != nil {
		return nil, err
	}

	toPack := make([]ID, 0, len(looseIDs))
	for _, id := range looseIDs {
		if _, ok := packed[id]; ok {
			continue
		}
		toPack = append(toPack, id)
	}
	if len(toPack) == 0 {
		return &GCSummary{}, nil
	}
	if len(toPack) > int(^uint32(0)) {
		return nil, fmt.Errorf("gc: too many objects to pack: %d", len(toPack))
	}

	packDir := filepath.Join(s.root, "objects", "pack")
	if err := os.MkdirAll(packDir, 0o755); err != nil {
		return nil, fmt.Errorf("gc: mkdir pack dir: %w", err)
	}

	packTmp, err := os.CreateTemp(packDir, ".tmp-pack-*.pack")
	if err != nil {
		return nil, fmt.Errorf("gc: create pack temp file: %w", err)
	}
	packTmpPath := packTmp.Name()
	packTmpRemoved := false
	defer func() {
		if !packTmpRemoved {
			_ = os.Remove(packTmpPath)
		}
	}()

	pw, err := NewPackWriter(packTmp, uint32(len(toPack)))
	if err != nil {
		_ = packTmp.Close()
		return nil, fmt.Errorf("gc: create pack writer: %w", err)
	}

	indexEntries := make([]PackIndexEntry, 0, len(toPack))
	for _, id := range toPack {
		objType, content, found, err := s.readLoose(id)
		if err == nil && !found {
			err = ErrObjectNotFound
		}
		if err != nil {
			_ = packTmp.Close()
			return nil, fmt.Errorf("gc: read loose object %s: %w", id, err)
		}
		entry, err := pw.WriteObject(objType, content)
		if err != nil {
			_ = packTmp.Close()
			return nil, fmt.Errorf("gc: write pack entry %s: %w", id, err)
		}
		indexEntries = append(indexEntries, entry)
	}

	packChecksum, err := pw.Finish()
	if err != nil {
		_ = packTmp.Close()
		return nil, fmt.Errorf("gc: finalize pack: %w", err)
	}
	if err := packTmp.Close(); err != nil {
		return nil, fmt.Errorf("gc: close pack temp file: %w", err)
	}

	packBase := "pack-" + packChecksum.String()
	packPath := filepath.Join(packDir, packBase+".pack")
	idxPath := filepath.Join(packDir, packBase+".idx")
	if err := os.Rename(packTmpPath, packPath); err != nil {
		return nil, fmt.Errorf("gc: rename pack file: %w", err)
	}
	packTmpRemoved = true

	var idxBuf bytes.Buffer
	if _, err := WritePackIndex(&idxBuf, indexEntries, packChecksum); err != nil {
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("gc: write pack index: %w", err)
	}
	if err := writeFileAtomic(idxPath, idxBuf.Bytes(), 0o444); err != nil {
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("gc: write pack index: %w", err)
	}

	return &GCSummary{
		PackedObjects: len(toPack),
		PackFile:      filepath.Base(packPath),
		IndexFile:     filepath.Base(idxPath),
	}, nil
}

// Verify checks that every loose object and every indexed pack entry decodes
// and hashes to its id.
func (s *Store) Verify() (*VerifySummary, error) {
	report := &VerifySummary{}

	looseIDs, err := s.listLooseObjectIDs()
	if err != nil {
		return nil, err
	}
	for _, id := range looseIDs {
		objType, content, _, err := s.readLoose(id)
		if err != nil {
			return nil, fmt.Errorf("verify loose %s: %w", id, err)
		}
		if actual := HashObject(objType, content); actual != id {
			return nil, fmt.Errorf("verify loose %s: %w (computed %s)", id, ErrHashMismatch, actual)
		}
		report.LooseObjects++
	}

	idxPaths, err := s.listPackIndexPaths()
	if err != nil {
		return nil, err
	}
	for _, idxPath := range idxPaths {
		idx, err := s.packIndex(idxPath)
		if err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}
		packPath := packPathForIndex(idxPath)
		if err := verifyPackChecksum(packPath, idx.PackChecksum); err != nil {
			return nil, fmt.Errorf("verify pack %s: %w", filepath.Base(packPath), err)
		}
		for _, entry := range idx.Entries() {
			objType, data, err := s.readPackObject(packPath, entry.Offset)
			if err != nil {
				return nil, fmt.Errorf("verify pack %s object %s: %w", filepath.Base(packPath), entry.ID, err)
			}
			if actual := HashObject(objType, data); actual != entry.ID {
				return nil, fmt.Errorf("verify pack %s object %s: %w (computed %s)", filepath.Base(packPath), entry.ID, ErrHashMismatch, actual)
			}
			report.PackObjects++
		}
		report.PackFiles++
	}

	return report, nil
}

// verifyPackChecksum compares the trailing SHA-1 of a pack with the checksum
// recorded in its index.
func verifyPackChecksum(packPath string, want ID) error {
	data, err := os.ReadFile(packPath)
	if err != nil {
		return err
	}
	if len(data) < packHeaderSize+IDSize {
		return fmt.Errorf("%w: pack shorter than header and trailer", ErrTruncatedInput)
	}
	body := data[:len(data)-IDSize]
	var trailer ID
	copy(trailer[:], data[len(data)-IDSize:])
	if trailer != want {
		return fmt.Errorf("%w: idx records pack checksum %s, pack trailer is %s", ErrCorruptIndex, want, trailer)
	}
	if computed := HashBytes(body); computed != trailer {
		return fmt.Errorf("%w: pack trailer %s, content hashes to %s", ErrHashMismatch, trailer, computed)
	}
	return nil
}

// PackedIDs returns every id recorded in the store's pack indexes.
func (s *Store) PackedIDs() ([]ID, error) {
	set, err := s.packedIDSet()
	if err != nil {
		return nil, err
	}
	out := make([]ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sortIDs(out)
	return out, nil
}

// LooseIDs returns every loose object id, sorted.
func (s *Store) LooseIDs() ([]ID, error) {
	return s.listLooseObjectIDs()
}

func (s *Store) packedIDSet() (map[ID]struct{}, error) {
	idxPaths, err := s.listPackIndexPaths()
	if err != nil {
		return nil, err
	}

	out := make(map[ID]struct{})
	for _, idxPath := range idxPaths {
		idx, err := s.packIndex(idxPath)
		if err != nil {
			return nil, err
		}
		for _, entry := range idx.Entries() {
			out[entry.ID] = struct{}{}
		}
	}
	return out, nil
}

func (s *Store) listPackIndexPaths() ([]string, error) {
	packDir := filepath.Join(s.root, "objects", "pack")
	entries, err := os.ReadDir(packDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pack dir: %w", err)
	}

	idxPaths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".idx") {
			continue
		}
		idxPaths = append(idxPaths, filepath.Join(packDir, entry.Name()))
	}
	sort.Strings(idxPaths)
	return idxPaths, nil
}

func (s *Store) listLooseObjectIDs() ([]ID, error) {
	objectsDir := filepath.Join(s.root, "objects")
	fanoutDirs, err := os.ReadDir(objectsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read objects dir: %w", err)
	}

	var ids []ID
	for _, fanoutDir := range fanoutDirs {
		if !fanoutDir.IsDir() {
			continue
		}
		prefix := fanoutDir.Name()
		if !isHexComponent(prefix, 2) {
			continue
		}

		objectDir := filepath.Join(objectsDir, prefix)
		objectEntries, err := os.ReadDir(objectDir)
		if err != nil {
			return nil, fmt.Errorf("read objects fanout %s: %w", prefix, err)
		}
		for _, objectEntry := range objectEntries {
			if objectEntry.IsDir() {
				continue
			}
			suffix := objectEntry.Name()
			if !isHexComponent(suffix, 2*IDSize-2) {
				continue
			}
			id, err := ParseID(prefix + suffix)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}

	sortIDs(ids)
	return ids, nil
}

func isHexComponent(s string, expectedLen int) bool {
	if len(s) != expectedLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func packPathForIndex(idxPath string) string {
	return strings.TrimSuffix(idxPath, ".idx") + ".pack"
}
