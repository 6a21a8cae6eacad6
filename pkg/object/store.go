package object

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zlib"
)

// Store reads objects from a Git object database, either loose files with a
// 2-character fan-out layout (objects/ab/cdef0123...) or pack files under
// objects/pack. Resolved objects are cached for the lifetime of the Store.
//
// A Store is not safe for concurrent use.
type Store struct {
	root    string
	cache   *objectCache
	indexes map[string]*PackIndex
	packs   map[string]*os.File

	// resolving holds packed ids whose REF_DELTA bases are being read.
	resolving map[ID]struct{}
}

// NewStore creates a Store rooted at a git directory (the directory holding
// objects/). Nothing is opened until the first lookup.
func NewStore(root string) *Store {
	return &Store{
		root:    root,
		cache:   newObjectCache(),
		indexes:   make(map[string]*PackIndex),
		packs:     make(map[string]*os.File),
		resolving: make(map[ID]struct{}),
	}
}

// Root returns the git directory the store reads from.
func (s *Store) Root() string {
	return s.root
}

// Close releases every pack file opened by the store.
func (s *Store) Close() error {
	var errs []error
	for path, f := range s.packs {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pack %s: %w", filepath.Base(path), err))
		}
		delete(s.packs, path)
	}
	return errors.Join(errs...)
}

// LoosePath returns the filesystem path of the loose object file for id.
func (s *Store) LoosePath(id ID) string {
	hex := id.String()
	return filepath.Join(s.root, "objects", hex[:2], hex[2:])
}

// HasLoose reports whether id is stored as a loose object.
func (s *Store) HasLoose(id ID) bool {
	_, err := os.Stat(s.LoosePath(id))
	return err == nil
}

// Has reports whether id is available, loose or packed.
func (s *Store) Has(id ID) bool {
	if _, ok := s.cache.get(id); ok {
		return true
	}
	if s.HasLoose(id) {
		return true
	}
	_, _, ok, err := s.findPacked(id)
	return err == nil && ok
}

// Read resolves id to its type and content. The returned slice is shared
// with the cache and must not be modified.
func (s *Store) Read(id ID) (ObjectType, []byte, error) {
	if obj, ok := s.cache.get(id); ok {
		return obj.objType, obj.data, nil
	}

	objType, data, found, err := s.readLoose(id)
	if err != nil {
		return "", nil, err
	}
	if !found {
		if _, busy := s.resolving[id]; busy {
			return "", nil, fmt.Errorf("object %s: %w: delta cycle", id, ErrMalformedObject)
		}
		if len(s.resolving) >= maxDeltaDepth {
			return "", nil, fmt.Errorf("object %s: %w: delta chain deeper than %d", id, ErrMalformedObject, maxDeltaDepth)
		}
		s.resolving[id] = struct{}{}
		objType, data, found, err = s.readPacked(id)
		delete(s.resolving, id)
		if err != nil {
			return "", nil, err
		}
	}
	if !found {
		return "", nil, fmt.Errorf("object %s: %w", id, ErrObjectNotFound)
	}

	if computed := HashObject(objType, data); computed != id {
		return "", nil, fmt.Errorf("object %s: %w (content hashes to %s)", id, ErrHashMismatch, computed)
	}
	s.cache.put(id, objType, data)
	return objType, data, nil
}

// ReadAs resolves id and checks that it has the wanted type.
func (s *Store) ReadAs(id ID, want ObjectType) ([]byte, error) {
	objType, data, err := s.Read(id)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("object %s: %w: got %s, want %s", id, ErrUnexpectedObjectType, objType, want)
	}
	return data, nil
}

// ReadCommit reads and parses a commit.
func (s *Store) ReadCommit(id ID) (*Commit, error) {
	data, err := s.ReadAs(id, TypeCommit)
	if err != nil {
		return nil, err
	}
	c, err := ParseCommit(data)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", id, err)
	}
	return c, nil
}

// ReadTree reads and parses a tree.
func (s *Store) ReadTree(id ID) ([]TreeEntry, error) {
	data, err := s.ReadAs(id, TypeTree)
	if err != nil {
		return nil, err
	}
	entries, err := ParseTree(data)
	if err != nil {
		return nil, fmt.Errorf("tree %s: %w", id, err)
	}
	return entries, nil
}

// ReadTag reads and parses an annotated tag.
func (s *Store) ReadTag(id ID) (*Tag, error) {
	data, err := s.ReadAs(id, TypeTag)
	if err != nil {
		return nil, err
	}
	t, err := ParseTag(data)
	if err != nil {
		return nil, fmt.Errorf("tag %s: %w", id, err)
	}
	return t, nil
}

// ReadBlob reads a blob's content.
func (s *Store) ReadBlob(id ID) ([]byte, error) {
	return s.ReadAs(id, TypeBlob)
}

// Write stores a loose object and returns its id. The file holds the zlib
// compressed envelope "type len\0content". Writes are atomic: data is written
// to a temp file and then renamed into place.
func (s *Store) Write(objType ObjectType, data []byte) (ID, error) {
	id := HashObject(objType, data)

	// Fast path: already exists.
	if s.HasLoose(id) {
		return id, nil
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(objectHeader(objType, len(data))); err != nil {
		return ZeroID, fmt.Errorf("object write compress: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return ZeroID, fmt.Errorf("object write compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return ZeroID, fmt.Errorf("object write compress: %w", err)
	}

	dest := s.LoosePath(id)
	if err := writeFileAtomic(dest, buf.Bytes(), 0o444); err != nil {
		return ZeroID, fmt.Errorf("object write %s: %w", id, err)
	}
	return id, nil
}

// readLoose reports found=false, without error, when no loose file exists.
func (s *Store) readLoose(id ID) (ObjectType, []byte, bool, error) {
	raw, err := os.ReadFile(s.LoosePath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, fmt.Errorf("object read %s: %w", id, err)
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", nil, false, fmt.Errorf("object read %s: zlib: %w", id, err)
	}
	defer zr.Close()
	inflated, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, false, fmt.Errorf("object read %s: inflate: %w", id, err)
	}

	objType, content, err := parseObjectEnvelope(inflated)
	if err != nil {
		return "", nil, false, fmt.Errorf("object read %s: %w", id, err)
	}
	return objType, content, true, nil
}

// parseObjectEnvelope splits "type len\0content" and validates the length.
func parseObjectEnvelope(raw []byte) (ObjectType, []byte, error) {
	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		return "", nil, fmt.Errorf("%w: no NUL after object header", ErrMalformedObject)
	}
	typeName, sizeText, ok := bytes.Cut(raw[:nul], []byte(" "))
	if !ok {
		return "", nil, fmt.Errorf("%w: invalid object header %q", ErrMalformedObject, raw[:nul])
	}
	objType, err := ParseObjectType(string(typeName))
	if err != nil {
		return "", nil, err
	}
	size, err := strconv.Atoi(string(sizeText))
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid object length %q", ErrMalformedObject, sizeText)
	}
	content := raw[nul+1:]
	if len(content) != size {
		return "", nil, fmt.Errorf("%w: header says %d bytes, content has %d", ErrMalformedObject, size, len(content))
	}
	return objType, content, nil
}

func writeFileAtomic(dest string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
