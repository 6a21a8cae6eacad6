package repo

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/odvcencio/gitkit/pkg/object"
	"github.com/sirupsen/logrus"
)

const (
	symbolicRefPrefix = "ref: "
	maxSymbolicDepth  = 5

	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// LoadRefs returns the refs under refs/<scope>/ (for example "heads" or
// "tags"), keyed by their name below that prefix. An empty scope loads
// every ref, keyed by the name below refs/. Loose ref files are read first;
// packed-refs only fills in names no loose file defines. Dangling symbolic
// refs and malformed ref files are left out.
func (r *Repo) LoadRefs(scope string) (map[string]object.ID, error) {
	prefix := "refs/"
	if s := strings.Trim(scope, "/"); s != "" {
		prefix += s + "/"
	}
	root := filepath.Join(r.GitDir, filepath.FromSlash(prefix))

	refs := make(map[string]object.ID)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".lock") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		id, err := r.ResolveRef(prefix + name)
		if errors.Is(err, ErrRefNotFound) {
			// dangling symbolic ref
			return nil
		}
		if errors.Is(err, ErrMalformedRef) {
			logrus.WithFields(logrus.Fields{"ref": prefix + name, "error": err}).Warn("load refs: skipping malformed ref")
			return nil
		}
		if err != nil {
			return err
		}
		refs[name] = id
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load refs %s: %w", scope, err)
	}

	packed, err := r.PackedRefs()
	if err != nil {
		return nil, fmt.Errorf("load refs %s: %w", scope, err)
	}
	for full, id := range packed {
		name, ok := strings.CutPrefix(full, prefix)
		if !ok {
			continue
		}
		if _, exists := refs[name]; exists {
			continue
		}
		refs[name] = id
	}
	return refs, nil
}

// Branches returns the local branch names, sorted.
func (r *Repo) Branches() ([]string, error) {
	return r.refNames("heads")
}

// Tags returns the tag names, sorted.
func (r *Repo) Tags() ([]string, error) {
	return r.refNames("tags")
}

func (r *Repo) refNames(scope string) ([]string, error) {
	refs, err := r.LoadRefs(scope)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// PackedRefs parses <gitDir>/packed-refs into full ref name -> id. Comment
// lines and peeled ("^id") lines are skipped. A missing file yields an empty
// map.
func (r *Repo) PackedRefs() (map[string]object.ID, error) {
	data, err := os.ReadFile(filepath.Join(r.GitDir, "packed-refs"))
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]object.ID{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read packed-refs: %w", err)
	}
	return ParsePackedRefs(data), nil
}

// ParsePackedRefs parses packed-refs content. Lines that do not hold a
// 40-hex id followed by a ref name are ignored.
func ParsePackedRefs(data []byte) map[string]object.ID {
	refs := make(map[string]object.ID)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		hex, name, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		id, err := object.ParseID(hex)
		if err != nil {
			continue
		}
		refs[strings.TrimSpace(name)] = id
	}
	return refs
}

// Head returns HEAD's symbolic target (e.g. "refs/heads/main"), or the raw
// id text when HEAD is detached.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.GitDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(content, symbolicRefPrefix); ok {
		return strings.TrimSpace(target), nil
	}
	return content, nil
}

// CurrentBranch returns the branch HEAD points at, or "" when detached.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	if name, ok := strings.CutPrefix(head, "refs/heads/"); ok {
		return name, nil
	}
	return "", nil
}

// ResolveRef resolves a full ref name ("HEAD", "refs/heads/main") to an id.
// Loose files win over packed-refs. Symbolic refs ("ref: <target>") are
// followed up to a fixed depth.
func (r *Repo) ResolveRef(name string) (object.ID, error) {
	current := name
	for depth := 0; depth <= maxSymbolicDepth; depth++ {
		value, found, err := r.readRefValue(current)
		if err != nil {
			return object.ZeroID, err
		}
		if !found {
			return object.ZeroID, fmt.Errorf("resolve %q: %w", name, ErrRefNotFound)
		}
		if target, ok := strings.CutPrefix(value, symbolicRefPrefix); ok {
			current = strings.TrimSpace(target)
			continue
		}
		id, err := object.ParseID(value)
		if err != nil {
			return object.ZeroID, fmt.Errorf("resolve %q: %w: %w", name, ErrMalformedRef, err)
		}
		return id, nil
	}
	return object.ZeroID, fmt.Errorf("resolve %q: %w: symbolic ref chain deeper than %d", name, ErrMalformedRef, maxSymbolicDepth)
}

// readRefValue returns the trimmed content of a loose ref file, or the id
// recorded for it in packed-refs. found is false when neither has it.
func (r *Repo) readRefValue(name string) (string, bool, error) {
	if name != "HEAD" && !strings.HasPrefix(name, "refs/") {
		return "", false, fmt.Errorf("invalid ref name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(r.GitDir, filepath.FromSlash(name)))
	switch {
	case err == nil:
		return strings.TrimSpace(string(data)), true, nil
	case errors.Is(err, fs.ErrNotExist):
	default:
		return "", false, fmt.Errorf("read ref %q: %w", name, err)
	}

	packed, err := r.PackedRefs()
	if err != nil {
		return "", false, err
	}
	if id, ok := packed[name]; ok {
		return id.String(), true, nil
	}
	return "", false, nil
}

// ResolveBranch resolves a short branch name.
func (r *Repo) ResolveBranch(name string) (object.ID, error) {
	id, err := r.ResolveRef("refs/heads/" + name)
	if errors.Is(err, ErrRefNotFound) {
		return object.ZeroID, fmt.Errorf("%q: %w", name, ErrBranchNotFound)
	}
	return id, err
}

// ResolveTag resolves a short tag name to the id the tag ref stores, which
// is an annotated tag object or a direct commit.
func (r *Repo) ResolveTag(name string) (object.ID, error) {
	return r.ResolveRef("refs/tags/" + name)
}

// WriteRef points the named ref at id using lockfile + rename.
func (r *Repo) WriteRef(name string, id object.ID) error {
	return r.writeRefFile(name, id.String()+"\n")
}

// WriteSymbolicRef makes name (usually HEAD) a symbolic ref to target.
func (r *Repo) WriteSymbolicRef(name, target string) error {
	return r.writeRefFile(name, symbolicRefPrefix+target+"\n")
}

func (r *Repo) writeRefFile(name, content string) error {
	if name != "HEAD" && !strings.HasPrefix(name, "refs/") {
		return fmt.Errorf("update ref %q: invalid ref name", name)
	}
	refPath := filepath.Join(r.GitDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	if _, err := lockFile.WriteString(content); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false
	return nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}
