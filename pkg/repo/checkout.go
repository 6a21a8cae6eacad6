package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitkit/pkg/object"
)

// ErrUnsafePath means a tree entry would escape or corrupt the working tree:
// a name of ".", "..", ".git" or one containing a separator, a name listed
// twice in one tree, or a path whose parent on disk is not a real directory.
var ErrUnsafePath = errors.New("unsafe path in tree")

// Checkout writes the tree of commitID into workDir and records every
// written file in <gitDir>/index, replacing any previous index. Files
// already on disk are overwritten. Files listed in the previous index that
// the new tree does not contain are removed when workDir is the
// repository's own working tree.
//
// Entries are materialized in tree order (a pre-order walk), which is also
// the order the index requires. Symlinks are created as links and gitlinks
// as empty directories; gitlinks are not indexed.
func (r *Repo) Checkout(commitID object.ID, workDir string) (*Index, error) {
	commit, err := r.Store.ReadCommit(commitID)
	if err != nil {
		return nil, fmt.Errorf("checkout: read commit %s: %w", commitID, err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	type item struct {
		path  string // slash-separated, relative to workDir
		entry object.TreeEntry
	}

	root, err := r.Store.ReadTree(commit.Tree)
	if err != nil {
		return nil, fmt.Errorf("checkout: read tree %s: %w", commit.Tree, err)
	}
	var stack []item
	pushTree := func(prefix string, entries []object.TreeEntry) error {
		seen := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			if !validTreeName(e.Name) {
				return fmt.Errorf("checkout: %q in %q: %w", e.Name, prefix, ErrUnsafePath)
			}
			if _, dup := seen[e.Name]; dup {
				return fmt.Errorf("checkout: %q listed twice in %q: %w", e.Name, prefix, ErrUnsafePath)
			}
			seen[e.Name] = struct{}{}
		}
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			stack = append(stack, item{path: joinTreePath(prefix, e.Name), entry: e})
		}
		return nil
	}
	if err := pushTree("", root); err != nil {
		return nil, err
	}

	guard := &worktreeGuard{root: workDir, verified: make(map[string]struct{})}
	idx := &Index{Version: 2}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		abs := filepath.Join(workDir, filepath.FromSlash(it.path))
		if err := guard.checkParents(it.path); err != nil {
			return nil, fmt.Errorf("checkout: %w", err)
		}

		switch {
		case it.entry.IsGitlink():
			if err := replaceWithDir(abs); err != nil {
				return nil, fmt.Errorf("checkout: %w", err)
			}
			continue
		case it.entry.IsDir:
			if err := replaceWithDir(abs); err != nil {
				return nil, fmt.Errorf("checkout: %w", err)
			}
			sub, err := r.Store.ReadTree(it.entry.ID)
			if err != nil {
				return nil, fmt.Errorf("checkout: read tree %s (%s): %w", it.entry.ID, it.path, err)
			}
			if err := pushTree(it.path, sub); err != nil {
				return nil, err
			}
			continue
		}

		if err := r.writeWorktreeEntry(abs, it.entry); err != nil {
			return nil, fmt.Errorf("checkout: %s: %w", it.path, err)
		}
		ie := IndexEntry{
			Mode: indexModeFor(it.entry.Mode),
			ID:   it.entry.ID,
			Path: it.path,
		}
		if err := fillStat(&ie, abs); err != nil {
			return nil, fmt.Errorf("checkout: %w", err)
		}
		ie.Flags = uint16(min(len(it.path), indexNameMask))
		idx.Entries = append(idx.Entries, ie)
	}

	if r.WorkDir != "" && sameDir(workDir, r.WorkDir) {
		if err := r.removeStaleFiles(idx); err != nil {
			return nil, fmt.Errorf("checkout: %w", err)
		}
	}
	if err := WriteIndexFile(r.indexPath(), idx); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	return idx, nil
}

// writeWorktreeEntry writes one blob or symlink, replacing what is there.
func (r *Repo) writeWorktreeEntry(abs string, e object.TreeEntry) error {
	data, err := r.Store.ReadBlob(e.ID)
	if err != nil {
		return err
	}
	if err := removeIfNotDir(abs); err != nil {
		return err
	}
	if e.IsSymlink() {
		return os.Symlink(string(data), abs)
	}
	perm := filePermFromMode(e.Mode)
	if err := os.WriteFile(abs, data, perm); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file and is subject to umask.
	return os.Chmod(abs, perm)
}

// worktreeGuard checks that every parent of a path being written is a real
// directory under root, so a symlink can never redirect a write.
type worktreeGuard struct {
	root     string
	verified map[string]struct{} // slash-separated dirs already checked
}

func (g *worktreeGuard) checkParents(rel string) error {
	dir := path.Dir(rel)
	if dir == "." {
		return nil
	}
	walked := ""
	for _, part := range strings.Split(dir, "/") {
		walked = joinTreePath(walked, part)
		if _, ok := g.verified[walked]; ok {
			continue
		}
		info, err := os.Lstat(filepath.Join(g.root, filepath.FromSlash(walked)))
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("parent %q of %q is not a directory: %w", walked, rel, ErrUnsafePath)
		}
		g.verified[walked] = struct{}{}
	}
	return nil
}

// replaceWithDir makes abs a directory, removing a file or symlink that is
// in the way. It never follows a symlink at abs.
func replaceWithDir(abs string) error {
	info, err := os.Lstat(abs)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		if err := os.Remove(abs); err != nil {
			return err
		}
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}
	return os.Mkdir(abs, 0o755)
}

func removeIfNotDir(abs string) error {
	info, err := os.Lstat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", abs)
	}
	return os.Remove(abs)
}

// removeStaleFiles deletes files recorded in the current index that next
// does not contain, then prunes directories left empty.
func (r *Repo) removeStaleFiles(next *Index) error {
	prev, err := r.ReadIndex()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	keep := make(map[string]struct{}, len(next.Entries))
	for _, e := range next.Entries {
		keep[e.Path] = struct{}{}
	}
	for _, e := range prev.Entries {
		if _, ok := keep[e.Path]; ok {
			continue
		}
		abs := filepath.Join(r.WorkDir, filepath.FromSlash(e.Path))
		if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %q: %w", e.Path, err)
		}
		r.removeEmptyParents(filepath.Dir(abs))
	}
	return nil
}

// removeEmptyParents removes empty directories up to (but not including)
// the working tree root.
func (r *Repo) removeEmptyParents(dir string) {
	for {
		if dir == r.WorkDir || !strings.HasPrefix(dir, r.WorkDir) {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}

		os.Remove(dir)
		dir = filepath.Dir(dir)
	}
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
