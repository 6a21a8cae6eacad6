package repo

import (
	"fmt"
	"path"
	"sort"

	"github.com/odvcencio/gitkit/pkg/object"
)

// TreeFileEntry represents a single non-directory entry in a flattened tree.
type TreeFileEntry struct {
	Path string
	ID   object.ID
	Mode uint32
}

// ChangeKind classifies a TreeDiff result.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// Change is one path that differs between two trees. OldID is zero for
// additions, NewID is zero for deletions.
type Change struct {
	Kind    ChangeKind
	Path    string
	OldID   object.ID
	NewID   object.ID
	OldMode uint32
	NewMode uint32
}

// FlattenTree walks a tree object and returns every non-directory entry with
// its full slash-separated path, sorted by path. Gitlinks are returned as
// entries; they are never descended into.
func (r *Repo) FlattenTree(id object.ID) ([]TreeFileEntry, error) {
	type frame struct {
		prefix string
		id     object.ID
	}

	var result []TreeFileEntry
	stack := []frame{{id: id}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := r.Store.ReadTree(top.id)
		if err != nil {
			return nil, fmt.Errorf("flatten tree: read %s: %w", top.id, err)
		}

		var subtrees []frame
		for _, e := range entries {
			full := joinTreePath(top.prefix, e.Name)
			if e.IsDir && !e.IsGitlink() {
				subtrees = append(subtrees, frame{prefix: full, id: e.ID})
				continue
			}
			result = append(result, TreeFileEntry{Path: full, ID: e.ID, Mode: e.Mode})
		}
		for i := len(subtrees) - 1; i >= 0; i-- {
			stack = append(stack, subtrees[i])
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}

func joinTreePath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// TreeDiff compares tree against base and reports the files that were added,
// modified or deleted going from base to tree. A zero base is the empty
// tree. Subtrees present on both sides are compared entry by entry; a path
// that switches between file and directory shows up as a deletion plus
// additions. Results are sorted by path.
func (r *Repo) TreeDiff(tree, base object.ID) ([]Change, error) {
	type pair struct {
		prefix  string
		newTree object.ID
		oldTree object.ID
	}

	var changes []Change
	work := []pair{{newTree: tree, oldTree: base}}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]

		newEntries, err := r.readTreeOrEmpty(p.newTree)
		if err != nil {
			return nil, fmt.Errorf("tree diff: %w", err)
		}
		oldEntries, err := r.readTreeOrEmpty(p.oldTree)
		if err != nil {
			return nil, fmt.Errorf("tree diff: %w", err)
		}

		oldByName := make(map[string]object.TreeEntry, len(oldEntries))
		for _, e := range oldEntries {
			oldByName[e.Name] = e
		}
		newByName := make(map[string]struct{}, len(newEntries))

		for _, ne := range newEntries {
			newByName[ne.Name] = struct{}{}
			full := joinTreePath(p.prefix, ne.Name)
			oe, existed := oldByName[ne.Name]

			newDir := isSubtree(ne)
			switch {
			case !existed:
				if newDir {
					work = append(work, pair{prefix: full, newTree: ne.ID})
				} else {
					changes = append(changes, Change{Kind: ChangeAdded, Path: full, NewID: ne.ID, NewMode: ne.Mode})
				}
			case ne.ID == oe.ID && ne.Mode == oe.Mode:
			case newDir && isSubtree(oe):
				work = append(work, pair{prefix: full, newTree: ne.ID, oldTree: oe.ID})
			case newDir:
				changes = append(changes, Change{Kind: ChangeDeleted, Path: full, OldID: oe.ID, OldMode: oe.Mode})
				work = append(work, pair{prefix: full, newTree: ne.ID})
			case isSubtree(oe):
				changes = append(changes, Change{Kind: ChangeAdded, Path: full, NewID: ne.ID, NewMode: ne.Mode})
				work = append(work, pair{prefix: full, oldTree: oe.ID})
			default:
				changes = append(changes, Change{
					Kind: ChangeModified, Path: full,
					OldID: oe.ID, NewID: ne.ID,
					OldMode: oe.Mode, NewMode: ne.Mode,
				})
			}
		}

		for _, oe := range oldEntries {
			if _, ok := newByName[oe.Name]; ok {
				continue
			}
			full := joinTreePath(p.prefix, oe.Name)
			if isSubtree(oe) {
				work = append(work, pair{prefix: full, oldTree: oe.ID})
				continue
			}
			changes = append(changes, Change{Kind: ChangeDeleted, Path: full, OldID: oe.ID, OldMode: oe.Mode})
		}
	}

	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].Path != changes[j].Path {
			return changes[i].Path < changes[j].Path
		}
		return changes[i].Kind > changes[j].Kind
	})
	return changes, nil
}

// isSubtree reports whether e is a directory the walkers descend into.
func isSubtree(e object.TreeEntry) bool {
	return e.IsDir && !e.IsGitlink()
}

func (r *Repo) readTreeOrEmpty(id object.ID) ([]object.TreeEntry, error) {
	if id.IsZero() {
		return nil, nil
	}
	entries, err := r.Store.ReadTree(id)
	if err != nil {
		return nil, fmt.Errorf("read tree %s: %w", id, err)
	}
	return entries, nil
}
