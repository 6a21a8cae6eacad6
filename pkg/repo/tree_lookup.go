package repo

import (
	"fmt"
	"strings"

	"github.com/odvcencio/gitkit/pkg/object"
)

// EntryAtPath looks up a slash-separated path below treeID. found is false
// when any component is missing or an intermediate component is not a
// directory. Directory entries can be returned for the last component.
func (r *Repo) EntryAtPath(treeID object.ID, relPath string) (object.TreeEntry, bool, error) {
	relPath = strings.Trim(relPath, "/")
	if relPath == "" {
		return object.TreeEntry{Mode: object.ModeDir, ID: treeID, IsDir: true}, true, nil
	}

	parts := strings.Split(relPath, "/")
	current := treeID
	for i, part := range parts {
		entries, err := r.Store.ReadTree(current)
		if err != nil {
			return object.TreeEntry{}, false, fmt.Errorf("read tree %s: %w", current, err)
		}

		var (
			entry object.TreeEntry
			found bool
		)
		for _, te := range entries {
			if te.Name == part {
				entry = te
				found = true
				break
			}
		}
		if !found {
			return object.TreeEntry{}, false, nil
		}

		if i == len(parts)-1 {
			return entry, true, nil
		}
		if !isSubtree(entry) {
			return object.TreeEntry{}, false, nil
		}
		current = entry.ID
	}

	return object.TreeEntry{}, false, nil
}
