package object

import (
	"bytes"
	"fmt"
	"sort"
)

// ReachableSet returns every object reachable from roots by following commit
// trees and parents, tree entries and tag targets. Referenced objects that are
// not in the store are returned in missing rather than failing the walk.
// Gitlink entries name commits in other repositories and are not followed.
func (s *Store) ReachableSet(roots []ID) (map[ID]struct{}, []ID, error) {
	roots = uniqueIDs(roots)
	out := make(map[ID]struct{}, len(roots))
	missingSet := make(map[ID]struct{})

	stack := make([]ID, 0, len(roots))
	stack = append(stack, roots...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id.IsZero() {
			continue
		}
		if _, ok := out[id]; ok {
			continue
		}
		if _, ok := missingSet[id]; ok {
			continue
		}
		if !s.Has(id) {
			missingSet[id] = struct{}{}
			continue
		}
		out[id] = struct{}{}

		objType, data, err := s.Read(id)
		if err != nil {
			return nil, nil, fmt.Errorf("reachable set read %s: %w", id, err)
		}
		refs, err := referencedIDs(objType, data)
		if err != nil {
			return nil, nil, fmt.Errorf("reachable set parse %s (%s): %w", id, objType, err)
		}
		stack = append(stack, refs...)
	}

	missing := make([]ID, 0, len(missingSet))
	for id := range missingSet {
		missing = append(missing, id)
	}
	sortIDs(missing)
	return out, missing, nil
}

func referencedIDs(objType ObjectType, data []byte) ([]ID, error) {
	switch objType {
	case TypeBlob:
		return nil, nil
	case TypeTag:
		tag, err := ParseTag(data)
		if err != nil {
			return nil, err
		}
		return []ID{tag.Object}, nil
	case TypeCommit:
		commit, err := ParseCommit(data)
		if err != nil {
			return nil, err
		}
		refs := make([]ID, 0, 1+len(commit.Parents))
		refs = append(refs, commit.Tree)
		refs = append(refs, commit.Parents...)
		return refs, nil
	case TypeTree:
		entries, err := ParseTree(data)
		if err != nil {
			return nil, err
		}
		refs := make([]ID, 0, len(entries))
		for _, e := range entries {
			if e.IsGitlink() {
				continue
			}
			refs = append(refs, e.ID)
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("unsupported object type %q", objType)
	}
}

func uniqueIDs(in []ID) []ID {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[ID]struct{}, len(in))
	out := make([]ID, 0, len(in))
	for _, id := range in {
		if id.IsZero() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
