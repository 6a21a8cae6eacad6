package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/gitkit/pkg/object"
)

// ErrRevisionNotFound means a revision string matched no id, ref or path.
var ErrRevisionNotFound = errors.New("revision not found")

// ResolveRevision turns a user-supplied revision into an object id. It
// accepts a 40-hex id, "HEAD", a full ref name, a branch or a tag name (in
// that order), optionally followed by ":path" to select an entry in the
// commit's tree.
func (r *Repo) ResolveRevision(rev string) (object.ID, error) {
	base, subPath, hasPath := strings.Cut(rev, ":")

	id, err := r.resolveRevisionBase(base)
	if err != nil {
		return object.ZeroID, err
	}
	if !hasPath {
		return id, nil
	}

	treeID, err := r.peelToTree(id)
	if err != nil {
		return object.ZeroID, fmt.Errorf("resolve %q: %w", rev, err)
	}
	entry, found, err := r.EntryAtPath(treeID, subPath)
	if err != nil {
		return object.ZeroID, fmt.Errorf("resolve %q: %w", rev, err)
	}
	if !found {
		return object.ZeroID, fmt.Errorf("resolve %q: %w", rev, ErrRevisionNotFound)
	}
	return entry.ID, nil
}

func (r *Repo) resolveRevisionBase(base string) (object.ID, error) {
	if base == "" {
		base = "HEAD"
	}
	if id, err := object.ParseID(base); err == nil {
		return id, nil
	}

	candidates := []string{base}
	if base != "HEAD" && !strings.HasPrefix(base, "refs/") {
		candidates = []string{"refs/heads/" + base, "refs/tags/" + base}
	}
	for _, name := range candidates {
		id, err := r.ResolveRef(name)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrRefNotFound) {
			return object.ZeroID, err
		}
	}
	return object.ZeroID, fmt.Errorf("resolve %q: %w", base, ErrRevisionNotFound)
}

// peelToTree follows annotated tags and commits down to a tree id.
func (r *Repo) peelToTree(id object.ID) (object.ID, error) {
	for i := 0; i < maxSymbolicDepth; i++ {
		objType, data, err := r.Store.Read(id)
		if err != nil {
			return object.ZeroID, err
		}
		switch objType {
		case object.TypeTree:
			return id, nil
		case object.TypeCommit:
			c, err := object.ParseCommit(data)
			if err != nil {
				return object.ZeroID, err
			}
			return c.Tree, nil
		case object.TypeTag:
			tag, err := object.ParseTag(data)
			if err != nil {
				return object.ZeroID, err
			}
			id = tag.Object
		default:
			return object.ZeroID, fmt.Errorf("%s is a %s: %w", id, objType, object.ErrUnexpectedObjectType)
		}
	}
	return object.ZeroID, fmt.Errorf("tag chain at %s too deep", id)
}

// PeelToCommit follows annotated tags until a commit id is reached.
func (r *Repo) PeelToCommit(id object.ID) (object.ID, error) {
	for i := 0; i < maxSymbolicDepth; i++ {
		objType, data, err := r.Store.Read(id)
		if err != nil {
			return object.ZeroID, err
		}
		switch objType {
		case object.TypeCommit:
			return id, nil
		case object.TypeTag:
			tag, err := object.ParseTag(data)
			if err != nil {
				return object.ZeroID, err
			}
			id = tag.Object
		default:
			return object.ZeroID, fmt.Errorf("%s is a %s: %w", id, objType, object.ErrUnexpectedObjectType)
		}
	}
	return object.ZeroID, fmt.Errorf("tag chain at %s too deep", id)
}
