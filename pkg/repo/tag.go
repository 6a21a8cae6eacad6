package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitkit/pkg/object"
)

// CreateTag creates or updates a lightweight tag ref under refs/tags/.
func (r *Repo) CreateTag(name string, target object.ID, force bool) error {
	name = strings.TrimSpace(name)
	if err := validateRefComponent(name); err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	if !r.Store.Has(target) {
		return fmt.Errorf("create tag: target %s: %w", target, object.ErrObjectNotFound)
	}

	refName := "refs/tags/" + name
	if !force {
		if _, err := r.ResolveRef(refName); err == nil {
			return fmt.Errorf("create tag: tag %q already exists", name)
		}
	}
	if err := r.UpdateRef(refName, target, "tag: "+name); err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// CreateAnnotatedTag stores a tag object pointing at target and points
// refs/tags/<name> at it.
func (r *Repo) CreateAnnotatedTag(name string, target object.ID, tagger object.Signature, message string, force bool) (object.ID, error) {
	name = strings.TrimSpace(name)
	if err := validateRefComponent(name); err != nil {
		return object.ZeroID, fmt.Errorf("create annotated tag: %w", err)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return object.ZeroID, fmt.Errorf("create annotated tag: message is required")
	}

	targetType, _, err := r.Store.Read(target)
	if err != nil {
		return object.ZeroID, fmt.Errorf("create annotated tag: read target %s: %w", target, err)
	}

	refName := "refs/tags/" + name
	if !force {
		if _, err := r.ResolveRef(refName); err == nil {
			return object.ZeroID, fmt.Errorf("create annotated tag: tag %q already exists", name)
		}
	}

	tagID, err := r.Store.Write(object.TypeTag, object.MarshalTag(&object.Tag{
		Object:  target,
		Type:    targetType,
		Name:    name,
		Tagger:  tagger,
		Message: message + "\n",
	}))
	if err != nil {
		return object.ZeroID, fmt.Errorf("create annotated tag: write tag object: %w", err)
	}
	if err := r.UpdateRef(refName, tagID, "tag: "+name); err != nil {
		return object.ZeroID, fmt.Errorf("create annotated tag: %w", err)
	}
	return tagID, nil
}

// DeleteTag removes a loose tag ref from refs/tags/.
func (r *Repo) DeleteTag(name string) error {
	name = strings.TrimSpace(name)
	if err := validateRefComponent(name); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}

	refPath := filepath.Join(r.GitDir, "refs", "tags", filepath.FromSlash(name))
	if err := os.Remove(refPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete tag %q: %w", name, ErrRefNotFound)
		}
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}
