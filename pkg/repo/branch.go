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

// CreateBranch creates refs/heads/<name> pointing at target. It fails if
// the branch already exists, loose or packed.
func (r *Repo) CreateBranch(name string, target object.ID) error {
	if err := validateRefComponent(name); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	refName := "refs/heads/" + name
	if _, err := r.ResolveRef(refName); err == nil {
		return fmt.Errorf("create branch: branch %q already exists", name)
	} else if !errors.Is(err, ErrRefNotFound) {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	if err := r.UpdateRef(refName, target, "branch: Created from "+target.String()); err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes the loose ref file refs/heads/<name>. The current
// branch cannot be deleted.
func (r *Repo) DeleteBranch(name string) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if current == name {
		return fmt.Errorf("delete branch: cannot delete current branch %q", name)
	}

	refPath := filepath.Join(r.GitDir, "refs", "heads", filepath.FromSlash(name))
	if err := os.Remove(refPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete branch %q: %w", name, ErrBranchNotFound)
		}
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	return nil
}

func validateRefComponent(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("ref name is required")
	case strings.HasPrefix(name, "/"), strings.HasSuffix(name, "/"):
		return fmt.Errorf("invalid ref name %q", name)
	case strings.Contains(name, ".."), strings.HasSuffix(name, ".lock"):
		return fmt.Errorf("invalid ref name %q", name)
	case strings.ContainsAny(name, " \t\n\r~^:?*[\\"):
		return fmt.Errorf("invalid ref name %q", name)
	}
	return nil
}
