package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/gitkit/pkg/object"
)

var (
	// ErrInvalidRepository means a path holds no usable git directory.
	ErrInvalidRepository = errors.New("not a git repository")
	// ErrBranchNotFound means no loose or packed ref exists for a branch.
	ErrBranchNotFound = errors.New("branch not found")
	// ErrRefNotFound means a ref name resolves to nothing.
	ErrRefNotFound = errors.New("ref not found")
	// ErrMalformedRef means a ref file holds neither an id nor a usable
	// symbolic target.
	ErrMalformedRef = errors.New("malformed ref")
)

// Repo represents an opened Git repository.
type Repo struct {
	GitDir  string        // directory holding HEAD, refs/ and objects/
	WorkDir string        // working tree root; empty for bare repositories
	Store   *object.Store // object database under GitDir
}

// Open opens the repository at path. path may be a git directory (bare
// repository or a .git directory itself) or a working tree; for a working
// tree the search continues upward until a .git directory is found.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	if isGitDir(abs) {
		r := &Repo{GitDir: abs, Store: object.NewStore(abs)}
		if filepath.Base(abs) == ".git" {
			r.WorkDir = filepath.Dir(abs)
		}
		return r, nil
	}

	cur := abs
	for {
		gitDir := filepath.Join(cur, ".git")
		if isGitDir(gitDir) {
			return &Repo{
				GitDir:  gitDir,
				WorkDir: cur,
				Store:   object.NewStore(gitDir),
			}, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open %s: %w", abs, ErrInvalidRepository)
		}
		cur = parent
	}
}

// isGitDir reports whether dir has a HEAD file and an objects directory.
func isGitDir(dir string) bool {
	head, err := os.Stat(filepath.Join(dir, "HEAD"))
	if err != nil || head.IsDir() {
		return false
	}
	objects, err := os.Stat(filepath.Join(dir, "objects"))
	return err == nil && objects.IsDir()
}

// Bare reports whether the repository has no working tree.
func (r *Repo) Bare() bool {
	return r.WorkDir == ""
}

// Close releases files held by the object store.
func (r *Repo) Close() error {
	return r.Store.Close()
}

// Commit reads and parses the commit id.
func (r *Repo) Commit(id object.ID) (*object.Commit, error) {
	return r.Store.ReadCommit(id)
}

// Tree reads and parses the tree id.
func (r *Repo) Tree(id object.ID) ([]object.TreeEntry, error) {
	return r.Store.ReadTree(id)
}

// File returns the content of the blob id.
func (r *Repo) File(id object.ID) ([]byte, error) {
	return r.Store.ReadBlob(id)
}
