package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/gitkit/pkg/object"
)

const defaultDescription = "Unnamed repository; edit this file 'description' to name the repository.\n"

// CreateLayout creates the directories of a git directory. Existing
// directories are left untouched, so it is safe to call on a partial clone.
func CreateLayout(gitDir string) error {
	dirs := []string{
		filepath.Join(gitDir, "objects", "info"),
		filepath.Join(gitDir, "objects", "pack"),
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "refs", "tags"),
		filepath.Join(gitDir, "info"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create layout: mkdir %s: %w", d, err)
		}
	}
	return nil
}

// GitDirFor returns where the git directory lives for a repository rooted at
// path: path itself when bare, path/.git otherwise.
func GitDirFor(path string, bare bool) string {
	if bare {
		return path
	}
	return filepath.Join(path, ".git")
}

// Init creates an empty repository at path, with HEAD pointing at
// refs/heads/main. It fails if a HEAD file already exists.
func Init(path string, bare bool) (*Repo, error) {
	gitDir := GitDirFor(path, bare)

	headPath := filepath.Join(gitDir, "HEAD")
	if _, err := os.Stat(headPath); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", gitDir)
	}
	if err := CreateLayout(gitDir); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	if err := os.WriteFile(headPath, []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}
	if err := os.WriteFile(filepath.Join(gitDir, "description"), []byte(defaultDescription), 0o644); err != nil {
		return nil, fmt.Errorf("init: write description: %w", err)
	}
	cfg := &Config{Bare: bare}
	r := &Repo{GitDir: gitDir, Store: object.NewStore(gitDir)}
	if !bare {
		r.WorkDir = path
	}
	if err := r.WriteConfig(cfg); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return r, nil
}
