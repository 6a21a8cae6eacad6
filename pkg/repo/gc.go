package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/gitkit/pkg/object"
)

// GC packs loose objects into a new pack and refreshes the dumb-HTTP
// server info files.
func (r *Repo) GC() (*object.GCSummary, error) {
	summary, err := r.Store.GC()
	if err != nil {
		return nil, err
	}
	if err := r.UpdateServerInfo(); err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}
	return summary, nil
}

// CheckConnectivity walks every object reachable from the repository's refs
// and HEAD and returns the ids that are referenced but absent.
func (r *Repo) CheckConnectivity() ([]object.ID, error) {
	refs, err := r.LoadRefs("")
	if err != nil {
		return nil, err
	}
	roots := make([]object.ID, 0, len(refs)+1)
	for _, id := range refs {
		roots = append(roots, id)
	}
	if head, err := r.ResolveRef("HEAD"); err == nil {
		roots = append(roots, head)
	}

	_, missing, err := r.Store.ReachableSet(roots)
	if err != nil {
		return nil, fmt.Errorf("check connectivity: %w", err)
	}
	return missing, nil
}

// UpdateServerInfo writes info/refs and objects/info/packs, the two index
// files a dumb-HTTP client needs to discover refs and packs.
func (r *Repo) UpdateServerInfo() error {
	refs, err := r.LoadRefs("")
	if err != nil {
		return fmt.Errorf("update server info: %w", err)
	}
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		id := refs[name]
		fmt.Fprintf(&b, "%s\trefs/%s\n", id, name)
		if strings.HasPrefix(name, "tags/") {
			if peeled, err := r.PeelToCommit(id); err == nil && peeled != id {
				fmt.Fprintf(&b, "%s\trefs/%s^{}\n", peeled, name)
			}
		}
	}
	if err := writeInfoFile(filepath.Join(r.GitDir, "info", "refs"), b.String()); err != nil {
		return fmt.Errorf("update server info: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(r.GitDir, "objects", "pack", "pack-*.pack"))
	if err != nil {
		return fmt.Errorf("update server info: %w", err)
	}
	sort.Strings(matches)
	b.Reset()
	for _, m := range matches {
		fmt.Fprintf(&b, "P %s\n", filepath.Base(m))
	}
	b.WriteString("\n")
	if err := writeInfoFile(filepath.Join(r.GitDir, "objects", "info", "packs"), b.String()); err != nil {
		return fmt.Errorf("update server info: %w", err)
	}
	return nil
}

func writeInfoFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
