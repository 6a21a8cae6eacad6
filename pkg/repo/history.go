package repo

import (
	"fmt"

	"github.com/odvcencio/gitkit/pkg/object"
)

// HistoryEntry is one commit of a history walk.
type HistoryEntry struct {
	ID     object.ID
	Commit *object.Commit
}

// History walks the first-parent chain starting at the tip of branch,
// newest first. limit <= 0 means no limit.
func (r *Repo) History(branch string, limit int) ([]HistoryEntry, error) {
	tip, err := r.ResolveBranch(branch)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return r.HistoryFrom(tip, limit)
}

// HistoryFrom walks the first-parent chain starting at start. A commit seen
// twice ends the walk, so corrupted parent cycles terminate.
func (r *Repo) HistoryFrom(start object.ID, limit int) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	seen := make(map[object.ID]struct{})
	current := start

	for limit <= 0 || len(entries) < limit {
		if _, ok := seen[current]; ok {
			break
		}
		seen[current] = struct{}{}

		c, err := r.Store.ReadCommit(current)
		if err != nil {
			return nil, fmt.Errorf("history: read commit %s: %w", current, err)
		}
		entries = append(entries, HistoryEntry{ID: current, Commit: c})

		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}
	return entries, nil
}
