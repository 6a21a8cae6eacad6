package repo

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/gitkit/pkg/object"
)

// ReflogEntry is one line of logs/<ref>.
type ReflogEntry struct {
	Ref     string
	Old     object.ID
	New     object.ID
	Who     object.Signature
	Message string
}

// UpdateRef points name at id and appends a reflog line recording the
// previous value and reason.
func (r *Repo) UpdateRef(name string, id object.ID, reason string) error {
	old, err := r.ResolveRef(name)
	if err != nil && !errors.Is(err, ErrRefNotFound) {
		return err
	}
	if err := r.WriteRef(name, id); err != nil {
		return err
	}
	if err := r.appendReflog(name, old, id, reason); err != nil {
		return fmt.Errorf("update ref %q: %w", name, err)
	}
	return nil
}

// CommitterIdentity returns the signature recorded in reflogs and new tags:
// GIT_COMMITTER_NAME and GIT_COMMITTER_EMAIL, or a fixed fallback.
func CommitterIdentity(now time.Time) object.Signature {
	name := os.Getenv("GIT_COMMITTER_NAME")
	if name == "" {
		name = "gitkit"
	}
	email := os.Getenv("GIT_COMMITTER_EMAIL")
	if email == "" {
		email = "gitkit@localhost"
	}
	return object.NewSignature(name, email, now)
}

func (r *Repo) appendReflog(ref string, oldID, newID object.ID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "update"
	}
	reason = strings.ReplaceAll(reason, "\n", " ")

	logPath := filepath.Join(r.GitDir, "logs", filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("reflog mkdir: %w", err)
	}

	who := CommitterIdentity(time.Now())
	line := fmt.Sprintf("%s %s %s\t%s\n", oldID, newID, who.Header(), reason)

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog open: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("reflog write: %w", err)
	}
	return nil
}

// ReadReflog returns the reflog of ref, newest first. A short branch name or
// "HEAD" is accepted. limit <= 0 returns every entry.
func (r *Repo) ReadReflog(ref string, limit int) ([]ReflogEntry, error) {
	refName := resolveReflogRefName(ref)

	f, err := os.Open(filepath.Join(r.GitDir, "logs", filepath.FromSlash(refName)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	defer f.Close()

	var entries []ReflogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry, ok := parseReflogLine(scanner.Text())
		if !ok {
			continue
		}
		entry.Ref = refName
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func parseReflogLine(line string) (ReflogEntry, bool) {
	head, message, _ := strings.Cut(line, "\t")
	parts := strings.SplitN(head, " ", 3)
	if len(parts) < 3 {
		return ReflogEntry{}, false
	}
	oldID, err := object.ParseID(parts[0])
	if err != nil {
		return ReflogEntry{}, false
	}
	newID, err := object.ParseID(parts[1])
	if err != nil {
		return ReflogEntry{}, false
	}
	return ReflogEntry{
		Old:     oldID,
		New:     newID,
		Who:     object.ParseSignature(parts[2]),
		Message: message,
	}, true
}

func resolveReflogRefName(ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "HEAD"
	case ref == "HEAD", strings.HasPrefix(ref, "refs/"):
		return ref
	}
	return "refs/heads/" + ref
}
