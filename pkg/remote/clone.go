package remote

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/odvcencio/gitkit/pkg/object"
	"github.com/odvcencio/gitkit/pkg/repo"
	"github.com/sirupsen/logrus"
)

const defaultRemoteName = "origin"

var packNamePattern = regexp.MustCompile(`^pack-[0-9a-f]{40}\.pack$`)

// CloneOptions configures Clone.
type CloneOptions struct {
	Bare bool
	// URL is recorded as the remote's url in config. When empty, a
	// transport with a URL() method supplies it.
	URL        string
	RemoteName string             // default "origin"
	Logger     logrus.FieldLogger // default logrus.StandardLogger()
}

// CloneResult reports what Clone did. Repo is open and owned by the caller.
type CloneResult struct {
	Repo    *repo.Repo
	Refs    map[string]object.ID // full ref name -> id, for refs that were walked
	Skipped []string             // refs whose object graph could not be fetched
	Fetched int                  // files downloaded
}

// Clone replicates the repository served by t into dest over the dumb HTTP
// protocol. Files that already exist under the destination git directory are
// used as-is, so an interrupted clone can be resumed by calling Clone again.
// A ref whose objects cannot all be fetched is logged and skipped; the other
// refs still complete. Unless opts.Bare, HEAD's commit is checked out into
// dest.
func Clone(ctx context.Context, t Transport, dest string, opts CloneOptions) (*CloneResult, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	remoteName := opts.RemoteName
	if remoteName == "" {
		remoteName = defaultRemoteName
	}
	remoteURL := opts.URL
	if remoteURL == "" {
		if u, ok := t.(interface{ URL() string }); ok {
			remoteURL = u.URL()
		}
	}

	gitDir := repo.GitDirFor(dest, opts.Bare)
	if err := repo.CreateLayout(gitDir); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	c := &cloner{ctx: ctx, transport: t, gitDir: gitDir, log: log}
	if _, err := c.getFile("HEAD"); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	if _, err := c.getFile("description"); err != nil {
		log.WithError(err).Debug("clone: no description")
	}

	infoRefs, err := c.getFile("info/refs")
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	advertised := parseInfoRefs(infoRefs, log)
	names := make([]string, 0, len(advertised))
	for name := range advertised {
		names = append(names, name)
	}
	sort.Strings(names)

	packedTried := false
	var fallback []string
	for _, name := range names {
		_, err := c.getFile(name)
		if err == nil {
			continue
		}
		log.WithFields(logrus.Fields{"ref": name, "error": err}).Debug("clone: loose ref unavailable")
		if !packedTried {
			packedTried = true
			if _, err := c.getFile("packed-refs"); err != nil {
				log.WithError(err).Debug("clone: no packed-refs")
			}
		}
		fallback = append(fallback, name)
	}

	r, err := repo.Open(gitDir)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	result := &CloneResult{Repo: r, Refs: make(map[string]object.ID)}
	fail := func(err error) (*CloneResult, error) {
		_ = r.Close()
		return nil, fmt.Errorf("clone: %w", err)
	}

	for _, name := range fallback {
		if _, err := r.ResolveRef(name); err == nil {
			continue
		} else if !errors.Is(err, repo.ErrRefNotFound) {
			return fail(err)
		}
		if err := r.WriteRef(name, advertised[name]); err != nil {
			return fail(err)
		}
	}

	visited := make(map[object.ID]struct{})
	for _, name := range names {
		id, err := r.ResolveRef(name)
		if err != nil {
			log.WithFields(logrus.Fields{"ref": name, "error": err}).Warn("clone: cannot resolve ref, skipping")
			result.Skipped = append(result.Skipped, name)
			continue
		}
		log.WithFields(logrus.Fields{"ref": name, "id": id.String()}).Debug("clone: fetching ref")
		if err := c.fetchGraph(r.Store, id, visited); err != nil {
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			log.WithFields(logrus.Fields{"ref": name, "error": err}).Warn("clone: cannot fetch ref, skipping")
			result.Skipped = append(result.Skipped, name)
			continue
		}
		result.Refs[name] = id
	}

	if !opts.Bare {
		head, err := r.ResolveRef("HEAD")
		switch {
		case errors.Is(err, repo.ErrRefNotFound):
			log.Warn("clone: remote HEAD points at a missing ref, skipping checkout")
		case err != nil:
			return fail(err)
		default:
			// A fresh visited set re-checks objects of refs that failed partway.
			if err := c.fetchGraph(r.Store, head, make(map[object.ID]struct{})); err != nil {
				log.WithFields(logrus.Fields{"id": head.String(), "error": err}).Warn("clone: HEAD commit unavailable, skipping checkout")
				break
			}
			if _, err := r.Checkout(head, dest); err != nil {
				return fail(err)
			}
		}
	}

	if err := r.WriteConfig(cloneConfig(opts.Bare, remoteName, remoteURL, names)); err != nil {
		return fail(err)
	}
	result.Fetched = c.fetched
	return result, nil
}

func cloneConfig(bare bool, remoteName, remoteURL string, refs []string) *repo.Config {
	cfg := &repo.Config{
		Bare:     bare,
		Remotes:  make(map[string]string),
		Branches: make(map[string]repo.BranchConfig),
	}
	if remoteURL != "" {
		cfg.Remotes[remoteName] = remoteURL
	}
	for _, name := range refs {
		branch, ok := strings.CutPrefix(name, "refs/heads/")
		if !ok {
			continue
		}
		cfg.Branches[branch] = repo.BranchConfig{Remote: remoteName, Merge: name}
	}
	return cfg
}

// parseInfoRefs reads "id<TAB>refname" lines. Peeled entries ("^{}"),
// remote-tracking refs and names that are not safe relative paths under
// refs/ are dropped.
func parseInfoRefs(data []byte, log logrus.FieldLogger) map[string]object.ID {
	refs := make(map[string]object.ID)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		hex, name, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if strings.HasSuffix(name, "^{}") {
			continue
		}
		id, err := object.ParseID(strings.TrimSpace(hex))
		if err != nil {
			log.WithField("line", line).Debug("clone: ignoring malformed info/refs line")
			continue
		}
		parts := strings.Split(name, "/")
		if len(parts) > 1 && parts[1] == "remotes" {
			continue
		}
		if !safeRefName(name) {
			log.WithField("ref", name).Warn("clone: ignoring unsafe ref name")
			continue
		}
		refs[name] = id
	}
	return refs
}

func safeRefName(name string) bool {
	if !strings.HasPrefix(name, "refs/") || path.Clean(name) != name {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." || strings.HasSuffix(part, ".lock") {
			return false
		}
	}
	return true
}

// cloner downloads remote files into gitDir, at most once each.
type cloner struct {
	ctx       context.Context
	transport Transport
	gitDir    string
	log       logrus.FieldLogger

	packsListed bool
	fetched     int
}

// getFile returns the local copy of rel when one exists, otherwise fetches
// it and stores it under the same relative path.
func (c *cloner) getFile(rel string) ([]byte, error) {
	local := filepath.Join(c.gitDir, filepath.FromSlash(rel))
	data, err := os.ReadFile(local)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	c.log.WithField("path", rel).Debug("clone: fetching")
	data, err = Fetch(c.ctx, c.transport, rel)
	if err != nil {
		return nil, err
	}
	if err := saveFile(local, data, 0o644); err != nil {
		return nil, err
	}
	c.fetched++
	return data, nil
}

// fetchGraph makes every object reachable from root available in store.
// visited is shared across refs so each object is handled once per clone.
func (c *cloner) fetchGraph(store *object.Store, root object.ID, visited map[object.ID]struct{}) error {
	stack := []object.ID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[id]; ok {
			continue
		}

		objType, data, err := c.fetchObject(store, id)
		if err != nil {
			return err
		}
		visited[id] = struct{}{}

		switch objType {
		case object.TypeCommit:
			commit, err := object.ParseCommit(data)
			if err != nil {
				return fmt.Errorf("commit %s: %w", id, err)
			}
			stack = append(stack, commit.Tree)
			for i := len(commit.Parents) - 1; i >= 0; i-- {
				stack = append(stack, commit.Parents[i])
			}
		case object.TypeTree:
			entries, err := object.ParseTree(data)
			if err != nil {
				return fmt.Errorf("tree %s: %w", id, err)
			}
			for i := len(entries) - 1; i >= 0; i-- {
				if entries[i].IsGitlink() {
					continue
				}
				stack = append(stack, entries[i].ID)
			}
		case object.TypeTag:
			tag, err := object.ParseTag(data)
			if err != nil {
				return fmt.Errorf("tag %s: %w", id, err)
			}
			stack = append(stack, tag.Object)
		}
	}
	return nil
}

// fetchObject reads id from store, downloading it first when it is not
// present locally: the loose object, or failing that every pack listed in
// objects/info/packs. A downloaded loose file that does not decode to id is
// removed again.
func (c *cloner) fetchObject(store *object.Store, id object.ID) (object.ObjectType, []byte, error) {
	if store.Has(id) {
		return store.Read(id)
	}

	hex := id.String()
	rel := "objects/" + hex[:2] + "/" + hex[2:]
	if _, err := c.getFile(rel); err == nil {
		objType, data, err := store.Read(id)
		if err != nil {
			_ = os.Remove(store.LoosePath(id))
			return "", nil, fmt.Errorf("fetched object %s: %w", id, err)
		}
		return objType, data, nil
	} else if !errors.Is(err, ErrHTTP) {
		return "", nil, err
	}

	if err := c.fetchPacks(); err != nil {
		return "", nil, err
	}
	return store.Read(id)
}

// fetchPacks downloads every pack and idx named in objects/info/packs that
// is not already present. The listing is consulted once per clone.
func (c *cloner) fetchPacks() error {
	if c.packsListed {
		return nil
	}
	c.packsListed = true

	listing, err := c.getFile("objects/info/packs")
	if err != nil {
		return err
	}
	for _, name := range parsePackList(listing) {
		if _, err := c.getFile("objects/pack/" + name); err != nil {
			return err
		}
		idx := strings.TrimSuffix(name, ".pack") + ".idx"
		if _, err := c.getFile("objects/pack/" + idx); err != nil {
			return err
		}
	}
	return nil
}

// parsePackList extracts pack file names from "P <name>" lines.
func parsePackList(data []byte) []string {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		kind, name, ok := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		if !ok || kind != "P" {
			continue
		}
		name = strings.TrimSpace(name)
		if packNamePattern.MatchString(name) {
			names = append(names, name)
		}
	}
	return names
}

func saveFile(dest string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
