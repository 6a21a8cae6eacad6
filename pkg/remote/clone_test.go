package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/odvcencio/gitkit/pkg/object"
	"github.com/odvcencio/gitkit/pkg/repo"
	"github.com/sirupsen/logrus"
)

var cloneSig = object.ParseSignature("Test Author <test@example.com> 1700000000 +0000")

// dirTransport serves a git directory from disk the way a static web
// server would.
type dirTransport struct {
	root string

	mu       sync.Mutex
	requests []string
}

func (d *dirTransport) Get(_ context.Context, p string) (*Response, error) {
	d.mu.Lock()
	d.requests = append(d.requests, p)
	d.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(p)))
	if errors.Is(err, os.ErrNotExist) {
		return &Response{StatusCode: http.StatusNotFound, Header: http.Header{}}, nil
	}
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Content-Length", strconv.Itoa(len(data)))
	return &Response{StatusCode: http.StatusOK, Header: h, Body: data}, nil
}

func (d *dirTransport) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type sourceRepo struct {
	*repo.Repo
	head object.ID
	root object.ID
}

// newSourceRepo builds a bare repository with two commits on main:
// README and src/main.go, then an edit to README.
func newSourceRepo(t *testing.T) *sourceRepo {
	t.Helper()
	r, err := repo.Init(t.TempDir(), true)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	write := func(objType object.ObjectType, data []byte) object.ID {
		t.Helper()
		id, err := r.Store.Write(objType, data)
		if err != nil {
			t.Fatalf("write %s: %v", objType, err)
		}
		return id
	}
	commit := func(tree object.ID, msg string, parents ...object.ID) object.ID {
		t.Helper()
		return write(object.TypeCommit, object.MarshalCommit(&object.Commit{
			Tree:      tree,
			Parents:   parents,
			Author:    cloneSig,
			Committer: cloneSig,
			Message:   msg + "\n",
		}))
	}

	mainGo := write(object.TypeBlob, []byte("package main\n"))
	srcTree := write(object.TypeTree, object.MarshalTree([]object.TreeEntry{
		{Mode: object.ModeFile, Name: "main.go", ID: mainGo},
	}))
	readme1 := write(object.TypeBlob, []byte("hello\n"))
	tree1 := write(object.TypeTree, object.MarshalTree([]object.TreeEntry{
		{Mode: object.ModeFile, Name: "README", ID: readme1},
		{Mode: object.ModeDir, Name: "src", ID: srcTree, IsDir: true},
	}))
	root := commit(tree1, "initial")

	readme2 := write(object.TypeBlob, []byte("hello, world\n"))
	tree2 := write(object.TypeTree, object.MarshalTree([]object.TreeEntry{
		{Mode: object.ModeFile, Name: "README", ID: readme2},
		{Mode: object.ModeDir, Name: "src", ID: srcTree, IsDir: true},
	}))
	head := commit(tree2, "update readme", root)

	if err := r.WriteRef("refs/heads/main", head); err != nil {
		t.Fatalf("WriteRef: %v", err)
	}
	if err := r.UpdateServerInfo(); err != nil {
		t.Fatalf("UpdateServerInfo: %v", err)
	}
	return &sourceRepo{Repo: r, head: head, root: root}
}

func cloneInto(t *testing.T, tr Transport, dest string, opts CloneOptions) *CloneResult {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	res, err := Clone(context.Background(), tr, dest, opts)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	t.Cleanup(func() { _ = res.Repo.Close() })
	return res
}

func assertWorktree(t *testing.T, dest string) {
	t.Helper()
	want := map[string]string{
		"README":      "hello, world\n",
		"src/main.go": "package main\n",
	}
	for rel, content := range want {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		if err != nil {
			t.Fatalf("read %s: %v", rel, err)
		}
		if string(got) != content {
			t.Fatalf("%s = %q, want %q", rel, got, content)
		}
	}
}

func TestClone_LooseObjects(t *testing.T) {
	src := newSourceRepo(t)
	dest := filepath.Join(t.TempDir(), "work")
	tr := &dirTransport{root: src.GitDir}

	res := cloneInto(t, tr, dest, CloneOptions{URL: "https://example.com/demo.git"})
	r := res.Repo

	branches, err := r.Branches()
	if err != nil {
		t.Fatalf("Branches: %v", err)
	}
	if diff := cmp.Diff([]string{"main"}, branches); diff != "" {
		t.Fatalf("branches mismatch (-want +got):\n%s", diff)
	}

	hist, err := r.History("main", 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].ID != src.head {
		t.Fatalf("History(main, 1) = %+v, want [%s]", hist, src.head)
	}
	full, err := r.History("main", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(full) != 2 || full[1].ID != src.root {
		t.Fatalf("full history = %+v", full)
	}

	if diff := cmp.Diff(map[string]object.ID{"refs/heads/main": src.head}, res.Refs); diff != "" {
		t.Fatalf("refs mismatch (-want +got):\n%s", diff)
	}
	if len(res.Skipped) != 0 {
		t.Fatalf("skipped = %v", res.Skipped)
	}
	assertWorktree(t, dest)

	idx, err := r.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	var paths []string
	for _, e := range idx.Entries {
		paths = append(paths, e.Path)
	}
	if diff := cmp.Diff([]string{"README", "src/main.go"}, paths); diff != "" {
		t.Fatalf("index paths mismatch (-want +got):\n%s", diff)
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.Remotes["origin"] != "https://example.com/demo.git" {
		t.Fatalf("remote url = %q", cfg.Remotes["origin"])
	}
	if diff := cmp.Diff(repo.BranchConfig{Remote: "origin", Merge: "refs/heads/main"}, cfg.Branches["main"]); diff != "" {
		t.Fatalf("branch config mismatch (-want +got):\n%s", diff)
	}

	missing, err := r.CheckConnectivity()
	if err != nil {
		t.Fatalf("CheckConnectivity: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("missing objects after clone: %v", missing)
	}
}

func TestClone_PackedObjects(t *testing.T) {
	src := newSourceRepo(t)
	if _, err := src.GC(); err != nil {
		t.Fatalf("GC: %v", err)
	}
	loose, err := src.Store.LooseIDs()
	if err != nil {
		t.Fatalf("LooseIDs: %v", err)
	}
	for _, id := range loose {
		if err := os.Remove(src.Store.LoosePath(id)); err != nil {
			t.Fatalf("remove loose %s: %v", id, err)
		}
	}

	dest := filepath.Join(t.TempDir(), "work")
	tr := &dirTransport{root: src.GitDir}
	res := cloneInto(t, tr, dest, CloneOptions{})

	packs, err := filepath.Glob(filepath.Join(res.Repo.GitDir, "objects", "pack", "pack-*.idx"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(packs) != 1 {
		t.Fatalf("pack indexes = %v, want 1", packs)
	}
	hist, err := res.Repo.History("main", 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].ID != src.head {
		t.Fatalf("History(main, 1) = %+v", hist)
	}
	assertWorktree(t, dest)

	var listings int
	for _, p := range tr.requests {
		if p == "objects/info/packs" {
			listings++
		}
	}
	if listings != 1 {
		t.Fatalf("objects/info/packs fetched %d times, want 1", listings)
	}
}

func TestClone_PackedRefsFallback(t *testing.T) {
	src := newSourceRepo(t)
	content := "# pack-refs with: peeled fully-peeled sorted\n" + src.root.String() + " refs/tags/v1\n"
	if err := os.WriteFile(filepath.Join(src.GitDir, "packed-refs"), []byte(content), 0o644); err != nil {
		t.Fatalf("write packed-refs: %v", err)
	}
	if err := src.UpdateServerInfo(); err != nil {
		t.Fatalf("UpdateServerInfo: %v", err)
	}

	dest := t.TempDir()
	res := cloneInto(t, &dirTransport{root: src.GitDir}, dest, CloneOptions{Bare: true})

	tags, err := res.Repo.Tags()
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if diff := cmp.Diff([]string{"v1"}, tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
	id, err := res.Repo.ResolveTag("v1")
	if err != nil {
		t.Fatalf("ResolveTag: %v", err)
	}
	if id != src.root {
		t.Fatalf("v1 = %s, want %s", id, src.root)
	}
	if res.Refs["refs/tags/v1"] != src.root {
		t.Fatalf("refs = %v", res.Refs)
	}
}

func TestClone_SkipsRefWithMissingObjects(t *testing.T) {
	src := newSourceRepo(t)
	ghost := object.HashBytes([]byte("not stored anywhere"))
	if err := src.WriteRef("refs/heads/broken", ghost); err != nil {
		t.Fatalf("WriteRef: %v", err)
	}
	if err := src.UpdateServerInfo(); err != nil {
		t.Fatalf("UpdateServerInfo: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "work")
	res := cloneInto(t, &dirTransport{root: src.GitDir}, dest, CloneOptions{})

	if diff := cmp.Diff([]string{"refs/heads/broken"}, res.Skipped); diff != "" {
		t.Fatalf("skipped mismatch (-want +got):\n%s", diff)
	}
	if res.Refs["refs/heads/main"] != src.head {
		t.Fatalf("main not cloned: %v", res.Refs)
	}
	assertWorktree(t, dest)
}

func TestClone_ResumesFromLocalFiles(t *testing.T) {
	src := newSourceRepo(t)
	dest := filepath.Join(t.TempDir(), "work")

	first := cloneInto(t, &dirTransport{root: src.GitDir}, dest, CloneOptions{})
	if first.Fetched == 0 {
		t.Fatal("first clone fetched nothing")
	}
	_ = first.Repo.Close()

	tr := &dirTransport{root: src.GitDir}
	second := cloneInto(t, tr, dest, CloneOptions{})
	if second.Fetched != 0 {
		t.Fatalf("second clone fetched %d files, want 0", second.Fetched)
	}
	if tr.count() != 0 {
		t.Fatalf("second clone issued requests: %v", tr.requests)
	}
	assertWorktree(t, dest)
}

func TestClone_BareHasNoWorktree(t *testing.T) {
	src := newSourceRepo(t)
	dest := t.TempDir()
	res := cloneInto(t, &dirTransport{root: src.GitDir}, dest, CloneOptions{Bare: true})

	if !res.Repo.Bare() {
		t.Fatal("clone is not bare")
	}
	if _, err := os.Stat(filepath.Join(dest, "README")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("README stat err = %v, want not exist", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "index")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("index stat err = %v, want not exist", err)
	}
	cfg, err := res.Repo.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if !cfg.Bare {
		t.Fatal("config core.bare is false")
	}
}

func TestClone_IgnoresUnsafeRefNames(t *testing.T) {
	src := newSourceRepo(t)
	infoRefs := filepath.Join(src.GitDir, "info", "refs")
	data, err := os.ReadFile(infoRefs)
	if err != nil {
		t.Fatalf("read info/refs: %v", err)
	}
	extra := src.head.String() + "\trefs/heads/../../../escape\n" +
		src.head.String() + "\trefs/remotes/origin/main\n" +
		src.head.String() + "\tHEAD\n"
	if err := os.WriteFile(infoRefs, append(data, extra...), 0o644); err != nil {
		t.Fatalf("write info/refs: %v", err)
	}

	parent := t.TempDir()
	dest := filepath.Join(parent, "work")
	res := cloneInto(t, &dirTransport{root: src.GitDir}, dest, CloneOptions{})

	if diff := cmp.Diff(map[string]object.ID{"refs/heads/main": src.head}, res.Refs); diff != "" {
		t.Fatalf("refs mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(parent, "escape")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("escape stat err = %v, want not exist", err)
	}
}

func TestClone_MissingHEADFails(t *testing.T) {
	src := newSourceRepo(t)
	if err := os.Remove(filepath.Join(src.GitDir, "HEAD")); err != nil {
		t.Fatalf("remove HEAD: %v", err)
	}
	_, err := Clone(context.Background(), &dirTransport{root: src.GitDir}, t.TempDir(), CloneOptions{Bare: true, Logger: quietLogger()})
	if !errors.Is(err, ErrHTTP) {
		t.Fatalf("Clone error = %v, want ErrHTTP", err)
	}
}

func TestClone_OverHTTP(t *testing.T) {
	src := newSourceRepo(t)
	ts := httptest.NewServer(http.FileServer(http.Dir(src.GitDir)))
	defer ts.Close()

	tr, err := NewHTTPTransport(ts.URL+"/", HTTPOptions{})
	if err != nil {
		t.Fatalf("NewHTTPTransport: %v", err)
	}
	dest := filepath.Join(t.TempDir(), "work")
	res := cloneInto(t, &RetryTransport{Next: tr, MaxAttempts: 1}, dest, CloneOptions{})

	assertWorktree(t, dest)
	cfg, err := res.Repo.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.Remotes["origin"] != ts.URL {
		t.Fatalf("remote url = %q, want %q", cfg.Remotes["origin"], ts.URL)
	}
}

func TestParseInfoRefs(t *testing.T) {
	id := object.HashBytes([]byte("x"))
	data := strings.Join([]string{
		id.String() + "\trefs/heads/main",
		id.String() + "\trefs/tags/v1^{}",
		"garbage\trefs/heads/bad",
		id.String() + "\trefs/remotes/origin/main",
		id.String() + "\trefs/heads/feature/x",
		id.String() + "\trefs/heads/a.lock",
		"",
	}, "\n")
	got := parseInfoRefs([]byte(data), quietLogger())
	want := map[string]object.ID{
		"refs/heads/main":      id,
		"refs/heads/feature/x": id,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("parseInfoRefs mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePackList(t *testing.T) {
	good := "pack-" + strings.Repeat("ab", 20) + ".pack"
	data := "P " + good + "\nP ../../etc/passwd\nX other\n\n"
	if diff := cmp.Diff([]string{good}, parsePackList([]byte(data))); diff != "" {
		t.Fatalf("parsePackList mismatch (-want +got):\n%s", diff)
	}
}
