package repo

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/odvcencio/gitkit/pkg/object"
)

func buildCheckoutFixture(t *testing.T, r *Repo) (object.ID, map[string]string) {
	t.Helper()
	files := map[string]string{
		"README.md":           "# readme\n",
		"bin/run.sh":          "#!/bin/sh\necho hi\n",
		"src/main.go":         "package main\n",
		"src/util/strings.go": "package util\n",
		"dup.txt":             "same\n",
		"src/dup.txt":         "same\n",
	}
	blob := func(p string) object.ID { return writeBlob(t, r, files[p]) }

	util := writeTree(t, r, fileEntry("strings.go", blob("src/util/strings.go")))
	src := writeTree(t, r,
		fileEntry("main.go", blob("src/main.go")),
		dirEntry("util", util),
		fileEntry("dup.txt", blob("src/dup.txt")),
	)
	bin := writeTree(t, r, object.TreeEntry{Mode: object.ModeExecutable, Name: "run.sh", ID: blob("bin/run.sh")})
	root := writeTree(t, r,
		fileEntry("README.md", blob("README.md")),
		dirEntry("bin", bin),
		dirEntry("src", src),
		fileEntry("dup.txt", blob("dup.txt")),
		object.TreeEntry{Mode: object.ModeSymlink, Name: "link", ID: writeBlob(t, r, "README.md")},
		object.TreeEntry{Mode: object.ModeGitlink, Name: "module", ID: idA, IsDir: true},
	)
	return writeCommit(t, r, root, "fixture"), files
}

func TestCheckout_WritesFilesAndIndex(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	r := initTestRepo(t)
	commit, files := buildCheckoutFixture(t, r)

	idx, err := r.Checkout(commit, r.WorkDir)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	for p, content := range files {
		got, err := os.ReadFile(filepath.Join(r.WorkDir, filepath.FromSlash(p)))
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		if string(got) != content {
			t.Errorf("%s = %q, want %q", p, got, content)
		}
	}

	info, err := os.Stat(filepath.Join(r.WorkDir, "bin", "run.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("bin/run.sh mode = %v, want executable", info.Mode())
	}

	target, err := os.Readlink(filepath.Join(r.WorkDir, "link"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "README.md" {
		t.Errorf("link target = %q", target)
	}

	modInfo, err := os.Stat(filepath.Join(r.WorkDir, "module"))
	if err != nil || !modInfo.IsDir() {
		t.Fatalf("gitlink directory missing (err=%v)", err)
	}

	var paths []string
	for _, e := range idx.Entries {
		paths = append(paths, e.Path)
	}
	wantPaths := []string{"README.md", "bin/run.sh", "dup.txt", "link", "src/dup.txt", "src/main.go", "src/util/strings.go"}
	if diff := cmp.Diff(wantPaths, paths); diff != "" {
		t.Fatalf("index paths mismatch (-want +got):\n%s", diff)
	}

	// Identical content under two paths gets two index entries.
	dupA, dupB := idx.Entries[2], idx.Entries[4]
	if dupA.ID != dupB.ID {
		t.Fatalf("dup.txt ids differ: %s vs %s", dupA.ID, dupB.ID)
	}

	for _, e := range idx.Entries {
		if int(e.Flags&0xfff) != len(e.Path) {
			t.Errorf("%s flags = %#x", e.Path, e.Flags)
		}
		if e.MTime == 0 {
			t.Errorf("%s mtime not recorded", e.Path)
		}
		switch e.Path {
		case "bin/run.sh":
			if e.Mode != object.ModeExecutable {
				t.Errorf("%s mode = %o", e.Path, e.Mode)
			}
		case "link":
			if e.Mode != object.ModeSymlink {
				t.Errorf("%s mode = %o", e.Path, e.Mode)
			}
		default:
			if e.Mode != object.ModeFile {
				t.Errorf("%s mode = %o", e.Path, e.Mode)
			}
		}
	}

	onDisk, err := r.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if diff := cmp.Diff(idx, onDisk); diff != "" {
		t.Fatalf("index on disk mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckout_RemovesFilesDroppedFromTree(t *testing.T) {
	r := initTestRepo(t)
	keep := writeBlob(t, r, "keep\n")
	old := writeCommit(t, r, writeTree(t, r,
		fileEntry("keep.txt", keep),
		dirEntry("gone", writeTree(t, r, fileEntry("old.txt", keep))),
	), "old")
	next := writeCommit(t, r, writeTree(t, r, fileEntry("keep.txt", keep)), "next", old)

	if _, err := r.Checkout(old, r.WorkDir); err != nil {
		t.Fatalf("Checkout(old): %v", err)
	}
	if _, err := r.Checkout(next, r.WorkDir); err != nil {
		t.Fatalf("Checkout(next): %v", err)
	}

	if _, err := os.Stat(filepath.Join(r.WorkDir, "gone")); !os.IsNotExist(err) {
		t.Fatalf("gone/ still present (err=%v)", err)
	}
	if _, err := os.Stat(filepath.Join(r.WorkDir, "keep.txt")); err != nil {
		t.Fatalf("keep.txt: %v", err)
	}
}

func TestCheckout_OverwritesExistingFile(t *testing.T) {
	r := initTestRepo(t)
	commit := writeCommit(t, r, writeTree(t, r, fileEntry("f.txt", writeBlob(t, r, "new\n"))), "c")
	if err := os.WriteFile(filepath.Join(r.WorkDir, "f.txt"), []byte("stale content\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Checkout(commit, r.WorkDir); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(r.WorkDir, "f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new\n" {
		t.Fatalf("f.txt = %q", got)
	}
}

func TestCheckout_RejectsUnsafeNames(t *testing.T) {
	for _, name := range []string{"..", ".git", ".GIT"} {
		t.Run(name, func(t *testing.T) {
			r := initTestRepo(t)
			blob := writeBlob(t, r, "x")
			commit := writeCommit(t, r, writeTree(t, r, fileEntry(name, blob)), "evil")

			_, err := r.Checkout(commit, r.WorkDir)
			if !errors.Is(err, ErrUnsafePath) {
				t.Fatalf("Checkout error = %v, want ErrUnsafePath", err)
			}
		})
	}
}

func TestCheckout_RejectsRepeatedName(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	r := initTestRepo(t)
	outside := t.TempDir()
	link := object.TreeEntry{Mode: object.ModeSymlink, Name: "a", ID: writeBlob(t, r, outside)}
	sub := writeTree(t, r, fileEntry("planted", writeBlob(t, r, "x")))
	commit := writeCommit(t, r, writeTree(t, r, link, dirEntry("a", sub)), "repeated")

	_, err := r.Checkout(commit, r.WorkDir)
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("Checkout error = %v, want ErrUnsafePath", err)
	}
	if _, err := os.Lstat(filepath.Join(outside, "planted")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file written outside the work tree: %v", err)
	}
}

func TestCheckout_ReplacesSymlinkedDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	r := initTestRepo(t)
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(r.WorkDir, "sub")); err != nil {
		t.Fatal(err)
	}
	sub := writeTree(t, r, fileEntry("f.txt", writeBlob(t, r, "inside\n")))
	commit := writeCommit(t, r, writeTree(t, r, dirEntry("sub", sub)), "c")

	if _, err := r.Checkout(commit, r.WorkDir); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	info, err := os.Lstat(filepath.Join(r.WorkDir, "sub"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Fatalf("sub mode = %v, want a directory", info.Mode())
	}
	leaked, err := os.ReadDir(outside)
	if err != nil {
		t.Fatal(err)
	}
	if len(leaked) != 0 {
		t.Fatalf("outside dir has %d entries, want 0", len(leaked))
	}
}

func TestWorktreeGuard_RefusesSymlinkParent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "real"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(t.TempDir(), filepath.Join(root, "real", "link")); err != nil {
		t.Fatal(err)
	}
	g := &worktreeGuard{root: root, verified: make(map[string]struct{})}

	if err := g.checkParents("real/file"); err != nil {
		t.Fatalf("checkParents(real/file): %v", err)
	}
	if err := g.checkParents("top"); err != nil {
		t.Fatalf("checkParents(top): %v", err)
	}
	if err := g.checkParents("real/link/file"); !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("checkParents(real/link/file) = %v, want ErrUnsafePath", err)
	}
}

func TestCheckout_MissingBlob(t *testing.T) {
	r := initTestRepo(t)
	commit := writeCommit(t, r, writeTree(t, r, fileEntry("f", idB)), "dangling")

	_, err := r.Checkout(commit, r.WorkDir)
	if !errors.Is(err, object.ErrObjectNotFound) {
		t.Fatalf("Checkout error = %v, want ErrObjectNotFound", err)
	}
}
