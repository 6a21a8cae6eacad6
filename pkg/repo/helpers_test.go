package repo

import (
	"testing"

	"github.com/odvcencio/gitkit/pkg/object"
)

var testSig = object.ParseSignature("Test Author <test@example.com> 1700000000 +0100")

func initTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Init(t.TempDir(), false)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func writeBlob(t *testing.T, r *Repo, content string) object.ID {
	t.Helper()
	id, err := r.Store.Write(object.TypeBlob, []byte(content))
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	return id
}

func writeTree(t *testing.T, r *Repo, entries ...object.TreeEntry) object.ID {
	t.Helper()
	id, err := r.Store.Write(object.TypeTree, object.MarshalTree(entries))
	if err != nil {
		t.Fatalf("write tree: %v", err)
	}
	return id
}

func writeCommit(t *testing.T, r *Repo, tree object.ID, message string, parents ...object.ID) object.ID {
	t.Helper()
	id, err := r.Store.Write(object.TypeCommit, object.MarshalCommit(&object.Commit{
		Tree:      tree,
		Parents:   parents,
		Author:    testSig,
		Committer: testSig,
		Message:   message + "\n",
	}))
	if err != nil {
		t.Fatalf("write commit: %v", err)
	}
	return id
}

func fileEntry(name string, id object.ID) object.TreeEntry {
	return object.TreeEntry{Mode: object.ModeFile, Name: name, ID: id}
}

func dirEntry(name string, id object.ID) object.TreeEntry {
	return object.TreeEntry{Mode: object.ModeDir, Name: name, ID: id, IsDir: true}
}
