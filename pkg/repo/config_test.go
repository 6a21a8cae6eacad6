package repo

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConfig_RoundTrip(t *testing.T) {
	r := initTestRepo(t)
	cfg := &Config{
		Remotes:  map[string]string{"origin": "https://example.com/repo.git"},
		Branches: map[string]BranchConfig{"main": {Remote: "origin", Merge: "refs/heads/main"}},
	}
	if err := r.WriteConfig(cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}

	got, err := r.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_RemoteURL(t *testing.T) {
	r := initTestRepo(t)
	if err := r.SetRemote("origin", "https://example.com/alice/repo"); err != nil {
		t.Fatalf("SetRemote: %v", err)
	}
	url, err := r.RemoteURL("origin")
	if err != nil {
		t.Fatalf("RemoteURL: %v", err)
	}
	if url != "https://example.com/alice/repo" {
		t.Fatalf("remote URL = %q", url)
	}
	if _, err := r.RemoteURL("upstream"); err == nil {
		t.Fatalf("RemoteURL(upstream) succeeded for an unconfigured remote")
	}
}

func TestParseConfig_IgnoresUnknownKeys(t *testing.T) {
	text := `[core]
	repositoryformatversion = 0
	filemode = true
	bare = true
	logallrefupdates = true
[remote "origin"]
	url = git@example.com:repo.git
	fetch = +refs/heads/*:refs/remotes/origin/*
	tagopt = --no-tags
[branch "dev"]
	remote = origin
	merge = refs/heads/dev
[user]
	name = Someone
`
	cfg, err := ParseConfig(text)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if !cfg.Bare {
		t.Errorf("Bare = false")
	}
	if cfg.Remotes["origin"] != "git@example.com:repo.git" {
		t.Errorf("origin url = %q", cfg.Remotes["origin"])
	}
	if cfg.Branches["dev"] != (BranchConfig{Remote: "origin", Merge: "refs/heads/dev"}) {
		t.Errorf("branch dev = %+v", cfg.Branches["dev"])
	}
}

func TestParseConfig_Malformed(t *testing.T) {
	if _, err := ParseConfig("[core\nbare = true\n"); err == nil {
		t.Fatalf("ParseConfig accepted an unterminated section header")
	}
}
