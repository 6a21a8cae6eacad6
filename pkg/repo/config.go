package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/gcfg"
)

// Config holds the subset of .git/config this package reads and writes.
type Config struct {
	Bare     bool
	Remotes  map[string]string       // remote name -> fetch URL
	Branches map[string]BranchConfig // branch name -> upstream tracking
}

// BranchConfig is a [branch "<name>"] section.
type BranchConfig struct {
	Remote string
	Merge  string
}

// configFile mirrors the on-disk layout for gcfg.
type configFile struct {
	Core struct {
		RepositoryFormatVersion int
		FileMode                bool
		Bare                    bool
	}
	Remote map[string]*struct {
		URL   string
		Fetch string
	}
	Branch map[string]*struct {
		Remote string
		Merge  string
	}
}

func (r *Repo) configPath() string {
	return filepath.Join(r.GitDir, "config")
}

// ReadConfig parses <gitDir>/config. A missing file yields an empty config.
// Keys this package does not model are ignored.
func (r *Repo) ReadConfig() (*Config, error) {
	data, err := os.ReadFile(r.configPath())
	if errors.Is(err, fs.ErrNotExist) {
		return newConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := ParseConfig(string(data))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

// ParseConfig parses git config text.
func ParseConfig(text string) (*Config, error) {
	var raw configFile
	if err := gcfg.FatalOnly(gcfg.ReadStringInto(&raw, text)); err != nil {
		return nil, err
	}
	cfg := newConfig()
	cfg.Bare = raw.Core.Bare
	for name, rs := range raw.Remote {
		if rs != nil {
			cfg.Remotes[name] = rs.URL
		}
	}
	for name, bs := range raw.Branch {
		if bs != nil {
			cfg.Branches[name] = BranchConfig{Remote: bs.Remote, Merge: bs.Merge}
		}
	}
	return cfg, nil
}

func newConfig() *Config {
	return &Config{
		Remotes:  make(map[string]string),
		Branches: make(map[string]BranchConfig),
	}
}

// Marshal renders cfg as git config text. Sections are emitted in sorted
// name order so output is stable.
func (cfg *Config) Marshal() []byte {
	var b strings.Builder
	b.WriteString("[core]\n")
	b.WriteString("\trepositoryformatversion = 0\n")
	b.WriteString("\tfilemode = true\n")
	fmt.Fprintf(&b, "\tbare = %t\n", cfg.Bare)

	for _, name := range sortedKeys(cfg.Remotes) {
		fmt.Fprintf(&b, "[remote %q]\n", name)
		fmt.Fprintf(&b, "\turl = %s\n", cfg.Remotes[name])
		fmt.Fprintf(&b, "\tfetch = +refs/heads/*:refs/remotes/%s/*\n", name)
	}
	for _, name := range sortedKeys(cfg.Branches) {
		bc := cfg.Branches[name]
		fmt.Fprintf(&b, "[branch %q]\n", name)
		if bc.Remote != "" {
			fmt.Fprintf(&b, "\tremote = %s\n", bc.Remote)
		}
		if bc.Merge != "" {
			fmt.Fprintf(&b, "\tmerge = %s\n", bc.Merge)
		}
	}
	return []byte(b.String())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteConfig atomically writes <gitDir>/config.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = newConfig()
	}

	tmp, err := os.CreateTemp(r.GitDir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(cfg.Marshal()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, r.configPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// SetRemote stores/updates a named remote URL in repository config.
func (r *Repo) SetRemote(name, remoteURL string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("set remote: remote name is required")
	}
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return fmt.Errorf("set remote: remote URL is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.Remotes[name] = remoteURL
	return r.WriteConfig(cfg)
}

// RemoteURL returns the configured URL for the given remote name.
func (r *Repo) RemoteURL(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("remote name is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return "", err
	}
	url, ok := cfg.Remotes[name]
	if !ok || strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("remote %q is not configured", name)
	}
	return url, nil
}
