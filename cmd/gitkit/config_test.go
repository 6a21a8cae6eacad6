package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if diff := cmp.Diff(defaultConfig(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfigFile(t, `
[http]
timeout = "5s"
retries = 1
user_agent = "custom/2"

[log]
level = "debug"
format = "json"
`)
	t.Setenv("GITKIT_HTTP_RETRIES", "7")
	t.Setenv("GITKIT_LOG_LEVEL", "warn")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	want := &cliConfig{
		HTTP: httpConfig{Timeout: 5 * time.Second, Retries: 7, UserAgent: "custom/2"},
		Log:  logConfig{Level: "warn", Format: "json"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		want string
	}{
		{
			name: "explicit path missing",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.toml") },
			want: "nope.toml",
		},
		{
			name: "unknown key",
			path: func(t *testing.T) string { return writeConfigFile(t, "[http]\nretires = 2\n") },
			want: "unknown keys: http.retires",
		},
		{
			name: "invalid toml",
			path: func(t *testing.T) string { return writeConfigFile(t, "[http\n") },
			want: "config ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.path(t))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("loadConfig error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(logConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if log.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level = %v", log.GetLevel())
	}
	log.Info("hidden")
	log.WithField("ref", "refs/heads/main").Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"ref":"refs/heads/main"`) {
		t.Fatalf("log output = %q", out)
	}

	if _, err := newLogger(logConfig{Level: "loud"}, &buf); err == nil {
		t.Fatal("newLogger accepted an unknown level")
	}
	if _, err := newLogger(logConfig{Level: "info", Format: "xml"}, &buf); err == nil {
		t.Fatal("newLogger accepted an unknown format")
	}
}
