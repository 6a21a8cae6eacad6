package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// envPrefix selects GITKIT_* variables, e.g. GITKIT_HTTP_TIMEOUT=30s or
// GITKIT_LOG_LEVEL=debug.
const envPrefix = "gitkit"

type cliConfig struct {
	HTTP httpConfig `toml:"http" envconfig:"http"`
	Log  logConfig  `toml:"log" envconfig:"log"`
}

type httpConfig struct {
	Timeout   time.Duration `toml:"timeout" envconfig:"timeout"`
	Retries   int           `toml:"retries" envconfig:"retries"`
	UserAgent string        `toml:"user_agent" envconfig:"user_agent"`
	Token     string        `toml:"token" envconfig:"token"`
}

type logConfig struct {
	Level  string `toml:"level" envconfig:"level"`
	Format string `toml:"format" envconfig:"format"` // "text" or "json"
}

func defaultConfig() *cliConfig {
	return &cliConfig{
		HTTP: httpConfig{Timeout: 60 * time.Second, Retries: 3},
		Log:  logConfig{Level: "info", Format: "text"},
	}
}

// defaultConfigPath returns $XDG_CONFIG_HOME/gitkit/config.toml, falling
// back to the platform user config directory.
func defaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			return ""
		}
	}
	return filepath.Join(dir, "gitkit", "config.toml")
}

// loadConfig layers defaults, the TOML file and GITKIT_* environment
// variables, later sources winning. A missing default file is not an
// error; a missing explicit path is.
func loadConfig(path string) (*cliConfig, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		switch {
		case err == nil:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	return cfg, nil
}

// newLogger builds a logrus logger writing to w.
func newLogger(cfg logConfig, w io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(w)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log format %q: want text or json", cfg.Format)
	}
	return log, nil
}
