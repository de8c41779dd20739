package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// EnvConfig names the environment variable consulted when --config is unset.
const EnvConfig = "SITEDIFF_CONFIG"

// ErrNoConfig is returned when no candidate location holds a config file.
var ErrNoConfig = errors.New("no sitediff config found")

// SearchPaths lists where a config is looked for, in order: the working
// directory, the user config directory ($XDG_CONFIG_HOME or ~/.config),
// then /etc.
func SearchPaths() []string {
	paths := []string{"sitediff.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "sitediff", "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", "sitediff", "config.yaml"))
}

// Locate picks the config file: explicit wins, then $SITEDIFF_CONFIG, then
// the first existing entry of SearchPaths. A path given explicitly or
// through the environment must exist.
func Locate(explicit string) (string, error) {
	for _, named := range []string{explicit, os.Getenv(EnvConfig)} {
		if named == "" {
			continue
		}
		if _, err := os.Stat(named); err != nil {
			return "", fmt.Errorf("config %s: %w", named, err)
		}
		return named, nil
	}

	candidates := SearchPaths()
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("config %s: %w", p, err)
		}
	}
	return "", fmt.Errorf("%w (looked in %s)", ErrNoConfig, strings.Join(candidates, ", "))
}

// Resolve locates and loads the config, then seeds globals.hostname so
// templates can name the machine that ran the checks.
func Resolve(explicit string) (*Config, error) {
	path, err := Locate(explicit)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if cfg.Globals == nil {
		cfg.Globals = make(map[string]any)
	}
	if _, set := cfg.Globals["hostname"]; !set {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("globals.hostname: %w", err)
		}
		cfg.Globals["hostname"] = host
	}
	return cfg, nil
}
