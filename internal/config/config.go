package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/a8m/envsubst"
	"github.com/goccy/go-yaml"
)

type Config struct {
	Options      Options            `yaml:"options"`
	Globals      map[string]any     `yaml:"globals"`
	SitesFile    string             `yaml:"sites_file"`
	Sites        []Site             `yaml:"sites" validate:"dive"`
	Checks       []Check            `yaml:"checks" validate:"required,min=1,unique=Name,dive"`
	Services     map[string]Service `yaml:"services" validate:"dive"`
	Notify       []NotifyTarget     `yaml:"notify" validate:"dive"`
	Template     string             `yaml:"template"`
	NotifyOnPass bool               `yaml:"notify_on_pass"`
	Schedule     Schedule           `yaml:"schedule"`

	// dir is the directory of the loaded file; relative paths resolve
	// against it.
	dir string
}

type Options struct {
	ResultsDir           string   `yaml:"results_dir"`
	ChecksDir            string   `yaml:"checks_dir"`
	HistoryDB            string   `yaml:"history_db"`
	Concurrency          int      `yaml:"concurrency" validate:"gte=0"`
	ParallelEnvironments bool     `yaml:"parallel_environments"`
	Timeout              Duration `yaml:"timeout" validate:"gte=0"`
	HistoryRetention     int      `yaml:"history_retention" validate:"gte=0"`
}

type Site struct {
	Name         string            `yaml:"name" validate:"required"`
	UpdateStatus string            `yaml:"update_status" validate:"omitempty,oneof=pre_update updated post_updated"`
	Environments map[string]string `yaml:"environments" validate:"required,min=1,dive,keys,envkind,endkeys,required,url"`
}

type Check struct {
	Name    string         `yaml:"name" validate:"required"`
	Type    string         `yaml:"type" validate:"required,oneof=page_not_found response_code exec"`
	URI     string         `yaml:"check" validate:"required_if=Type exec"`
	Timeout Duration       `yaml:"timeout" validate:"gte=0"`
	Args    map[string]any `yaml:"args"`
}

type Service struct {
	URL    string            `yaml:"url" validate:"required"`
	Params map[string]string `yaml:"params"`
}

type Schedule struct {
	Interval Duration `yaml:"interval"`
	Cron     string   `yaml:"cron"`
	Watch    string   `yaml:"watch"`
}

// Duration reads Go duration strings such as "30s" or "1h30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return fmt.Errorf("duration: must be a string like 30s or 5m")
	}
	if str == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// NotifyTarget handles a plain service name string or an object with overrides.
type NotifyTarget struct {
	Service  string            `yaml:"service" validate:"required"`
	Template string            `yaml:"template"`
	Params   map[string]string `yaml:"params"`
}

func (n *NotifyTarget) UnmarshalYAML(unmarshal func(any) error) error {
	var str string
	if err := unmarshal(&str); err == nil {
		n.Service = str
		return nil
	}

	type notifyAlias NotifyTarget
	var obj notifyAlias
	if err := unmarshal(&obj); err != nil {
		return fmt.Errorf("notify: must be a service name string or an object with service/template/params")
	}
	*n = NotifyTarget(obj)
	return nil
}

// Defaults applied by Load to unset options.
const (
	DefaultResultsDir  = "Result"
	DefaultChecksDir   = "checks"
	DefaultConcurrency = 4
	DefaultTimeout     = 30 * time.Second
	DefaultRetention   = 50
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	data, err = envsubst.Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("expanding env vars: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.dir = filepath.Dir(path)
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Options.ResultsDir == "" {
		c.Options.ResultsDir = DefaultResultsDir
	}
	if c.Options.ChecksDir == "" {
		c.Options.ChecksDir = DefaultChecksDir
	}
	if c.Options.Concurrency == 0 {
		c.Options.Concurrency = DefaultConcurrency
	}
	if c.Options.Timeout == 0 {
		c.Options.Timeout = Duration(DefaultTimeout)
	}
	if c.Options.HistoryRetention == 0 {
		c.Options.HistoryRetention = DefaultRetention
	}
}

// HistoryPath returns the history database location, defaulting to
// history.db inside the results directory.
func (c *Config) HistoryPath() string {
	if c.Options.HistoryDB != "" {
		return c.Options.HistoryDB
	}
	return filepath.Join(c.Options.ResultsDir, "history.db")
}

// path resolves p against the config file's directory.
func (c *Config) path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}
