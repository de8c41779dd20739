package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sznuper/sitediff/internal/site"
)

func TestLoadExampleConfig(t *testing.T) {
	t.Setenv("SLACK_TOKEN", "xoxb-123")
	t.Setenv("SLACK_CHANNEL", "C0123")

	root := findProjectRoot(t)
	cfg, err := Load(filepath.Join(root, "cmd", "sitediff", "sitediff.example.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Globals["team"] != "web" {
		t.Errorf("globals[team] = %v, want %q", cfg.Globals["team"], "web")
	}
	if cfg.Options.Timeout.Std() != 30*time.Second {
		t.Errorf("options.timeout = %s, want 30s", cfg.Options.Timeout)
	}

	// envsubst in service URL
	if want := "slack://xoxb-123@C0123"; cfg.Services["slack"].URL != want {
		t.Errorf("service url = %q, want %q", cfg.Services["slack"].URL, want)
	}

	if len(cfg.Checks) != 3 {
		t.Fatalf("checks = %d, want 3", len(cfg.Checks))
	}
	if c := cfg.Checks[2]; c.Type != "exec" || c.URI != "file://console_errors" || c.Timeout.Std() != time.Minute {
		t.Errorf("exec check = %+v", c)
	}

	groups, err := cfg.Groups()
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	beta := groups[1]
	if got := beta.Kinds(); len(got) != 3 || got[0] != site.Production || got[1] != site.Stage || got[2] != site.Development {
		t.Errorf("beta kinds = %v, want [prod stage dev]", got)
	}

	if cfg.Trigger().Cron != "0 6 * * *" {
		t.Errorf("cron = %q", cfg.Trigger().Cron)
	}
}

func TestDefaults(t *testing.T) {
	cfg := loadFromString(t, `
checks:
  - {name: pnf, type: page_not_found}
`)
	o := cfg.Options
	if o.ResultsDir != DefaultResultsDir || o.ChecksDir != DefaultChecksDir {
		t.Errorf("dirs = %q %q", o.ResultsDir, o.ChecksDir)
	}
	if o.Concurrency != DefaultConcurrency || o.HistoryRetention != DefaultRetention {
		t.Errorf("concurrency=%d retention=%d", o.Concurrency, o.HistoryRetention)
	}
	if o.Timeout.Std() != DefaultTimeout {
		t.Errorf("timeout = %s", o.Timeout)
	}
	if got := cfg.HistoryPath(); got != filepath.Join("Result", "history.db") {
		t.Errorf("history path = %q", got)
	}
}

func TestCheckSpecs_DefaultTimeout(t *testing.T) {
	cfg := loadFromString(t, `
options:
  timeout: 5s
checks:
  - {name: a, type: page_not_found}
  - {name: b, type: response_code, timeout: 1m}
`)
	specs := cfg.CheckSpecs()
	if specs[0].Timeout != 5*time.Second {
		t.Errorf("a timeout = %s, want 5s", specs[0].Timeout)
	}
	if specs[1].Timeout != time.Minute {
		t.Errorf("b timeout = %s, want 1m", specs[1].Timeout)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		want string
	}{
		{
			name: "no checks",
			yml:  `sites: [{name: a, environments: {prod: "https://a"}}]`,
			want: "checks",
		},
		{
			name: "unknown env kind",
			yml: `
sites: [{name: a, environments: {qa: "https://a"}}]
checks: [{name: c, type: page_not_found}]
`,
			want: "envkind",
		},
		{
			name: "bad url",
			yml: `
sites: [{name: a, environments: {prod: "not a url"}}]
checks: [{name: c, type: page_not_found}]
`,
			want: "url",
		},
		{
			name: "unknown check type",
			yml:  `checks: [{name: c, type: lighthouse}]`,
			want: "oneof",
		},
		{
			name: "exec without script",
			yml:  `checks: [{name: c, type: exec}]`,
			want: "required_if",
		},
		{
			name: "duplicate check names",
			yml:  `checks: [{name: c, type: page_not_found}, {name: c, type: response_code}]`,
			want: "unique",
		},
		{
			name: "unknown notify service",
			yml: `
checks: [{name: c, type: page_not_found}]
notify: [nowhere]
`,
			want: `unknown service "nowhere"`,
		},
		{
			name: "two triggers",
			yml: `
checks: [{name: c, type: page_not_found}]
schedule: {cron: "* * * * *", interval: 1m}
`,
			want: "exactly one",
		},
		{
			name: "bad update status",
			yml: `
sites: [{name: a, update_status: shipped, environments: {prod: "https://a"}}]
checks: [{name: c, type: page_not_found}]
`,
			want: "update_status",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadFromString(t, tt.yml)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestGroups_MergesCSV(t *testing.T) {
	dir := t.TempDir()
	csv := "name,prod,dev,stage\nalpha,https://other.example.com,,https://stage.alpha.example.com\ngamma,https://gamma.example.com,,\n"
	if err := os.WriteFile(filepath.Join(dir, "sites.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	yml := `
sites_file: sites.csv
sites:
  - name: alpha
    environments: {prod: "https://alpha.example.com"}
checks: [{name: c, type: page_not_found}]
`
	path := filepath.Join(dir, "sitediff.yaml")
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	groups, err := cfg.Groups()
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 2 || groups[0].Name != "alpha" || groups[1].Name != "gamma" {
		t.Fatalf("groups = %+v", groups)
	}
	prod, _ := groups[0].Target(site.Production)
	if prod.URL != "https://alpha.example.com" {
		t.Errorf("alpha prod = %q, want YAML value to win", prod.URL)
	}
	if _, ok := groups[0].Target(site.Stage); !ok {
		t.Error("alpha stage from CSV missing")
	}
}

func TestGroups_NoSites(t *testing.T) {
	cfg := loadFromString(t, `checks: [{name: c, type: page_not_found}]`)
	if _, err := cfg.Groups(); err == nil {
		t.Fatal("expected error")
	}
}

func TestNotifyMixed(t *testing.T) {
	yml := `
checks: [{name: c, type: page_not_found}]
notify:
  - logfile
  - service: telegram
    template: "*bold*"
    params:
      parsemode: MarkdownV2
`
	cfg := loadFromString(t, yml)
	notify := cfg.Notify
	if len(notify) != 2 {
		t.Fatalf("notify count = %d, want 2", len(notify))
	}

	if notify[0].Service != "logfile" {
		t.Errorf("notify[0] service = %q, want %q", notify[0].Service, "logfile")
	}
	if notify[0].Template != "" {
		t.Errorf("notify[0] template = %q, want empty", notify[0].Template)
	}

	if notify[1].Service != "telegram" {
		t.Errorf("notify[1] service = %q, want %q", notify[1].Service, "telegram")
	}
	if notify[1].Template != "*bold*" {
		t.Errorf("notify[1] template = %q, want %q", notify[1].Template, "*bold*")
	}
	if notify[1].Params["parsemode"] != "MarkdownV2" {
		t.Errorf("notify[1] params = %v, want parsemode=MarkdownV2", notify[1].Params)
	}
}

func TestDuration_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("options:\n  timeout: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestEnvsubst(t *testing.T) {
	yml := `
services:
  test:
    url: https://${TEST_TOKEN}@example.com
`
	t.Setenv("TEST_TOKEN", "secret123")
	cfg := loadFromString(t, yml)
	if cfg.Services["test"].URL != "https://secret123@example.com" {
		t.Errorf("url = %q, want envsubst applied", cfg.Services["test"].URL)
	}
}

func TestResolve_FillsHostname(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sitediff.yaml")
	if err := os.WriteFile(path, []byte("checks: [{name: c, type: page_not_found}]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Resolve(path)
	if err != nil {
		t.Fatal(err)
	}
	if h, _ := cfg.Globals["hostname"].(string); h == "" {
		t.Error("hostname not filled")
	}
}

func TestResolve_Missing(t *testing.T) {
	if _, err := Resolve(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLocate_EnvVariable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "from-env.yaml")
	if err := os.WriteFile(path, []byte("checks: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfig, path)

	got, err := Locate("")
	if err != nil {
		t.Fatal(err)
	}
	if got != path {
		t.Errorf("located %q, want %q", got, path)
	}

	explicit := filepath.Join(dir, "explicit.yaml")
	if err := os.WriteFile(explicit, []byte("checks: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, _ := Locate(explicit); got != explicit {
		t.Errorf("explicit path lost to env: %q", got)
	}
}

func TestLocate_NothingFound(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvConfig, "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	if _, err := os.Stat("/etc/sitediff/config.yaml"); err == nil {
		t.Skip("system config present")
	}

	_, err := Locate("")
	if !errors.Is(err, ErrNoConfig) {
		t.Fatalf("err = %v, want ErrNoConfig", err)
	}
}

func TestSearchPaths_UsesXDG(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	paths := SearchPaths()
	if paths[0] != "sitediff.yaml" {
		t.Errorf("first path = %q, want working directory", paths[0])
	}
	if want := filepath.Join(xdg, "sitediff", "config.yaml"); paths[1] != want {
		t.Errorf("user path = %q, want %q", paths[1], want)
	}
}

// helpers

func loadFromString(t *testing.T, yml string) *Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}
