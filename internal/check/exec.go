package check

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sznuper/sitediff/internal/compare"
	"github.com/sznuper/sitediff/internal/result"
	"github.com/sznuper/sitediff/internal/site"
)

// ExecResult holds the output of executing a check script.
type ExecResult struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
	ExitCode int
}

// ExecOpts configures script execution.
type ExecOpts struct {
	Path    string
	Timeout time.Duration
	Target  site.EnvironmentTarget
	Args    map[string]any
}

// Exec runs a check script and captures its output.
// Non-zero exit codes are captured (not treated as errors).
// Timeouts are treated as errors.
func Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, opts.Path)
	cmd.Env = buildEnv(opts)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	res := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("check script timed out after %s", opts.Timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("executing check script: %w", err)
	}

	return res, nil
}

func buildEnv(opts ExecOpts) []string {
	env := []string{
		"SITEDIFF_SITE=" + opts.Target.Site,
		"SITEDIFF_ENV=" + string(opts.Target.Kind),
		"SITEDIFF_URL=" + opts.Target.URL,
		"SITEDIFF_UPDATE_STATUS=" + string(opts.Target.UpdateStatus),
	}

	for k, v := range opts.Args {
		envKey := "SITEDIFF_ARG_" + strings.ToUpper(k)
		env = append(env, envKey+"="+fmt.Sprint(v))
	}

	return env
}

// execCheck delegates to an external script, e.g. a headless browser
// collecting console errors.
type execCheck struct {
	name    string
	path    string
	timeout time.Duration
	args    map[string]any
}

func newExec(spec Spec, checksDir string) (*execCheck, error) {
	path, err := ScriptPath(spec.URI, checksDir)
	if err != nil {
		return nil, fmt.Errorf("check %q: %w", spec.Name, err)
	}
	return &execCheck{
		name:    spec.Name,
		path:    path,
		timeout: spec.Timeout,
		args:    spec.Args,
	}, nil
}

func (c *execCheck) Name() string { return c.name }

func (c *execCheck) Run(ctx context.Context, target site.EnvironmentTarget) (result.CheckResult, error) {
	res, err := Exec(ctx, ExecOpts{
		Path:    c.path,
		Timeout: c.timeout,
		Target:  target,
		Args:    c.args,
	})
	if err != nil {
		return result.CheckResult{}, err
	}

	parsed, err := Parse(res.Stdout)
	if err != nil {
		if res.Stderr != "" {
			return result.CheckResult{}, fmt.Errorf("%w (exit %d, stderr: %s)", err, res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		return result.CheckResult{}, err
	}

	return result.CheckResult{
		Name:         c.name,
		Status:       parsed.Status,
		Description:  parsed.Description,
		ActualResult: parsed.Fields,
	}, nil
}

func (c *execCheck) Compare(byKind map[site.Kind][]result.CheckResult) (result.ComparisonResult, error) {
	return compare.StatusAgreement(byKind)
}
