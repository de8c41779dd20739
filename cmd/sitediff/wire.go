package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/sznuper/sitediff/internal/check"
	"github.com/sznuper/sitediff/internal/config"
	"github.com/sznuper/sitediff/internal/history"
	"github.com/sznuper/sitediff/internal/notify"
	"github.com/sznuper/sitediff/internal/report"
	"github.com/sznuper/sitediff/internal/runner"
	"github.com/sznuper/sitediff/internal/site"
	"github.com/sznuper/sitediff/internal/store"
)

// loadConfig resolves, overrides and validates the config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Resolve(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := applyOptionFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

func buildChecks(cfg *config.Config) ([]check.Check, error) {
	env := check.Env{
		ChecksDir:  cfg.Options.ChecksDir,
		HTTPClient: check.NewHTTPClient(),
	}
	var checks []check.Check
	for _, spec := range cfg.CheckSpecs() {
		c, err := check.Build(spec, env)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, nil
}

// selectGroups keeps the named sites, in config order. No names keeps all.
func selectGroups(groups []site.Group, names []string) ([]site.Group, error) {
	if len(names) == 0 {
		return groups, nil
	}
	var out []site.Group
	for _, name := range names {
		i := slices.IndexFunc(groups, func(g site.Group) bool { return g.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("site %q not found in config", name)
		}
		out = append(out, groups[i])
	}
	return out, nil
}

type runRequest struct {
	cfg     *config.Config
	checks  []check.Check
	sites   []string
	dryRun  bool
	history *history.Store
	logger  *slog.Logger
}

// executeRun performs one complete run with a fresh store and ledger.
// Sites are re-read each time so sites_file edits are picked up.
func executeRun(ctx context.Context, req runRequest) (runner.Summary, error) {
	groups, err := req.cfg.Groups()
	if err != nil {
		return runner.Summary{}, err
	}
	groups, err = selectGroups(groups, req.sites)
	if err != nil {
		return runner.Summary{}, err
	}

	alloc := store.NewAllocator(req.cfg.Options.ResultsDir, nil)
	st := store.New(alloc)

	reporters := []runner.Reporter{report.New(alloc, req.logger)}
	reporters = append(reporters, &notify.Notifier{
		Refs:         mapNotifyRefs(req.cfg.Notify),
		Services:     mapServiceDefs(req.cfg.Services),
		Template:     req.cfg.Template,
		Globals:      req.cfg.Globals,
		NotifyOnPass: req.cfg.NotifyOnPass,
		DryRun:       req.dryRun,
		Logger:       req.logger,
	})
	if req.history != nil {
		reporters = append(reporters, history.NewRecorder(req.history))
	}

	r := runner.New(st, req.checks, reporters, req.logger, runner.Options{
		Concurrency:          req.cfg.Options.Concurrency,
		ParallelEnvironments: req.cfg.Options.ParallelEnvironments,
	})
	return r.Run(ctx, groups), nil
}

func openHistory(ctx context.Context, cfg *config.Config) (*history.Store, error) {
	return history.Open(ctx, cfg.HistoryPath(), cfg.Options.HistoryRetention)
}

func mapNotifyRefs(targets []config.NotifyTarget) []notify.NotifyRef {
	refs := make([]notify.NotifyRef, len(targets))
	for i, t := range targets {
		refs[i] = notify.NotifyRef{
			ServiceName: t.Service,
			Template:    t.Template,
			Params:      t.Params,
		}
	}
	return refs
}

func mapServiceDefs(services map[string]config.Service) map[string]notify.ServiceDef {
	defs := make(map[string]notify.ServiceDef, len(services))
	for name, svc := range services {
		defs[name] = notify.ServiceDef{
			URL:    svc.URL,
			Params: svc.Params,
		}
	}
	return defs
}
