// Package runner coordinates a run: it executes checks per environment,
// stores their results, and fires one comparison per check once every
// environment of a site has reported.
//
// A Runner owns the store and ledger of exactly one run. Build a new one for
// every invocation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sznuper/sitediff/internal/check"
	"github.com/sznuper/sitediff/internal/compare"
	"github.com/sznuper/sitediff/internal/result"
	"github.com/sznuper/sitediff/internal/site"
	"github.com/sznuper/sitediff/internal/store"
)

// Reporter is handed a site's path index once all of its comparisons are
// stored. Reporter failures are logged and never abort the run.
type Reporter interface {
	Report(ctx context.Context, site string, paths map[string]string) error
}

// Observer is an optional extension of Reporter notified at the edges of a run.
type Observer interface {
	Begin(ctx context.Context, groups []site.Group) error
	Finish(ctx context.Context, summary Summary) error
}

// Options tunes how a run fans out.
type Options struct {
	Concurrency          int  // sites in flight; <1 means 1
	ParallelEnvironments bool // run a site's environments concurrently
}

// Runner executes checks against site groups for one run.
type Runner struct {
	store     *store.Store
	engine    *compare.Engine
	checks    []check.Check
	reporters []Reporter
	logger    *slog.Logger
	opts      Options
	ledger    *Ledger
}

// New creates a Runner writing into st. Every check's own comparator is
// registered with a fresh comparison engine.
func New(st *store.Store, checks []check.Check, reporters []Reporter, logger *slog.Logger, opts Options) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	engine := compare.New(logger)
	names := make([]string, 0, len(checks))
	for _, c := range checks {
		engine.Register(c.Name(), c)
		names = append(names, c.Name())
	}
	return &Runner{
		store:     st,
		engine:    engine,
		checks:    checks,
		reporters: reporters,
		logger:    logger,
		opts:      opts,
		ledger:    NewLedger(names),
	}
}

// Store returns the store the run writes into.
func (r *Runner) Store() *store.Store {
	return r.store
}

// Register records the expected environments of each group so a site that
// never executes still shows up as incomplete.
func (r *Runner) Register(groups ...site.Group) {
	for _, g := range groups {
		r.ledger.Register(g)
	}
}

// Status returns the ledger entry for one site.
func (r *Runner) Status(name string) (SiteStatus, bool) {
	return r.ledger.Status(name)
}

// Incomplete lists sites whose comparisons have not all been stored.
func (r *Runner) Incomplete() []SiteStatus {
	return r.ledger.Incomplete()
}

// Execute runs chk against target, stores the result, and fires the
// comparison for chk when target completes the group's expected set.
// Check failures become Error results; only storage failures are returned.
func (r *Runner) Execute(ctx context.Context, group site.Group, target site.EnvironmentTarget, chk check.Check) error {
	if member, ok := group.Target(target.Kind); !ok || member.Site != target.Site || target.Site != group.Name {
		return &StageError{Stage: StageTarget, Err: fmt.Errorf("%s: %w", target, ErrUnknownTarget)}
	}
	log := r.logger.With("site", group.Name, "env", target.Kind, "check", chk.Name())
	sl := r.ledger.Register(group)

	start := time.Now()
	res := r.runCheck(ctx, chk, target)
	log.Debug("check finished", "status", res.Status, "duration", time.Since(start))

	sl.mu.Lock()
	if err := r.store.AppendCheckResult(group.Name, target.Kind, res); err != nil {
		sl.mu.Unlock()
		log.Error("store failed", "error", err)
		return &StageError{Stage: StageStore, Err: err}
	}
	fire := sl.record(chk.Name(), target.Kind)
	snapshot := sl.status()
	err := r.store.WriteLedger(group.Name, snapshot)
	sl.mu.Unlock()
	if err != nil {
		log.Error("ledger write failed", "error", err)
		return &StageError{Stage: StageLedger, Err: err}
	}
	if !fire {
		return nil
	}

	log.Info("all environments reported, comparing", "environments", len(snapshot.Expected))
	cmp := r.engine.CompareCheck(chk.Name(), r.store.Results(group.Name))
	if err := r.store.AppendComparisonResult(group.Name, cmp); err != nil {
		log.Error("storing comparison failed", "error", err)
		return &StageError{Stage: StageCompare, Err: err}
	}
	log.Info("comparison stored", "status", cmp.Status)

	sl.mu.Lock()
	siteDone := sl.compared(chk.Name())
	snapshot = sl.status()
	err = r.store.WriteLedger(group.Name, snapshot)
	sl.mu.Unlock()
	if err != nil {
		log.Error("ledger write failed", "error", err)
		return &StageError{Stage: StageLedger, Err: err}
	}
	if siteDone {
		r.report(ctx, group.Name)
	}
	return nil
}

func (r *Runner) runCheck(ctx context.Context, chk check.Check, target site.EnvironmentTarget) (res result.CheckResult) {
	defer func() {
		if p := recover(); p != nil {
			res = result.ErrorResult(chk.Name(), fmt.Errorf("check panicked: %v", p))
		}
	}()

	res, err := chk.Run(ctx, target)
	if err != nil {
		return result.ErrorResult(chk.Name(), err)
	}
	res.Name = chk.Name()
	return res
}

func (r *Runner) report(ctx context.Context, name string) {
	paths := r.store.Paths(name)
	log := r.logger.With("site", name)
	log.Info("site complete", "files", len(paths))
	for _, rep := range r.reporters {
		if err := rep.Report(ctx, name, paths); err != nil {
			log.Error("reporter failed", "reporter", fmt.Sprintf("%T", rep), "error", err)
		}
	}
}

// RunGroup executes every check against every target of group. The first
// storage failure abandons the rest of the group.
func (r *Runner) RunGroup(ctx context.Context, group site.Group) SiteOutcome {
	log := r.logger.With("site", group.Name)
	start := time.Now()
	outcome := SiteOutcome{Site: group.Name}

	if err := group.Validate(); err != nil {
		outcome.Err = err
		outcome.ErrStage = StageTarget
		outcome.Duration = time.Since(start)
		log.Error("invalid site", "error", err)
		return outcome
	}
	r.ledger.Register(group)

	total := len(group.Targets)
	runTarget := func(ctx context.Context, i int, target site.EnvironmentTarget) error {
		log.Info("running environment", "env", target.Kind, "position", fmt.Sprintf("%d/%d", i+1, total), "url", target.URL)
		for _, chk := range r.checks {
			if err := ctx.Err(); err != nil {
				return &StageError{Stage: StageCancel, Err: err}
			}
			if err := r.Execute(ctx, group, target, chk); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if r.opts.ParallelEnvironments {
		g, gctx := errgroup.WithContext(ctx)
		for i, target := range group.Targets {
			g.Go(func() error { return runTarget(gctx, i, target) })
		}
		err = g.Wait()
	} else {
		for i, target := range group.Targets {
			if err = runTarget(ctx, i, target); err != nil {
				break
			}
		}
	}

	if err != nil {
		outcome.Err = err
		var se *StageError
		if errors.As(err, &se) {
			outcome.ErrStage = se.Stage
		}
		log.Error("site abandoned", "stage", outcome.ErrStage, "error", err)
	}
	if st, ok := r.ledger.Status(group.Name); ok {
		outcome.Complete = st.Complete
		outcome.Reported = st.Complete
	}
	outcome.Paths = r.store.Paths(group.Name)
	outcome.Duration = time.Since(start)
	log.Info("site finished", "complete", outcome.Complete, "duration", outcome.Duration)
	return outcome
}

// Run executes all groups with bounded concurrency. A failing site never
// stops its siblings.
func (r *Runner) Run(ctx context.Context, groups []site.Group) Summary {
	summary := Summary{Started: time.Now()}
	r.Register(groups...)
	for _, o := range r.observers() {
		if err := o.Begin(ctx, groups); err != nil {
			r.logger.Error("observer begin failed", "observer", fmt.Sprintf("%T", o), "error", err)
		}
	}

	limit := r.opts.Concurrency
	if limit < 1 {
		limit = 1
	}
	outcomes := make([]SiteOutcome, len(groups))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, group := range groups {
		g.Go(func() error {
			outcomes[i] = r.RunGroup(ctx, group)
			return nil
		})
	}
	_ = g.Wait()

	summary.Sites = outcomes
	summary.Incomplete = r.Incomplete()
	summary.Duration = time.Since(summary.Started)
	for _, st := range summary.Incomplete {
		r.logger.Warn("site incomplete", "site", st.Site, "missing", missingKinds(st))
	}
	for _, o := range r.observers() {
		if err := o.Finish(ctx, summary); err != nil {
			r.logger.Error("observer finish failed", "observer", fmt.Sprintf("%T", o), "error", err)
		}
	}
	return summary
}

func (r *Runner) observers() []Observer {
	var out []Observer
	for _, rep := range r.reporters {
		if o, ok := rep.(Observer); ok {
			out = append(out, o)
		}
	}
	return out
}

func missingKinds(st SiteStatus) []site.Kind {
	var out []site.Kind
	for _, c := range st.Checks {
		for _, k := range c.Missing {
			if !slices.Contains(out, k) {
				out = append(out, k)
			}
		}
	}
	return out
}
