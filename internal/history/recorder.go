package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/sznuper/sitediff/internal/runner"
	"github.com/sznuper/sitediff/internal/site"
	"github.com/sznuper/sitediff/internal/store"
)

// Recorder logs a run into the history store. It is a runner.Reporter and
// a runner.Observer.
type Recorder struct {
	store *Store

	mu    sync.Mutex
	runID string
}

// NewRecorder returns a Recorder writing to s.
func NewRecorder(s *Store) *Recorder {
	return &Recorder{store: s}
}

// RunID returns the id of the run in progress, or "" before Begin.
func (r *Recorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// Begin opens a run row.
func (r *Recorder) Begin(ctx context.Context, groups []site.Group) error {
	id, err := r.store.StartRun(ctx, len(groups))
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.runID = id
	r.mu.Unlock()
	return nil
}

// Report records a completed site's comparison tallies.
func (r *Recorder) Report(ctx context.Context, name string, paths map[string]string) error {
	id := r.RunID()
	if id == "" {
		return errors.New("history: report before begin")
	}
	cmpPath, ok := paths[store.ComparisonKey]
	if !ok {
		return fmt.Errorf("site %s has no comparison file", name)
	}
	comparisons, err := store.ReadLatestComparisons(cmpPath)
	if err != nil {
		return fmt.Errorf("reading comparisons for %s: %w", name, err)
	}
	return r.store.RecordSite(ctx, id, name, comparisons, filepath.Dir(cmpPath))
}

// Finish records incomplete and failed sites and closes the run.
func (r *Recorder) Finish(ctx context.Context, summary runner.Summary) error {
	id := r.RunID()
	if id == "" {
		return errors.New("history: finish before begin")
	}

	missing := make(map[string][]string)
	for _, st := range summary.Incomplete {
		var kinds []string
		for _, c := range st.Checks {
			for _, k := range c.Missing {
				if !slices.Contains(kinds, string(k)) {
					kinds = append(kinds, string(k))
				}
			}
		}
		missing[st.Site] = kinds
	}

	var errs []error
	for _, o := range summary.Sites {
		siteErr := ""
		if o.Err != nil {
			siteErr = o.Err.Error()
		}
		kinds, incomplete := missing[o.Site]
		if siteErr == "" && !incomplete {
			continue
		}
		if err := r.store.RecordProblem(ctx, id, o.Site, kinds, siteErr); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.store.FinishRun(ctx, id, len(summary.Incomplete), summary.Failed()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
