package history

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/sznuper/sitediff/internal/result"
	"github.com/sznuper/sitediff/internal/runner"
	"github.com/sznuper/sitediff/internal/site"
	"github.com/sznuper/sitediff/internal/store"
)

func openTest(t *testing.T, retention int) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "history.db"), retention)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	// Each call advances one second so runs order deterministically.
	clock := time.Date(2024, 7, 17, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "", 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTest(t, 0)
	ctx := context.Background()

	id, err := s.StartRun(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	cmps := []result.ComparisonResult{
		{Name: "a", Status: result.Passed},
		{Name: "b", Status: result.Failed},
		{Name: "c", Status: result.Failed},
	}
	if err := s.RecordSite(ctx, id, "alpha", cmps, "/results/alpha/x"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordProblem(ctx, id, "beta", []string{"dev"}, "store: disk full"); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishRun(ctx, id, 1, true); err != nil {
		t.Fatal(err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	r := runs[0]
	if r.ID != id || r.Sites != 2 || r.Incomplete != 1 || !r.Failed {
		t.Errorf("run = %+v", r)
	}
	if r.Finished.IsZero() || !r.Finished.After(r.Started) {
		t.Errorf("started=%v finished=%v", r.Started, r.Finished)
	}

	sites, err := s.SiteRuns(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(sites) != 2 {
		t.Fatalf("site runs = %d, want 2", len(sites))
	}
	alpha, beta := sites[0], sites[1]
	if !alpha.Complete || alpha.Counts[result.Failed] != 2 || alpha.Counts[result.Passed] != 1 || alpha.RunDir != "/results/alpha/x" {
		t.Errorf("alpha = %+v", alpha)
	}
	if beta.Complete || !slices.Equal(beta.Missing, []string{"dev"}) || beta.Err != "store: disk full" {
		t.Errorf("beta = %+v", beta)
	}
}

func TestRecordProblem_KeepsTallies(t *testing.T) {
	s := openTest(t, 0)
	ctx := context.Background()
	id, _ := s.StartRun(ctx, 1)

	if err := s.RecordSite(ctx, id, "alpha", []result.ComparisonResult{{Name: "a", Status: result.Error}}, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordProblem(ctx, id, "alpha", nil, "reporter broke"); err != nil {
		t.Fatal(err)
	}
	sites, _ := s.SiteRuns(ctx, id)
	if len(sites) != 1 || sites[0].Counts[result.Error] != 1 || !sites[0].Complete || sites[0].Err != "reporter broke" {
		t.Errorf("site = %+v", sites)
	}
}

func TestFinishRun_Retention(t *testing.T) {
	s := openTest(t, 2)
	ctx := context.Background()

	var ids []string
	for range 4 {
		id, err := s.StartRun(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.RecordSite(ctx, id, "alpha", nil, ""); err != nil {
			t.Fatal(err)
		}
		if err := s.FinishRun(ctx, id, 0, false); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].ID != ids[3] || runs[1].ID != ids[2] {
		t.Errorf("kept %s,%s want newest two", runs[0].ID, runs[1].ID)
	}
	if old, _ := s.SiteRuns(ctx, ids[0]); len(old) != 0 {
		t.Errorf("pruned run still has site rows: %+v", old)
	}
}

func TestFinishRun_UnknownRun(t *testing.T) {
	s := openTest(t, 0)
	if err := s.FinishRun(context.Background(), "nope", 0, false); err == nil {
		t.Fatal("expected error")
	}
}

func TestRecorder(t *testing.T) {
	s := openTest(t, 0)
	rec := NewRecorder(s)
	ctx := context.Background()

	if err := rec.Report(ctx, "alpha", nil); err == nil {
		t.Fatal("expected error before Begin")
	}

	groups := []site.Group{{Name: "alpha"}, {Name: "beta"}}
	if err := rec.Begin(ctx, groups); err != nil {
		t.Fatal(err)
	}

	st := store.New(store.NewAllocator(t.TempDir(), nil))
	if err := st.AppendComparisonResult("alpha", result.ComparisonResult{Name: "a", Status: result.ExistingIssue}); err != nil {
		t.Fatal(err)
	}
	if err := rec.Report(ctx, "alpha", st.Paths("alpha")); err != nil {
		t.Fatal(err)
	}

	summary := runner.Summary{
		Sites: []runner.SiteOutcome{
			{Site: "alpha", Complete: true},
			{Site: "beta", Err: errors.New("store: boom"), ErrStage: runner.StageStore},
		},
		Incomplete: []runner.SiteStatus{{
			Site:     "beta",
			Expected: []site.Kind{site.Production, site.Development},
			Checks: []runner.CheckStatus{
				{Name: "a", State: "pending", Reported: []site.Kind{site.Production}, Missing: []site.Kind{site.Development}},
				{Name: "b", State: "pending", Missing: []site.Kind{site.Production, site.Development}},
			},
		}},
	}
	if err := rec.Finish(ctx, summary); err != nil {
		t.Fatal(err)
	}

	runs, _ := s.ListRuns(ctx, 1)
	if len(runs) != 1 || runs[0].ID != rec.RunID() || runs[0].Incomplete != 1 || !runs[0].Failed {
		t.Fatalf("runs = %+v", runs)
	}
	sites, _ := s.SiteRuns(ctx, rec.RunID())
	if len(sites) != 2 {
		t.Fatalf("site runs = %+v", sites)
	}
	if sites[0].Site != "alpha" || sites[0].Counts[result.ExistingIssue] != 1 {
		t.Errorf("alpha = %+v", sites[0])
	}
	if sites[1].Site != "beta" || !slices.Equal(sites[1].Missing, []string{"dev", "prod"}) || sites[1].Err != "store: boom" {
		t.Errorf("beta = %+v", sites[1])
	}
}
