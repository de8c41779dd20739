// Package compare turns per-environment check results into one verdict per
// check. The verdict itself comes from a check-specific Comparator.
package compare

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/sznuper/sitediff/internal/result"
	"github.com/sznuper/sitediff/internal/site"
)

// Comparator judges one check across the environments that reported it.
// byKind only holds environments with at least one result for the check.
type Comparator interface {
	Compare(byKind map[site.Kind][]result.CheckResult) (result.ComparisonResult, error)
}

// ComparatorFunc adapts a function to Comparator.
type ComparatorFunc func(byKind map[site.Kind][]result.CheckResult) (result.ComparisonResult, error)

func (f ComparatorFunc) Compare(byKind map[site.Kind][]result.CheckResult) (result.ComparisonResult, error) {
	return f(byKind)
}

// Engine dispatches comparisons to registered comparators by check name.
type Engine struct {
	logger *slog.Logger

	mu          sync.RWMutex
	comparators map[string]Comparator
}

// New creates an Engine with no comparators; unknown checks fall back to
// StatusAgreement.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:      logger,
		comparators: make(map[string]Comparator),
	}
}

// Register sets the comparator for a check name.
func (e *Engine) Register(name string, c Comparator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.comparators[name] = c
}

func (e *Engine) comparator(name string) Comparator {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if c, ok := e.comparators[name]; ok {
		return c
	}
	return ComparatorFunc(StatusAgreement)
}

// Compare emits exactly one ComparisonResult per distinct check name found
// in results, in order of first appearance (walking prod, stage, dev).
func (e *Engine) Compare(results map[site.Kind][]result.CheckResult) []result.ComparisonResult {
	names := CheckNames(results)
	out := make([]result.ComparisonResult, 0, len(names))
	for _, name := range names {
		out = append(out, e.CompareCheck(name, results))
	}
	return out
}

// CompareCheck compares a single check. A comparator error or panic is
// reported as an Error verdict for that check only.
func (e *Engine) CompareCheck(name string, results map[site.Kind][]result.CheckResult) (cmp result.ComparisonResult) {
	byKind := Filter(results, name)
	log := e.logger.With("check", name)

	defer func() {
		if p := recover(); p != nil {
			log.Error("comparison panicked", "panic", p)
			cmp = errorComparison(name, fmt.Errorf("comparison panicked: %v", p))
		}
	}()

	cmp, err := e.comparator(name).Compare(byKind)
	if err != nil {
		log.Error("comparison failed", "error", err)
		return errorComparison(name, err)
	}
	cmp.Name = name
	log.Debug("compared", "status", cmp.Status, "environments", len(byKind))
	return cmp
}

func errorComparison(name string, err error) result.ComparisonResult {
	return result.ComparisonResult{
		Name:        name,
		Status:      result.Error,
		Description: err.Error(),
	}
}

// CheckNames lists distinct check names in order of first appearance.
func CheckNames(results map[site.Kind][]result.CheckResult) []string {
	var names []string
	seen := make(map[string]bool)
	for _, kind := range orderedKinds(results) {
		for _, r := range results[kind] {
			if !seen[r.Name] {
				seen[r.Name] = true
				names = append(names, r.Name)
			}
		}
	}
	return names
}

// Filter keeps only the results for one check. Environments without such a
// result are left out.
func Filter(results map[site.Kind][]result.CheckResult, name string) map[site.Kind][]result.CheckResult {
	out := make(map[site.Kind][]result.CheckResult)
	for kind, list := range results {
		for _, r := range list {
			if r.Name == name {
				out[kind] = append(out[kind], r)
			}
		}
	}
	return out
}

// Latest picks the most recent result per environment.
func Latest(byKind map[site.Kind][]result.CheckResult) map[site.Kind]result.CheckResult {
	out := make(map[site.Kind]result.CheckResult, len(byKind))
	for kind, list := range byKind {
		if len(list) > 0 {
			out[kind] = list[len(list)-1]
		}
	}
	return out
}

// Baseline returns the environment other environments are judged against:
// production when it reported, otherwise the first in column order.
func Baseline(latest map[site.Kind]result.CheckResult) (site.Kind, bool) {
	for _, kind := range site.Kinds {
		if _, ok := latest[kind]; ok {
			return kind, true
		}
	}
	return "", false
}

// StatusAgreement is the default comparator: environments agreeing on
// Passed pass, agreeing on a failure is a pre-existing site issue, and any
// disagreement fails.
func StatusAgreement(byKind map[site.Kind][]result.CheckResult) (result.ComparisonResult, error) {
	latest := Latest(byKind)
	base, ok := Baseline(latest)
	if !ok {
		return result.ComparisonResult{}, fmt.Errorf("no environment reported")
	}
	want := latest[base].Status

	var diffs []string
	for _, kind := range site.Kinds {
		r, ok := latest[kind]
		if !ok {
			continue
		}
		if r.Status != want {
			diffs = append(diffs, fmt.Sprintf("%s=%s", kind, r.Status))
		}
	}

	cmp := result.ComparisonResult{ExpectedResult: want}
	switch {
	case len(diffs) > 0:
		cmp.Status = result.Failed
		cmp.Description = fmt.Sprintf("%s=%s but %s", base, want, strings.Join(diffs, ", "))
	case want == result.Passed:
		cmp.Status = result.Passed
		cmp.Description = "all environments passed"
	case want == result.Error:
		cmp.Status = result.Error
		cmp.Description = "check errored in every environment"
	default:
		cmp.Status = result.ExistingIssue
		cmp.Description = fmt.Sprintf("every environment reports %s", want)
	}
	return cmp, nil
}

func orderedKinds(results map[site.Kind][]result.CheckResult) []site.Kind {
	var kinds []site.Kind
	for _, k := range site.Kinds {
		if _, ok := results[k]; ok {
			kinds = append(kinds, k)
		}
	}
	for k := range results {
		if !slices.Contains(site.Kinds, k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
