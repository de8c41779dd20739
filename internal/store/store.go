// Package store persists check and comparison results for a run.
//
// Every (subscription, environment) pair has one JSON file holding the full
// list of check results appended so far; each append rewrites it whole. The
// in-memory list only advances once the file write succeeded, so memory and
// disk never diverge.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/sznuper/sitediff/internal/result"
	"github.com/sznuper/sitediff/internal/site"
)

// ComparisonKey is the path index entry for the comparison file.
const ComparisonKey = "comparison"

// Store accumulates results for one run. It is safe for concurrent use;
// operations on one subscription are serialized.
type Store struct {
	alloc *Allocator

	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	mu      sync.Mutex
	results map[site.Kind][]result.CheckResult
	paths   map[string]string
}

// New returns an empty store writing through alloc.
func New(alloc *Allocator) *Store {
	return &Store{
		alloc: alloc,
		subs:  make(map[string]*subscription),
	}
}

// Allocator returns the layout the store writes into.
func (s *Store) Allocator() *Allocator {
	return s.alloc
}

func (s *Store) sub(name string) *subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[name]
	if !ok {
		sub = &subscription{
			results: make(map[site.Kind][]result.CheckResult),
			paths:   make(map[string]string),
		}
		s.subs[name] = sub
	}
	return sub
}

func (s *Store) lookup(name string) (*subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[name]
	return sub, ok
}

// AppendCheckResult appends r to the list for (subscription, kind) and
// rewrites that environment's file. Duplicate check names are kept.
func (s *Store) AppendCheckResult(subscription string, kind site.Kind, r result.CheckResult) error {
	sub := s.sub(subscription)
	sub.mu.Lock()
	defer sub.mu.Unlock()

	path, err := s.alloc.ResultFile(subscription, kind)
	if err != nil {
		return fmt.Errorf("storing %s result for %s/%s: %w", r.Name, subscription, kind, err)
	}

	list := append(slices.Clone(sub.results[kind]), r)
	if err := writeJSON(path, list); err != nil {
		return fmt.Errorf("storing %s result for %s/%s: %w", r.Name, subscription, kind, err)
	}

	sub.results[kind] = list
	sub.paths[string(kind)] = path
	return nil
}

// AppendComparisonResult appends r to the run's comparison file, reading
// back whatever the file already holds.
func (s *Store) AppendComparisonResult(subscription string, r result.ComparisonResult) error {
	sub := s.sub(subscription)
	sub.mu.Lock()
	defer sub.mu.Unlock()

	path, err := s.alloc.ComparisonFile(subscription)
	if err != nil {
		return fmt.Errorf("storing %s comparison for %s: %w", r.Name, subscription, err)
	}

	existing, err := ReadComparisons(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storing %s comparison for %s: %w", r.Name, subscription, err)
	}
	if err := writeJSON(path, append(existing, r)); err != nil {
		return fmt.Errorf("storing %s comparison for %s: %w", r.Name, subscription, err)
	}

	sub.paths[ComparisonKey] = path
	return nil
}

// WriteLedger mirrors a subscription's completion ledger to disk.
func (s *Store) WriteLedger(subscription string, ledger any) error {
	sub := s.sub(subscription)
	sub.mu.Lock()
	defer sub.mu.Unlock()

	path, err := s.alloc.LedgerFile(subscription)
	if err != nil {
		return fmt.Errorf("writing ledger for %s: %w", subscription, err)
	}
	if err := writeJSON(path, ledger); err != nil {
		return fmt.Errorf("writing ledger for %s: %w", subscription, err)
	}
	return nil
}

// Results returns a snapshot of every stored check result for subscription,
// keyed by environment. Unknown subscriptions yield an empty map.
func (s *Store) Results(subscription string) map[site.Kind][]result.CheckResult {
	out := make(map[site.Kind][]result.CheckResult)
	sub, ok := s.lookup(subscription)
	if !ok {
		return out
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	for kind, list := range sub.results {
		out[kind] = slices.Clone(list)
	}
	return out
}

// Paths returns the latest file written per environment plus, once one
// exists, the comparison file under ComparisonKey.
func (s *Store) Paths(subscription string) map[string]string {
	out := make(map[string]string)
	sub, ok := s.lookup(subscription)
	if !ok {
		return out
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	for k, v := range sub.paths {
		out[k] = v
	}
	return out
}

// ReadCheckResults loads a per-environment result file.
func ReadCheckResults(path string) ([]result.CheckResult, error) {
	var list []result.CheckResult
	if err := readJSON(path, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ReadComparisons loads a comparison file.
func ReadComparisons(path string) ([]result.ComparisonResult, error) {
	var list []result.ComparisonResult
	if err := readJSON(path, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ReadLatestComparisons loads a comparison file keeping one entry per
// check, the most recent.
func ReadLatestComparisons(path string) ([]result.ComparisonResult, error) {
	list, err := ReadComparisons(path)
	if err != nil {
		return nil, err
	}
	return result.Latest(list), nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
