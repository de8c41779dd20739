package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sznuper/sitediff/internal/site"
)

// StampLayout names run directories: one per subscription per minute.
const StampLayout = "02_01_2006_15_04"

// File names inside a run directory.
const (
	ComparisonName = "comparison.json"
	LedgerName     = "ledger.json"
	ReportName     = "report.html"
)

// Allocator derives the on-disk layout for a run:
//
//	<root>/<subscription>/<stamp>/comparison.json
//	<root>/<subscription>/<stamp>/<kind>/<subscription>_<kind>_<stamp>.json
//
// The stamp is taken the first time a subscription is seen and reused for
// the allocator's lifetime, so every file of one run lands in one directory.
type Allocator struct {
	root string
	now  func() time.Time

	mu     sync.Mutex
	stamps map[string]string
}

// NewAllocator returns an allocator rooted at root. A nil now uses time.Now.
func NewAllocator(root string, now func() time.Time) *Allocator {
	if now == nil {
		now = time.Now
	}
	return &Allocator{
		root:   root,
		now:    now,
		stamps: make(map[string]string),
	}
}

// Root returns the results root directory.
func (a *Allocator) Root() string {
	return a.root
}

// Stamp returns the run timestamp for subscription, allocating it on first use.
func (a *Allocator) Stamp(subscription string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	stamp, ok := a.stamps[subscription]
	if !ok {
		stamp = a.now().Format(StampLayout)
		a.stamps[subscription] = stamp
	}
	return stamp
}

// RunDir returns the run directory for subscription, creating it if needed.
func (a *Allocator) RunDir(subscription string) (string, error) {
	if err := site.ValidName(subscription); err != nil {
		return "", err
	}
	dir := filepath.Join(a.root, subscription, a.Stamp(subscription))
	return ensureDir(dir)
}

// EnvDir returns the directory holding one environment's results.
func (a *Allocator) EnvDir(subscription string, kind site.Kind) (string, error) {
	run, err := a.RunDir(subscription)
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(run, string(kind)))
}

// ResultFile returns the path of the check result list for one environment.
func (a *Allocator) ResultFile(subscription string, kind site.Kind) (string, error) {
	dir, err := a.EnvDir(subscription, kind)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s_%s.json", subscription, kind, a.Stamp(subscription))
	return filepath.Join(dir, name), nil
}

// ComparisonFile returns the path of the run's comparison list.
func (a *Allocator) ComparisonFile(subscription string) (string, error) {
	return a.runFile(subscription, ComparisonName)
}

// LedgerFile returns the path the completion ledger is mirrored to.
func (a *Allocator) LedgerFile(subscription string) (string, error) {
	return a.runFile(subscription, LedgerName)
}

// ReportFile returns the path of the rendered HTML report.
func (a *Allocator) ReportFile(subscription string) (string, error) {
	return a.runFile(subscription, ReportName)
}

func (a *Allocator) runFile(subscription, name string) (string, error) {
	run, err := a.RunDir(subscription)
	if err != nil {
		return "", err
	}
	return filepath.Join(run, name), nil
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return dir, nil
}
