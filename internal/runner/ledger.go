package runner

import (
	"slices"
	"sync"

	"github.com/sznuper/sitediff/internal/site"
)

type phase string

const (
	phasePending   phase = "pending"
	phaseComparing phase = "comparing"
	phaseComplete  phase = "complete"
)

// Ledger tracks, per site and check, which environments have reported in
// the current run. Entries are only ever added. A check moves
// pending → comparing once every expected environment reported, and
// comparing → complete once its comparison is stored; a site is complete
// when all of its checks are.
type Ledger struct {
	checks []string

	mu    sync.Mutex
	sites map[string]*siteLedger
	order []string
}

type siteLedger struct {
	mu       sync.Mutex
	name     string
	expected []site.Kind
	checks   map[string]*checkLedger
	complete bool
}

type checkLedger struct {
	reported map[site.Kind]bool
	phase    phase
}

// NewLedger returns an empty ledger expecting the named checks for every site.
func NewLedger(checks []string) *Ledger {
	return &Ledger{
		checks: slices.Clone(checks),
		sites:  make(map[string]*siteLedger),
	}
}

// Register records a site's expected environments. Registering a site
// again is a no-op; the first registration fixes the expected set.
func (l *Ledger) Register(g site.Group) *siteLedger {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sites[g.Name]; ok {
		return s
	}
	s := &siteLedger{
		name:     g.Name,
		expected: g.Kinds(),
		checks:   make(map[string]*checkLedger, len(l.checks)),
	}
	for _, name := range l.checks {
		s.checks[name] = &checkLedger{
			reported: make(map[site.Kind]bool),
			phase:    phasePending,
		}
	}
	l.sites[g.Name] = s
	l.order = append(l.order, g.Name)
	return s
}

// record marks kind as reported for check. It returns true exactly once per
// check: when the reported set first equals the expected set.
// Callers hold s.mu.
func (s *siteLedger) record(check string, kind site.Kind) bool {
	c, ok := s.checks[check]
	if !ok {
		c = &checkLedger{reported: make(map[site.Kind]bool), phase: phasePending}
		s.checks[check] = c
	}
	if !slices.Contains(s.expected, kind) {
		return false
	}
	c.reported[kind] = true
	if c.phase != phasePending {
		return false
	}
	for _, k := range s.expected {
		if !c.reported[k] {
			return false
		}
	}
	c.phase = phaseComparing
	return true
}

// compared marks check complete. It returns true exactly once per site:
// when the last outstanding check completes. Callers hold s.mu.
func (s *siteLedger) compared(check string) bool {
	if c, ok := s.checks[check]; ok {
		c.phase = phaseComplete
	}
	if s.complete {
		return false
	}
	for _, c := range s.checks {
		if c.phase != phaseComplete {
			return false
		}
	}
	s.complete = true
	return true
}

// status snapshots the site. Callers hold s.mu.
func (s *siteLedger) status() SiteStatus {
	st := SiteStatus{
		Site:     s.name,
		Expected: slices.Clone(s.expected),
		Complete: s.complete,
	}
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		c := s.checks[name]
		cs := CheckStatus{Name: name, State: string(c.phase)}
		for _, k := range s.expected {
			if c.reported[k] {
				cs.Reported = append(cs.Reported, k)
			} else {
				cs.Missing = append(cs.Missing, k)
			}
		}
		st.Checks = append(st.Checks, cs)
	}
	return st
}

// Status returns a snapshot of one site, or false when it was never registered.
func (l *Ledger) Status(name string) (SiteStatus, bool) {
	l.mu.Lock()
	s, ok := l.sites[name]
	l.mu.Unlock()
	if !ok {
		return SiteStatus{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status(), true
}

// Incomplete lists every registered site whose comparisons did not all
// complete, in registration order.
func (l *Ledger) Incomplete() []SiteStatus {
	l.mu.Lock()
	sites := make([]*siteLedger, 0, len(l.order))
	for _, name := range l.order {
		sites = append(sites, l.sites[name])
	}
	l.mu.Unlock()

	var out []SiteStatus
	for _, s := range sites {
		s.mu.Lock()
		if !s.complete {
			out = append(out, s.status())
		}
		s.mu.Unlock()
	}
	return out
}
