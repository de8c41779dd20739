package runner

import (
	"errors"
	"fmt"
	"time"

	"github.com/sznuper/sitediff/internal/site"
)

// Failure stages reported in SiteOutcome.ErrStage and StageError.Stage.
const (
	StageStore   = "store"
	StageCompare = "compare"
	StageLedger  = "ledger"
	StageTarget  = "target"
	StageCancel  = "cancel"
)

// ErrUnknownTarget is returned by Execute when the target does not belong
// to the group it is executed for.
var ErrUnknownTarget = errors.New("target does not belong to site")

// StageError tags an Execute failure with the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// CheckStatus is one check's ledger entry.
type CheckStatus struct {
	Name     string      `json:"name"`
	State    string      `json:"state"`
	Reported []site.Kind `json:"reported"`
	Missing  []site.Kind `json:"missing,omitempty"`
}

// SiteStatus is one site's ledger entry. It is also what ledger.json holds.
type SiteStatus struct {
	Site     string        `json:"site"`
	Expected []site.Kind   `json:"expected"`
	Complete bool          `json:"complete"`
	Checks   []CheckStatus `json:"checks"`
}

// SiteOutcome captures how far one site got in a run.
// Errors are stored in Err/ErrStage rather than returned, so the caller always
// has something to display.
type SiteOutcome struct {
	Site     string
	Complete bool
	Reported bool              // reporters were handed the paths
	Paths    map[string]string // path index at the end of the run
	Duration time.Duration
	Err      error
	ErrStage string // "store", "compare", "ledger", "target", "cancel"
}

// Summary is the outcome of a whole run.
type Summary struct {
	Started    time.Time
	Duration   time.Duration
	Sites      []SiteOutcome
	Incomplete []SiteStatus
}

// Failed reports whether any site errored or did not complete.
func (s Summary) Failed() bool {
	if len(s.Incomplete) > 0 {
		return true
	}
	for _, o := range s.Sites {
		if o.Err != nil {
			return true
		}
	}
	return false
}

// Err joins every per-site error.
func (s Summary) Err() error {
	var errs []error
	for _, o := range s.Sites {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Site, o.Err))
		}
	}
	return errors.Join(errs...)
}
