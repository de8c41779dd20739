// Package result holds the records written for every check run and every
// cross-environment comparison. Field names are part of the on-disk format.
package result

import (
	"fmt"
	"strings"
)

// Status is the verdict of a check or a comparison.
type Status string

const (
	Passed        Status = "Passed"
	Failed        Status = "Failed"
	ExistingIssue Status = "Existing Site Issue"
	Error         Status = "Error"
)

// Statuses lists every status in report order.
var Statuses = []Status{Passed, Failed, ExistingIssue, Error}

// ParseStatus accepts the persisted spelling as well as the short forms
// emitted by exec checks (passed, failed, existing, error).
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "passed", "pass", "ok":
		return Passed, nil
	case "failed", "fail":
		return Failed, nil
	case "existing", "existing_issue", "existing site issue":
		return ExistingIssue, nil
	case "error":
		return Error, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// CheckResult is the outcome of one check against one environment.
type CheckResult struct {
	Name         string `json:"Name"`
	Status       Status `json:"Status"`
	Description  string `json:"Description"`
	ActualResult any    `json:"Actual_Result"`
}

// ErrorResult wraps a failed check execution so it is still recorded.
func ErrorResult(name string, err error) CheckResult {
	return CheckResult{
		Name:        name,
		Status:      Error,
		Description: err.Error(),
	}
}

// ComparisonResult is the outcome of comparing one check across every
// environment of a site.
type ComparisonResult struct {
	Name           string `json:"Name"`
	Status         Status `json:"Status"`
	Description    string `json:"Description"`
	ExpectedResult any    `json:"Expected_Result"`
}

// Counts tallies comparisons per status.
func Counts(comparisons []ComparisonResult) map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}
	for _, c := range comparisons {
		counts[c.Status]++
	}
	return counts
}

// Latest keeps the last comparison recorded under each name, in order of
// first appearance. Runs started in the same minute share a comparison
// file, and the later run's verdict replaces the earlier one.
func Latest(comparisons []ComparisonResult) []ComparisonResult {
	index := make(map[string]int, len(comparisons))
	var out []ComparisonResult
	for _, c := range comparisons {
		if i, ok := index[c.Name]; ok {
			out[i] = c
			continue
		}
		index[c.Name] = len(out)
		out = append(out, c)
	}
	return out
}
