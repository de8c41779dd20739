package check

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/sznuper/sitediff/internal/compare"
	"github.com/sznuper/sitediff/internal/result"
	"github.com/sznuper/sitediff/internal/site"
)

type notFoundArgs struct {
	Path   string `mapstructure:"path"`
	Expect []int  `mapstructure:"expect"`
}

// pageNotFound requests a page that must not exist and expects the site to
// answer with a not-found (or redirect) status.
type pageNotFound struct {
	name    string
	timeout time.Duration
	client  *http.Client
	args    notFoundArgs
}

func newPageNotFound(spec Spec, client *http.Client) (*pageNotFound, error) {
	args := notFoundArgs{
		Path:   "404",
		Expect: []int{http.StatusNotFound, http.StatusMovedPermanently},
	}
	if err := decodeArgs(spec.Name, spec.Args, &args); err != nil {
		return nil, err
	}
	return &pageNotFound{
		name:    spec.Name,
		timeout: spec.Timeout,
		client:  client,
		args:    args,
	}, nil
}

func (c *pageNotFound) Name() string { return c.name }

func (c *pageNotFound) Run(ctx context.Context, target site.EnvironmentTarget) (result.CheckResult, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	url := strings.TrimRight(target.URL, "/") + "/" + strings.TrimLeft(c.args.Path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return result.CheckResult{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return result.CheckResult{}, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	res := result.CheckResult{
		Name:         c.name,
		ActualResult: resp.StatusCode,
	}
	if slices.Contains(c.args.Expect, resp.StatusCode) {
		res.Status = result.Passed
		res.Description = fmt.Sprintf("%s answered %d", url, resp.StatusCode)
	} else {
		res.Status = result.Failed
		res.Description = fmt.Sprintf("%s answered %d, want one of %v", url, resp.StatusCode, c.args.Expect)
	}
	return res, nil
}

// Compare passes when every environment answers the missing page with the
// same status code as the baseline.
func (c *pageNotFound) Compare(byKind map[site.Kind][]result.CheckResult) (result.ComparisonResult, error) {
	latest := compare.Latest(byKind)
	base, ok := compare.Baseline(latest)
	if !ok {
		return result.ComparisonResult{}, fmt.Errorf("no environment reported")
	}
	want := codeOf(latest[base])

	var diffs []string
	for _, kind := range site.Kinds {
		r, ok := latest[kind]
		if !ok || kind == base {
			continue
		}
		if got := codeOf(r); got != want {
			diffs = append(diffs, fmt.Sprintf("%s answered %s", kind, got))
		}
	}

	cmp := result.ComparisonResult{ExpectedResult: latest[base].ActualResult}
	switch {
	case len(diffs) > 0:
		cmp.Status = result.Failed
		cmp.Description = fmt.Sprintf("%s answered %s but %s", base, want, strings.Join(diffs, ", "))
	case latest[base].Status == result.Passed:
		cmp.Status = result.Passed
		cmp.Description = fmt.Sprintf("every environment answered %s", want)
	case latest[base].Status == result.Error:
		cmp.Status = result.Error
		cmp.Description = "not-found request errored in every environment"
	default:
		cmp.Status = result.ExistingIssue
		cmp.Description = fmt.Sprintf("every environment answered %s", want)
	}
	return cmp, nil
}

func codeOf(r result.CheckResult) string {
	if r.Status == result.Error {
		return "error"
	}
	return fmt.Sprint(r.ActualResult)
}
