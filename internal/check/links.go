package check

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/sznuper/sitediff/internal/compare"
	"github.com/sznuper/sitediff/internal/result"
	"github.com/sznuper/sitediff/internal/site"
)

type linkArgs struct {
	MaxLinks    int `mapstructure:"max_links"`
	Concurrency int `mapstructure:"concurrency"`
}

// responseCode follows every link on a page and records the ones that do
// not answer 200 once redirects are followed.
type responseCode struct {
	name    string
	timeout time.Duration
	client  *http.Client
	args    linkArgs
}

func newResponseCode(spec Spec, client *http.Client) (*responseCode, error) {
	args := linkArgs{MaxLinks: 50, Concurrency: 4}
	if err := decodeArgs(spec.Name, spec.Args, &args); err != nil {
		return nil, err
	}
	if args.Concurrency < 1 {
		args.Concurrency = 1
	}
	return &responseCode{
		name:    spec.Name,
		timeout: spec.Timeout,
		client:  client,
		args:    args,
	}, nil
}

func (c *responseCode) Name() string { return c.name }

func (c *responseCode) Run(ctx context.Context, target site.EnvironmentTarget) (result.CheckResult, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := url.Parse(target.URL); err != nil {
		return result.CheckResult{}, fmt.Errorf("parse target url: %w", err)
	}
	page, err := c.fetch(ctx, target.URL)
	if err != nil {
		return result.CheckResult{}, err
	}
	if page.status != http.StatusOK {
		return result.CheckResult{}, fmt.Errorf("page answered %d", page.status)
	}
	// Links resolve against where the page ended up.
	base, body := page.url, page.body

	links, err := ExtractLinks(base, body)
	if err != nil {
		return result.CheckResult{}, fmt.Errorf("parse page: %w", err)
	}
	if c.args.MaxLinks > 0 && len(links) > c.args.MaxLinks {
		links = links[:c.args.MaxLinks]
	}

	var mu sync.Mutex
	broken := make(map[string]int)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.args.Concurrency)
	for _, link := range links {
		g.Go(func() error {
			resp, err := c.fetch(gctx, link.String())
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			if code := resp.status; code != http.StatusOK {
				mu.Lock()
				broken[linkKey(base, link)] = code
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result.CheckResult{}, err
	}

	res := result.CheckResult{
		Name:         c.name,
		ActualResult: broken,
	}
	if len(broken) == 0 {
		res.Status = result.Passed
		res.Description = fmt.Sprintf("all %d links answered 200", len(links))
	} else {
		res.Status = result.Failed
		res.Description = fmt.Sprintf("%d of %d links did not answer 200", len(broken), len(links))
	}
	return res, nil
}

type fetched struct {
	url    *url.URL // after redirects
	status int
	body   []byte
}

func (c *responseCode) fetch(ctx context.Context, rawURL string) (fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetched{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fetched{}, err
	}
	defer resp.Body.Close()
	f := fetched{url: resp.Request.URL, status: resp.StatusCode}
	f.body, err = io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return f, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return f, nil
}

// Compare fails when an environment has broken links that production does
// not; links broken on production too are a pre-existing site issue.
func (c *responseCode) Compare(byKind map[site.Kind][]result.CheckResult) (result.ComparisonResult, error) {
	latest := compare.Latest(byKind)
	base, ok := compare.Baseline(latest)
	if !ok {
		return result.ComparisonResult{}, fmt.Errorf("no environment reported")
	}

	var errored []string
	for _, kind := range site.Kinds {
		if r, ok := latest[kind]; ok && r.Status == result.Error {
			errored = append(errored, string(kind))
		}
	}
	if len(errored) > 0 {
		return result.ComparisonResult{
			Status:      result.Error,
			Description: "link check errored on " + strings.Join(errored, ", "),
		}, nil
	}

	baseline := brokenLinks(latest[base])
	var regressions []string
	anyBroken := len(baseline) > 0
	for _, kind := range site.Kinds {
		r, ok := latest[kind]
		if !ok || kind == base {
			continue
		}
		links := brokenLinks(r)
		if len(links) > 0 {
			anyBroken = true
		}
		for _, key := range slices.Sorted(maps.Keys(links)) {
			if _, known := baseline[key]; !known {
				regressions = append(regressions, fmt.Sprintf("%s: %s (%v)", kind, key, links[key]))
			}
		}
	}

	cmp := result.ComparisonResult{ExpectedResult: latest[base].ActualResult}
	switch {
	case len(regressions) > 0:
		cmp.Status = result.Failed
		cmp.Description = "links broken outside " + string(base) + ": " + strings.Join(regressions, "; ")
	case anyBroken:
		cmp.Status = result.ExistingIssue
		cmp.Description = fmt.Sprintf("%d links already broken on %s", len(baseline), base)
	default:
		cmp.Status = result.Passed
		cmp.Description = "no broken links in any environment"
	}
	return cmp, nil
}

// ExtractLinks returns the distinct absolute http(s) targets of every
// <a href> in page, resolved against base, in document order.
func ExtractLinks(base *url.URL, page []byte) ([]*url.URL, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	var links []*url.URL
	seen := make(map[string]bool)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(attr.Val))
				if err != nil {
					continue
				}
				abs := base.ResolveReference(ref)
				abs.Fragment = ""
				if abs.Scheme != "http" && abs.Scheme != "https" {
					continue
				}
				if s := abs.String(); !seen[s] {
					seen[s] = true
					links = append(links, abs)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return links, nil
}

// linkKey makes same-site links comparable across environments by dropping
// the environment's host.
func linkKey(base, link *url.URL) string {
	if strings.EqualFold(link.Host, base.Host) {
		return link.RequestURI()
	}
	return link.String()
}

func brokenLinks(r result.CheckResult) map[string]any {
	out := make(map[string]any)
	switch m := r.ActualResult.(type) {
	case map[string]int:
		for k, v := range m {
			out[k] = v
		}
	case map[string]any:
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
