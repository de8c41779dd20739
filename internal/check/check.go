// Package check defines what a check is and provides the built-in ones.
//
// A check runs against a single environment of a site and knows how to
// compare its own results across environments.
package check

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/sznuper/sitediff/internal/result"
	"github.com/sznuper/sitediff/internal/site"
)

// Check is one named test that can be run per environment and compared
// across environments.
type Check interface {
	Name() string
	Run(ctx context.Context, target site.EnvironmentTarget) (result.CheckResult, error)
	Compare(byKind map[site.Kind][]result.CheckResult) (result.ComparisonResult, error)
}

// Spec describes a configured check.
type Spec struct {
	Name    string
	Type    string
	URI     string // exec checks only
	Timeout time.Duration
	Args    map[string]any
}

// Env holds what checks need from the outside.
type Env struct {
	ChecksDir  string
	HTTPClient *http.Client
}

// Supported check types.
const (
	TypePageNotFound = "page_not_found"
	TypeResponseCode = "response_code"
	TypeExec         = "exec"
)

// Types lists every check type Build understands.
var Types = []string{TypePageNotFound, TypeResponseCode, TypeExec}

// Build constructs the check described by spec.
func Build(spec Spec, env Env) (Check, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("check has no name")
	}
	client := env.HTTPClient
	if client == nil {
		client = NewHTTPClient()
	}

	switch spec.Type {
	case TypePageNotFound:
		return newPageNotFound(spec, client)
	case TypeResponseCode:
		return newResponseCode(spec, followRedirects(client))
	case TypeExec:
		return newExec(spec, env.ChecksDir)
	default:
		return nil, fmt.Errorf("check %q: unsupported type %q", spec.Name, spec.Type)
	}
}

// NewHTTPClient returns a client that reports redirects instead of
// following them, so a 301 is observable.
func NewHTTPClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// maxRedirects bounds how many hops a followed link may take.
const maxRedirects = 5

// followRedirects returns a copy of c that follows up to maxRedirects hops.
// A chain longer than that reports its last 3xx.
func followRedirects(c *http.Client) *http.Client {
	follow := *c
	follow.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}
	return &follow
}

func decodeArgs(name string, args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		ZeroFields:       true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("check %q: decoding args: %w", name, err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
