// Package report renders a site's stored results into a standalone HTML page.
package report

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/google/renameio/v2"

	"github.com/sznuper/sitediff/internal/result"
	"github.com/sznuper/sitediff/internal/site"
	"github.com/sznuper/sitediff/internal/store"
)

//go:embed report.html.tmpl
var pageTemplate string

var page = template.Must(template.New("report").Funcs(sprig.HtmlFuncMap()).Parse(pageTemplate))

// Page is the data behind one report.
type Page struct {
	Site      string
	Generated time.Time
	Kinds     []site.Kind
	Counts    map[result.Status]int
	Statuses  []result.Status
	Rows      []Row
}

// Row is one comparison with the per-environment outcome that fed it.
type Row struct {
	Comparison result.ComparisonResult
	Expected   string
	Cells      map[site.Kind]Cell
}

// Cell is one environment's latest result for a check.
type Cell struct {
	Status      result.Status
	Description string
	Actual      string
	Missing     bool
}

// HTML writes report.html for every completed site.
type HTML struct {
	alloc  *store.Allocator
	logger *slog.Logger
	now    func() time.Time
}

// New returns a reporter writing into alloc's run directories.
func New(alloc *store.Allocator, logger *slog.Logger) *HTML {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTML{alloc: alloc, logger: logger, now: time.Now}
}

// Report builds the page from the files in paths and writes it next to the
// comparison file.
func (h *HTML) Report(ctx context.Context, name string, paths map[string]string) error {
	p, err := Build(name, paths)
	if err != nil {
		return err
	}
	p.Generated = h.now()

	out, err := h.alloc.ReportFile(name)
	if err != nil {
		return fmt.Errorf("report for %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := Render(&buf, p); err != nil {
		return fmt.Errorf("report for %s: %w", name, err)
	}
	if err := renameio.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing report for %s: %w", name, err)
	}
	h.logger.Info("report written", "site", name, "path", out)
	return nil
}

// Build reads the comparison file and every environment file named in paths.
func Build(name string, paths map[string]string) (Page, error) {
	p := Page{Site: name, Statuses: result.Statuses}

	cmpPath, ok := paths[store.ComparisonKey]
	if !ok {
		return p, fmt.Errorf("site %s has no comparison file", name)
	}
	comparisons, err := store.ReadLatestComparisons(cmpPath)
	if err != nil {
		return p, fmt.Errorf("reading comparisons for %s: %w", name, err)
	}
	p.Counts = result.Counts(comparisons)

	byKind := make(map[site.Kind][]result.CheckResult)
	for _, kind := range site.Kinds {
		path, ok := paths[string(kind)]
		if !ok {
			continue
		}
		list, err := store.ReadCheckResults(path)
		if err != nil {
			return p, fmt.Errorf("reading %s results for %s: %w", kind, name, err)
		}
		byKind[kind] = list
		p.Kinds = append(p.Kinds, kind)
	}

	for _, c := range comparisons {
		row := Row{
			Comparison: c,
			Expected:   formatValue(c.ExpectedResult),
			Cells:      make(map[site.Kind]Cell, len(p.Kinds)),
		}
		for _, kind := range p.Kinds {
			cell := Cell{Missing: true}
			for _, r := range byKind[kind] {
				if r.Name == c.Name {
					cell = Cell{
						Status:      r.Status,
						Description: r.Description,
						Actual:      formatValue(r.ActualResult),
					}
				}
			}
			row.Cells[kind] = cell
		}
		p.Rows = append(p.Rows, row)
	}
	return p, nil
}

// Render writes the page as HTML.
func Render(w io.Writer, p Page) error {
	return page.Execute(w, p)
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
