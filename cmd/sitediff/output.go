package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sznuper/sitediff/internal/result"
	"github.com/sznuper/sitediff/internal/runner"
	"github.com/sznuper/sitediff/internal/store"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

func statusStyle(s result.Status) lipgloss.Style {
	switch s {
	case result.Passed:
		return okStyle
	case result.ExistingIssue:
		return warnStyle
	default:
		return failStyle
	}
}

func printSummary(w io.Writer, s runner.Summary, dryRun bool) {
	for _, o := range s.Sites {
		printOutcome(w, o)
	}

	for _, st := range s.Incomplete {
		fmt.Fprintf(w, "%s %s incomplete\n", warnStyle.Render("!"), titleStyle.Render(st.Site))
		for _, c := range st.Checks {
			if c.State == "complete" {
				continue
			}
			fmt.Fprintf(w, "    %s: %s, missing %s\n", c.Name, c.State, joinKinds(c.Missing))
		}
	}

	line := fmt.Sprintf("%d sites, %d incomplete, %s", len(s.Sites), len(s.Incomplete), s.Duration.Round(1e6))
	if dryRun {
		line += " (dry run: notifications validated, not sent)"
	}
	fmt.Fprintln(w, dimStyle.Render(line))
}

func printOutcome(w io.Writer, o runner.SiteOutcome) {
	if o.Err != nil {
		fmt.Fprintf(w, "%s %s\n", failStyle.Render("✗"), titleStyle.Render(o.Site))
		fmt.Fprintf(w, "  Error (%s): %s\n", o.ErrStage, o.Err)
		return
	}
	if !o.Complete {
		return
	}

	comparisons, err := store.ReadLatestComparisons(o.Paths[store.ComparisonKey])
	if err != nil {
		fmt.Fprintf(w, "%s %s\n", warnStyle.Render("?"), titleStyle.Render(o.Site))
		fmt.Fprintf(w, "  cannot read comparisons: %s\n", err)
		return
	}

	mark := okStyle.Render("✓")
	for _, c := range comparisons {
		if c.Status != result.Passed {
			mark = statusStyle(c.Status).Render("✗")
			break
		}
	}
	fmt.Fprintf(w, "%s %s %s\n", mark, titleStyle.Render(o.Site), dimStyle.Render(o.Duration.Round(1e6).String()))
	for _, c := range comparisons {
		fmt.Fprintf(w, "  %-24s %s", c.Name, statusStyle(c.Status).Render(string(c.Status)))
		if c.Status != result.Passed && c.Description != "" {
			fmt.Fprintf(w, "  %s", dimStyle.Render(c.Description))
		}
		fmt.Fprintln(w)
	}
	if cmp, ok := o.Paths[store.ComparisonKey]; ok {
		fmt.Fprintf(w, "  %s\n", dimStyle.Render(cmp))
	}
}

func joinKinds[K ~string](kinds []K) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
