package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/sznuper/sitediff/internal/result"
)

// TemplateData holds all data available to notification templates.
type TemplateData struct {
	Globals     map[string]any
	Site        map[string]string
	Counts      map[string]int
	Comparisons []result.ComparisonResult
}

// BuildTemplateData constructs template data from a site's comparisons.
// Counts are keyed by the lowercased first word of each status, so
// {{counts.existing}} reads the Existing Site Issue tally.
func BuildTemplateData(globals map[string]any, siteName string, comparisons []result.ComparisonResult, reportPath string) TemplateData {
	counts := make(map[string]int, len(result.Statuses))
	for status, n := range result.Counts(comparisons) {
		counts[countKey(status)] = n
	}

	status := overallStatus(comparisons)
	s := map[string]string{
		"name":         siteName,
		"status":       string(status),
		"status_emoji": statusEmoji(status),
		"report":       reportPath,
	}

	return TemplateData{
		Globals:     globals,
		Site:        s,
		Counts:      counts,
		Comparisons: comparisons,
	}
}

func countKey(s result.Status) string {
	word, _, _ := strings.Cut(string(s), " ")
	return strings.ToLower(word)
}

// overallStatus picks the most severe comparison status.
func overallStatus(comparisons []result.ComparisonResult) result.Status {
	rank := map[result.Status]int{
		result.Passed:        0,
		result.ExistingIssue: 1,
		result.Failed:        2,
		result.Error:         3,
	}
	worst := result.Passed
	for _, c := range comparisons {
		if rank[c.Status] > rank[worst] {
			worst = c.Status
		}
	}
	return worst
}

func statusEmoji(status result.Status) string {
	switch status {
	case result.Error:
		return "\U0001f534" // 🔴
	case result.Failed:
		return "\U0001f7e0" // 🟠
	case result.ExistingIssue:
		return "\U0001f7e1" // 🟡
	case result.Passed:
		return "\U0001f7e2" // 🟢
	default:
		return "\u2753" // ❓
	}
}

// Render executes a Go text/template string with Sprig functions and the
// custom accessor functions (site, counts, globals, comparisons).
func Render(tmplStr string, data TemplateData) (string, error) {
	funcMap := sprig.TxtFuncMap()

	// Register accessor functions so {{site.name}} works:
	// "site" returns the site map, then ".name" accesses a key.
	funcMap["site"] = func() map[string]string { return data.Site }
	funcMap["counts"] = func() map[string]int { return data.Counts }
	funcMap["globals"] = func() map[string]any { return data.Globals }
	funcMap["comparisons"] = func() []result.ComparisonResult { return data.Comparisons }

	t, err := template.New("notify").Funcs(funcMap).Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}

	return buf.String(), nil
}
