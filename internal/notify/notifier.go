package notify

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/sznuper/sitediff/internal/result"
	"github.com/sznuper/sitediff/internal/store"
)

// DefaultTemplate is used when neither the config nor a notify target sets one.
const DefaultTemplate = `{{site.status_emoji}} {{site.name}}: {{counts.failed}} failed, {{counts.existing}} existing, {{counts.error}} errors ({{counts.passed}} passed)`

// Notifier sends a message for every completed site.
type Notifier struct {
	Refs         []NotifyRef
	Services     map[string]ServiceDef
	Template     string
	Globals      map[string]any
	NotifyOnPass bool
	DryRun       bool
	Logger       *slog.Logger

	// send delivers one target; nil means Send.
	send func(Target) error
}

// Report reads the site's comparison file and notifies every target.
// Sites whose comparisons all passed are skipped unless NotifyOnPass is set.
func (n *Notifier) Report(ctx context.Context, site string, paths map[string]string) error {
	log := n.logger().With("site", site)
	if len(n.Refs) == 0 {
		return nil
	}

	cmpPath, ok := paths[store.ComparisonKey]
	if !ok {
		return fmt.Errorf("site %s has no comparison file", site)
	}
	comparisons, err := store.ReadLatestComparisons(cmpPath)
	if err != nil {
		return fmt.Errorf("reading comparisons for %s: %w", site, err)
	}

	if !n.NotifyOnPass && overallStatus(comparisons) == result.Passed {
		log.Info("all comparisons passed, skipping notifications")
		return nil
	}

	tmpl := n.Template
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	reportPath := filepath.Join(filepath.Dir(cmpPath), store.ReportName)
	data := BuildTemplateData(n.Globals, site, comparisons, reportPath)

	targets, err := ResolveTargets(n.Refs, n.Services, tmpl, data)
	if err != nil {
		return err
	}
	log.Debug("templates rendered", "targets", len(targets))

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n.DryRun {
			if err := Validate(t); err != nil {
				return err
			}
			log.Debug("would notify (dry-run)", "service", t.ServiceName, "message", t.Message)
			continue
		}

		log.Info("sending notification", "service", t.ServiceName)
		send := n.send
		if send == nil {
			send = Send
		}
		if err := send(t); err != nil {
			return err
		}
		log.Debug("notification sent", "service", t.ServiceName)
	}
	return nil
}

func (n *Notifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}
