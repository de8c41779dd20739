// Package schedule repeats a job on a cron expression, a fixed interval, or
// whenever a watched file changes.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work. It should return when ctx is done.
type Job func(ctx context.Context)

// Trigger says when a job runs. Exactly one field is set.
type Trigger struct {
	Cron     string
	Interval time.Duration
	Watch    string
}

// DefaultDebounce collapses bursts of file events into one run.
const DefaultDebounce = 500 * time.Millisecond

// Kind names the populated trigger field.
func (t Trigger) Kind() string {
	switch {
	case t.Watch != "":
		return "watch"
	case t.Cron != "":
		return "cron"
	default:
		return "interval"
	}
}

// Validate checks that exactly one trigger is set and that it parses.
func (t Trigger) Validate() error {
	set := 0
	if t.Cron != "" {
		set++
	}
	if t.Interval != 0 {
		set++
	}
	if t.Watch != "" {
		set++
	}
	if set != 1 {
		return errors.New("schedule needs exactly one of cron, interval or watch")
	}
	if t.Interval < 0 {
		return fmt.Errorf("schedule interval %s is negative", t.Interval)
	}
	if t.Cron != "" {
		if _, err := cron.ParseStandard(t.Cron); err != nil {
			return fmt.Errorf("parse cron %q: %w", t.Cron, err)
		}
	}
	return nil
}

// Scheduler runs a job according to a trigger until its context ends.
type Scheduler struct {
	trigger  Trigger
	job      Job
	logger   *slog.Logger
	debounce time.Duration
}

// New returns a scheduler for job.
func New(trigger Trigger, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		trigger:  trigger,
		job:      job,
		logger:   logger.With("trigger", trigger.Kind()),
		debounce: DefaultDebounce,
	}
}

// Start blocks, running the job on every trigger, until ctx is done.
// Runs never overlap; a trigger firing while a run is in progress is dropped.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.trigger.Validate(); err != nil {
		return err
	}
	switch s.trigger.Kind() {
	case "watch":
		return s.watchLoop(ctx)
	case "cron":
		return s.cronLoop(ctx)
	default:
		return s.intervalLoop(ctx)
	}
}

func (s *Scheduler) intervalLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.trigger.Interval)
	defer ticker.Stop()

	s.logger.Info("starting schedule", "interval", s.trigger.Interval)
	s.job(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping schedule")
			return ctx.Err()
		case <-ticker.C:
			s.job(ctx)
		}
	}
}

func (s *Scheduler) cronLoop(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.trigger.Cron, func() { s.job(ctx) }); err != nil {
		return fmt.Errorf("parse cron %q: %w", s.trigger.Cron, err)
	}

	s.logger.Info("starting schedule", "cron", s.trigger.Cron)
	c.Start()
	<-ctx.Done()
	s.logger.Info("stopping schedule")
	<-c.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) watchLoop(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors replace files rather than write in place.
	path, err := filepath.Abs(s.trigger.Watch)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	s.logger.Info("starting schedule", "watch", path)
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info("stopping schedule")
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			s.logger.Debug("watched file changed", "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watch error", "error", err)
		case <-fire:
			fire = nil
			s.job(ctx)
		}
	}
}
