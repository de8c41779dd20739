package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sznuper/sitediff/internal/check"
	"github.com/sznuper/sitediff/internal/schedule"
	"github.com/sznuper/sitediff/internal/site"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("envkind", func(fl validator.FieldLevel) bool {
		_, err := site.ParseKind(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks field constraints and cross references: notify targets
// name known services and the schedule, when present, parses.
func (c *Config) Validate() error {
	var errs []error
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: failed %q%s", trimRoot(fe.Namespace()), fe.Tag(), param(fe.Param())))
		}
	}

	for _, n := range c.Notify {
		if n.Service == "" {
			continue
		}
		if _, ok := c.Services[n.Service]; !ok {
			errs = append(errs, fmt.Errorf("notify: unknown service %q", n.Service))
		}
	}
	if c.HasSchedule() {
		if err := c.Trigger().Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func trimRoot(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

func param(p string) string {
	if p == "" {
		return ""
	}
	return " (" + p + ")"
}

// Groups builds the site groups from the YAML sites and the CSV sites_file.
// Sites sharing a name are merged; the first target per kind wins.
func (c *Config) Groups() ([]site.Group, error) {
	var groups []site.Group
	for _, s := range c.Sites {
		g, err := s.group()
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	if c.SitesFile != "" {
		fromCSV, err := site.LoadCSV(c.path(c.SitesFile))
		if err != nil {
			return nil, err
		}
		groups = append(groups, fromCSV...)
	}

	merged := site.Merge(groups...)
	if len(merged) == 0 {
		return nil, errors.New("no sites configured (set sites or sites_file)")
	}
	for _, g := range merged {
		if err := g.Validate(); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func (s Site) group() (site.Group, error) {
	status := site.Updated
	if s.UpdateStatus != "" {
		status = site.UpdateStatus(s.UpdateStatus)
	}
	g := site.Group{Name: s.Name}
	// Column order keeps the target list stable across runs.
	for _, want := range site.Kinds {
		for key, url := range s.Environments {
			kind, err := site.ParseKind(key)
			if err != nil {
				return site.Group{}, fmt.Errorf("site %q: %w", s.Name, err)
			}
			if kind != want {
				continue
			}
			if _, dup := g.Target(kind); dup {
				return site.Group{}, fmt.Errorf("site %q: %s given twice", s.Name, kind)
			}
			g.Targets = append(g.Targets, site.EnvironmentTarget{
				Site:         s.Name,
				Kind:         kind,
				URL:          url,
				UpdateStatus: status,
			})
		}
	}
	return g, nil
}

// CheckSpecs converts the configured checks, filling in the default timeout.
func (c *Config) CheckSpecs() []check.Spec {
	specs := make([]check.Spec, 0, len(c.Checks))
	for _, ch := range c.Checks {
		timeout := ch.Timeout.Std()
		if timeout == 0 {
			timeout = c.Options.Timeout.Std()
		}
		specs = append(specs, check.Spec{
			Name:    ch.Name,
			Type:    ch.Type,
			URI:     ch.URI,
			Timeout: timeout,
			Args:    ch.Args,
		})
	}
	return specs
}

// HasSchedule reports whether any schedule trigger is configured.
func (c *Config) HasSchedule() bool {
	return c.Schedule != Schedule{}
}

// Trigger converts the schedule block.
func (c *Config) Trigger() schedule.Trigger {
	return schedule.Trigger{
		Cron:     c.Schedule.Cron,
		Interval: c.Schedule.Interval.Std(),
		Watch:    c.path(c.Schedule.Watch),
	}
}
