package site

import (
	"fmt"
	"slices"
	"strings"
)

// Kind is a deployment variant of a site.
type Kind string

const (
	Production  Kind = "prod"
	Development Kind = "dev"
	Stage       Kind = "stage"
)

// Kinds lists every environment kind in report column order.
var Kinds = []Kind{Production, Stage, Development}

// ParseKind maps config spellings onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "prod", "production":
		return Production, nil
	case "dev", "development":
		return Development, nil
	case "stage", "staging":
		return Stage, nil
	default:
		return "", fmt.Errorf("unknown environment kind %q", s)
	}
}

// UpdateStatus records where in a rollout an environment sits. Informational.
type UpdateStatus string

const (
	PreUpdate   UpdateStatus = "pre_update"
	Updated     UpdateStatus = "updated"
	PostUpdated UpdateStatus = "post_updated"
)

// EnvironmentTarget identifies one deployment variant of a site.
type EnvironmentTarget struct {
	Site         string
	Kind         Kind
	URL          string
	UpdateStatus UpdateStatus
}

func (t EnvironmentTarget) String() string {
	return t.Site + "/" + string(t.Kind)
}

// Group is the set of environment targets sharing one logical site name.
type Group struct {
	Name    string
	Targets []EnvironmentTarget
}

// Kinds returns the environment kinds expected to report for the group.
func (g Group) Kinds() []Kind {
	kinds := make([]Kind, 0, len(g.Targets))
	for _, t := range g.Targets {
		kinds = append(kinds, t.Kind)
	}
	return kinds
}

// Target returns the group member for kind.
func (g Group) Target(kind Kind) (EnvironmentTarget, bool) {
	for _, t := range g.Targets {
		if t.Kind == kind {
			return t, true
		}
	}
	return EnvironmentTarget{}, false
}

// ValidName reports whether name can be used as a results directory name.
// Names are stored as given, so path separators are rejected rather than
// rewritten.
func ValidName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("site group has no name")
	case name == "." || name == "..":
		return fmt.Errorf("site name %q is not allowed", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("site name %q must not contain path separators", name)
	}
	return nil
}

// Validate checks the group invariants: non-empty, one name, one target per kind.
func (g Group) Validate() error {
	if err := ValidName(g.Name); err != nil {
		return err
	}
	if len(g.Targets) == 0 {
		return fmt.Errorf("site %q has no environments", g.Name)
	}
	seen := make(map[Kind]bool, len(g.Targets))
	for _, t := range g.Targets {
		if t.Site != g.Name {
			return fmt.Errorf("site %q: target %s belongs to another site", g.Name, t)
		}
		if !slices.Contains(Kinds, t.Kind) {
			return fmt.Errorf("site %q: unknown environment kind %q", g.Name, t.Kind)
		}
		if seen[t.Kind] {
			return fmt.Errorf("site %q: duplicate %s environment", g.Name, t.Kind)
		}
		seen[t.Kind] = true
	}
	return nil
}

// Merge folds groups sharing a name together, keeping the first target seen
// for each kind. Order of first appearance is preserved.
func Merge(groups ...Group) []Group {
	var out []Group
	index := make(map[string]int)
	for _, g := range groups {
		i, ok := index[g.Name]
		if !ok {
			index[g.Name] = len(out)
			out = append(out, Group{Name: g.Name})
			i = len(out) - 1
		}
		for _, t := range g.Targets {
			if _, dup := out[i].Target(t.Kind); dup {
				continue
			}
			out[i].Targets = append(out[i].Targets, t)
		}
	}
	return out
}
