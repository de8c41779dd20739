package site

import (
	"strings"
	"testing"
)

func TestReadCSV(t *testing.T) {
	in := `name,prod,dev,stage,update_status
alpha,https://alpha.example.com/,https://dev.alpha.example.com/,,pre_update
beta,https://beta.example.com/,,https://stage.beta.example.com/,
`
	groups, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}

	alpha := groups[0]
	if alpha.Name != "alpha" {
		t.Errorf("name = %q, want %q", alpha.Name, "alpha")
	}
	if len(alpha.Targets) != 2 {
		t.Fatalf("alpha targets = %d, want 2", len(alpha.Targets))
	}
	if _, ok := alpha.Target(Stage); ok {
		t.Error("alpha should have no stage target")
	}
	dev, ok := alpha.Target(Development)
	if !ok || dev.URL != "https://dev.alpha.example.com/" {
		t.Errorf("alpha dev = %+v", dev)
	}
	if dev.UpdateStatus != PreUpdate {
		t.Errorf("update status = %q, want %q", dev.UpdateStatus, PreUpdate)
	}

	beta := groups[1]
	if got := beta.Kinds(); len(got) != 2 || got[0] != Production || got[1] != Stage {
		t.Errorf("beta kinds = %v, want [prod stage]", got)
	}
	if beta.Targets[0].UpdateStatus != Updated {
		t.Errorf("default update status = %q, want %q", beta.Targets[0].UpdateStatus, Updated)
	}
}

func TestReadCSV_MissingName(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("site,prod\nalpha,https://a/\n"))
	if err == nil {
		t.Fatal("expected error for missing name column")
	}
}

func TestReadCSV_NoURLs(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("name,prod,dev\nalpha,,\n"))
	if err == nil {
		t.Fatal("expected error for site without urls")
	}
}

func TestGroupValidate(t *testing.T) {
	ok := Group{Name: "a", Targets: []EnvironmentTarget{
		{Site: "a", Kind: Production},
		{Site: "a", Kind: Development},
	}}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	dup := Group{Name: "a", Targets: []EnvironmentTarget{
		{Site: "a", Kind: Production},
		{Site: "a", Kind: Production},
	}}
	if err := dup.Validate(); err == nil {
		t.Error("expected error for duplicate kind")
	}

	foreign := Group{Name: "a", Targets: []EnvironmentTarget{{Site: "b", Kind: Production}}}
	if err := foreign.Validate(); err == nil {
		t.Error("expected error for foreign target")
	}

	if err := (Group{Name: "a"}).Validate(); err == nil {
		t.Error("expected error for empty group")
	}
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"alpha", "a_b", "a.example.com"} {
		if err := ValidName(name); err != nil {
			t.Errorf("ValidName(%q): %v", name, err)
		}
	}
	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		if err := ValidName(name); err == nil {
			t.Errorf("ValidName(%q): expected error", name)
		}
	}

	slash := Group{Name: "a/b", Targets: []EnvironmentTarget{{Site: "a/b", Kind: Production}}}
	if err := slash.Validate(); err == nil {
		t.Error("expected error for site name with a path separator")
	}
}

func TestMerge(t *testing.T) {
	groups := Merge(
		Group{Name: "a", Targets: []EnvironmentTarget{{Site: "a", Kind: Production, URL: "first"}}},
		Group{Name: "b", Targets: []EnvironmentTarget{{Site: "b", Kind: Production}}},
		Group{Name: "a", Targets: []EnvironmentTarget{
			{Site: "a", Kind: Production, URL: "second"},
			{Site: "a", Kind: Stage},
		}},
	)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if groups[0].Name != "a" || len(groups[0].Targets) != 2 {
		t.Fatalf("merged a = %+v", groups[0])
	}
	if groups[0].Targets[0].URL != "first" {
		t.Errorf("prod url = %q, want first target kept", groups[0].Targets[0].URL)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"prod", Production},
		{"production", Production},
		{"staging", Stage},
		{"dev", Development},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := ParseKind("qa"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
