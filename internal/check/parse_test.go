package check

import (
	"testing"

	"github.com/sznuper/sitediff/internal/result"
)

func TestParse_Valid(t *testing.T) {
	stdout := "status=failed\ndescription=3 console errors\nerrors=3\n"
	out, err := Parse(stdout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != result.Failed {
		t.Errorf("status = %q, want %q", out.Status, result.Failed)
	}
	if out.Description != "3 console errors" {
		t.Errorf("description = %q, want %q", out.Description, "3 console errors")
	}
	if out.Fields["errors"] != "3" {
		t.Errorf("errors = %q, want %q", out.Fields["errors"], "3")
	}
	if _, ok := out.Fields["status"]; ok {
		t.Error("status should not be repeated in fields")
	}
	if len(out.Lines) != 3 {
		t.Errorf("lines = %d, want 3", len(out.Lines))
	}
}

func TestParse_MissingStatus(t *testing.T) {
	_, err := Parse("errors=3\n")
	if err == nil {
		t.Fatal("expected error for missing status")
	}
}

func TestParse_UnknownStatus(t *testing.T) {
	_, err := Parse("status=warning\n")
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestParse_StatusSpellings(t *testing.T) {
	tests := []struct {
		in   string
		want result.Status
	}{
		{"passed", result.Passed},
		{"Passed", result.Passed},
		{"fail", result.Failed},
		{"existing", result.ExistingIssue},
		{"Existing Site Issue", result.ExistingIssue},
		{"error", result.Error},
	}
	for _, tt := range tests {
		out, err := Parse("status=" + tt.in)
		if err != nil {
			t.Fatalf("status=%s: unexpected error: %v", tt.in, err)
		}
		if out.Status != tt.want {
			t.Errorf("status=%s: got %q, want %q", tt.in, out.Status, tt.want)
		}
	}
}

func TestParse_NoEqualsIgnored(t *testing.T) {
	stdout := "status=passed\nsome random line\nerrors=0\n"
	out, err := Parse(stdout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Lines) != 2 {
		t.Errorf("lines = %d, want 2", len(out.Lines))
	}
}

func TestParse_ValueWithEquals(t *testing.T) {
	out, err := Parse("status=passed\nmessage=a=b=c\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Fields["message"] != "a=b=c" {
		t.Errorf("message = %q, want %q", out.Fields["message"], "a=b=c")
	}
}

func TestParse_WhitespaceHandling(t *testing.T) {
	out, err := Parse("  status = passed  \n  errors = 42  \n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != result.Passed {
		t.Errorf("status = %q, want %q", out.Status, result.Passed)
	}
	if out.Fields["errors"] != "42" {
		t.Errorf("errors = %q, want %q", out.Fields["errors"], "42")
	}
}
