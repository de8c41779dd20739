package check

import (
	"fmt"
	"strings"

	"github.com/sznuper/sitediff/internal/result"
)

// ParsedOutput holds the KEY=VALUE output of an exec check.
type ParsedOutput struct {
	Status      result.Status
	Description string
	Fields      map[string]string // everything but status and description
	Lines       []string
}

// Parse parses KEY=VALUE lines from an exec check's stdout.
// Lines without '=' are ignored. The "status" key is required and must be
// one of passed, failed, existing or error.
func Parse(stdout string) (*ParsedOutput, error) {
	out := &ParsedOutput{
		Fields: make(map[string]string),
	}

	var rawStatus string
	var hasStatus bool
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		out.Lines = append(out.Lines, key+"="+value)

		switch key {
		case "status":
			rawStatus, hasStatus = value, true
		case "description":
			out.Description = value
		default:
			out.Fields[key] = value
		}
	}

	if !hasStatus {
		return nil, fmt.Errorf("check output missing required 'status' key")
	}
	status, err := result.ParseStatus(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("check output: %w", err)
	}
	out.Status = status

	return out, nil
}
