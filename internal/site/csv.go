package site

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadCSV reads site groups from a CSV file with a header row naming the
// columns name, prod, dev, stage and optionally update_status. An empty
// environment cell means the site has no such environment.
func LoadCSV(path string) ([]Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sites file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses site groups from r. See LoadCSV for the expected layout.
func ReadCSV(r io.Reader) ([]Group, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("sites file is empty")
		}
		return nil, fmt.Errorf("reading sites header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	nameCol, ok := cols["name"]
	if !ok {
		return nil, fmt.Errorf("sites file is missing the name column (have %v)", header)
	}

	envCols := make(map[Kind]int)
	for col, i := range cols {
		if kind, err := ParseKind(col); err == nil {
			envCols[kind] = i
		}
	}
	if len(envCols) == 0 {
		return nil, fmt.Errorf("sites file has no environment columns (want prod, dev or stage)")
	}
	statusCol, hasStatus := cols["update_status"]

	var groups []Group
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading sites file line %d: %w", line, err)
		}

		name := cell(rec, nameCol)
		if name == "" {
			continue
		}
		status := Updated
		if hasStatus {
			if s := cell(rec, statusCol); s != "" {
				status = UpdateStatus(s)
			}
		}

		g := Group{Name: name}
		for _, kind := range Kinds {
			i, ok := envCols[kind]
			if !ok {
				continue
			}
			url := cell(rec, i)
			if url == "" {
				continue
			}
			g.Targets = append(g.Targets, EnvironmentTarget{
				Site:         name,
				Kind:         kind,
				URL:          url,
				UpdateStatus: status,
			})
		}
		if len(g.Targets) == 0 {
			return nil, fmt.Errorf("sites file line %d: site %q has no environment urls", line, name)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func cell(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
