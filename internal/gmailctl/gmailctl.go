// Package gmailctl imports filters compiled by the gmailctl tool as triage rules.
package gmailctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
)

// Export mirrors the JSON payload produced by `gmailctl compile --format=json`.
// Convert turns its filters into triage rules for `chronotriage filters gmailctl`
// and for audits that replay gmailctl instead of the stored rules.
type Export struct {
	Filters []Filter `json:"filters"`
	Labels  []Label  `json:"labels"`
}

// Filter represents a single Gmail filter definition.
type Filter struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Criteria FilterCriteria `json:"criteria"`
	Action   FilterAction   `json:"action"`
}

// FilterCriteria captures the subset of Gmail search predicates we replay.
type FilterCriteria struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Query   string `json:"query,omitempty"`
	List    string `json:"list,omitempty"`
}

// FilterAction describes the Gmail actions for a filter.
type FilterAction struct {
	AddLabelIDs    []string `json:"addLabelIds,omitempty"`
	RemoveLabelIDs []string `json:"removeLabelIds,omitempty"`
	Forward        string   `json:"forward,omitempty"`
}

// Label mirrors Gmail label metadata in the compile output.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Runner produces the gmailctl export that triage converts into rules, either
// from a saved compile output or by running the gmailctl binary.
type Runner struct {
	Binary    string
	ConfigDir string
	// File is a saved `gmailctl compile --format=json` output read instead of running Binary.
	File string
}

// ExportFilters returns the export from File when set, otherwise from gmailctl itself.
func (r Runner) ExportFilters(ctx context.Context) (Export, error) {
	if r.File != "" {
		f, err := os.Open(filepath.Clean(r.File))
		if err != nil {
			return Export{}, fmt.Errorf("open gmailctl export: %w", err)
		}
		defer func() { _ = f.Close() }()
		return ReadExport(f)
	}
	bin := r.Binary
	if bin == "" {
		bin = "gmailctl"
	}
	args := []string{"compile", "--format=json"}
	if dir := strings.TrimSpace(r.ConfigDir); dir != "" {
		args = append(args, "--config", dir)
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 - binary chosen by the operator
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return Export{}, fmt.Errorf("run %s: %w (stderr: %s)", bin, err, strings.TrimSpace(stderr.String()))
	}
	return ReadExport(bytes.NewReader(out))
}

// ReadExport decodes a saved `gmailctl compile --format=json` payload.
func ReadExport(r io.Reader) (Export, error) {
	var export Export
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return Export{}, fmt.Errorf("decode gmailctl output: %w", err)
	}
	if len(export.Filters) == 0 && len(export.Labels) == 0 {
		return Export{}, errors.New("gmailctl returned no filters or labels")
	}
	return export, nil
}
