package settings

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/joshsymonds/chronotriage/internal/filter"
	"github.com/joshsymonds/chronotriage/internal/queue"
)

// Document is the YAML import/export form of the persisted settings.
type Document struct {
	Filters []filter.Rule  `yaml:"filters,omitempty"`
	Queues  queue.Settings `yaml:"queues,omitempty"`
}

// DecodeDocument reads a YAML settings document.
func DecodeDocument(r io.Reader) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return Document{}, fmt.Errorf("decode settings document: %w", err)
	}
	return doc, nil
}

// EncodeDocument writes doc as YAML.
func EncodeDocument(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode settings document: %w", err)
	}
	return enc.Close()
}
