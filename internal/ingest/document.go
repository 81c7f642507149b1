// Package ingest reads requirement documents from TOML files and applies
// them to a project, either once or every time the file changes on disk.
//
// A document lists requirements as an array of tables:
//
//	[[requirement]]
//	id = "REQ-1"
//	module = "brakes"
//	type = "requirement"
//	text = "The vehicle shall brake."
//	uri = "doors://server/obj?id=1"
//
//	[requirement.attributes]
//	Owner = "Alice"
package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/requirement"
)

// ErrInvalidDocument is returned for documents that parse as TOML but do
// not describe a valid requirement set.
var ErrInvalidDocument = fmt.Errorf("%w: invalid requirement document", apierr.ErrConstraint)

// Entry is one [[requirement]] table.
type Entry struct {
	ID         string            `toml:"id"`
	Module     string            `toml:"module"`
	Type       string            `toml:"type"`
	Text       string            `toml:"text"`
	Comment    string            `toml:"comment"`
	URI        string            `toml:"uri"`
	Attributes map[string]string `toml:"attributes"`
}

// Document is a parsed requirement document.
type Document struct {
	Requirements []Entry `toml:"requirement"`
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: reading %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("ingest: %s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes and validates a document. Nothing is applied anywhere, so
// an invalid document never leaves a project half-imported.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := toml.Unmarshal(data, &doc); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("%w: line %d column %d: %s", ErrInvalidDocument, row, col, derr.Error())
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks every entry: ids present and unique, known types,
// parseable URIs, no reserved attribute names.
func (d *Document) Validate() error {
	seen := make(map[string]bool, len(d.Requirements))
	for i, e := range d.Requirements {
		if e.ID == "" {
			return fmt.Errorf("%w: requirement #%d has no id", ErrInvalidDocument, i+1)
		}
		if seen[e.ID] {
			return fmt.Errorf("%w: duplicate requirement %q", ErrInvalidDocument, e.ID)
		}
		seen[e.ID] = true
		if _, err := e.Record(); err != nil {
			return fmt.Errorf("%w: requirement %q: %v", ErrInvalidDocument, e.ID, err)
		}
	}
	return nil
}

// Modules returns the set of modules the document covers.
func (d *Document) Modules() map[string]bool {
	out := make(map[string]bool)
	for _, e := range d.Requirements {
		out[e.Module] = true
	}
	return out
}

// Record converts the entry into the form Requirement.Import takes.
func (e Entry) Record() (requirement.Record, error) {
	typ, err := requirement.ParseType(e.Type)
	if err != nil {
		return requirement.Record{}, err
	}
	var u *url.URL
	if e.URI != "" {
		if u, err = url.Parse(e.URI); err != nil {
			return requirement.Record{}, fmt.Errorf("uri: %w", err)
		}
	}
	for name := range e.Attributes {
		if name == "" || requirement.IsReserved(name) {
			return requirement.Record{}, fmt.Errorf("attribute name %q is reserved", name)
		}
	}
	return requirement.Record{
		Module:     e.Module,
		Type:       typ,
		Text:       e.Text,
		Comment:    e.Comment,
		URI:        u,
		Attributes: e.Attributes,
	}, nil
}
