package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/project"
	"github.com/papapumpkin/tptmodel/internal/requirement"
)

// Outcome labels, shared with the import metrics and telemetry.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeDeleted   = "deleted"
	OutcomeUnchanged = "unchanged"
)

// Report lists the external ids touched by one Apply, per outcome. Each
// list is sorted.
type Report struct {
	Source    string   `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty"`
	Created   []string `json:"created,omitempty" yaml:"created,omitempty" toml:"created,omitempty"`
	Updated   []string `json:"updated,omitempty" yaml:"updated,omitempty" toml:"updated,omitempty"`
	Deleted   []string `json:"deleted,omitempty" yaml:"deleted,omitempty" toml:"deleted,omitempty"`
	Unchanged []string `json:"unchanged,omitempty" yaml:"unchanged,omitempty" toml:"unchanged,omitempty"`
}

// Counts returns the number of requirements per outcome.
func (r Report) Counts() map[string]int {
	return map[string]int{
		OutcomeCreated:   len(r.Created),
		OutcomeUpdated:   len(r.Updated),
		OutcomeDeleted:   len(r.Deleted),
		OutcomeUnchanged: len(r.Unchanged),
	}
}

func (r *Report) sort() {
	for _, l := range [][]string{r.Created, r.Updated, r.Deleted, r.Unchanged} {
		sort.Strings(l)
	}
}

// Apply brings p in line with doc:
//   - unknown ids become new requirements with status New;
//   - known ids are updated through Requirement.Import, which sets the
//     modified flag when anything differs;
//   - requirements of a module the document covers, but which the document
//     no longer lists, get status Deleted.
//
// A transport failure from the attachment store stops the import midway;
// the returned report lists what was applied before it.
func Apply(ctx context.Context, p *project.Project, doc *Document, source string) (Report, error) {
	rep := Report{Source: source}
	if err := doc.Validate(); err != nil {
		return rep, err
	}

	listed := make(map[string]bool, len(doc.Requirements))
	for _, e := range doc.Requirements {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		listed[e.ID] = true
		outcome, err := applyEntry(ctx, p, e)
		if err != nil {
			return rep, fmt.Errorf("ingest: %s: %w", e.ID, err)
		}
		switch outcome {
		case OutcomeCreated:
			rep.Created = append(rep.Created, e.ID)
		case OutcomeUpdated:
			rep.Updated = append(rep.Updated, e.ID)
		default:
			rep.Unchanged = append(rep.Unchanged, e.ID)
		}
	}

	modules := doc.Modules()
	for _, ext := range p.ExternalIDs() {
		if listed[ext] {
			continue
		}
		deleted, err := retire(p, ext, modules)
		if err != nil {
			return rep, fmt.Errorf("ingest: retire %s: %w", ext, err)
		}
		if deleted {
			rep.Deleted = append(rep.Deleted, ext)
		}
	}

	rep.sort()
	p.RecordImport(source, rep.Counts())
	return rep, nil
}

func applyEntry(ctx context.Context, p *project.Project, e Entry) (string, error) {
	rec, err := e.Record()
	if err != nil {
		return "", err
	}

	r, err := p.RequirementByExternalID(e.ID)
	if errors.Is(err, apierr.ErrNotFound) {
		return OutcomeCreated, create(ctx, p, e.ID, rec)
	}
	if err != nil {
		return "", err
	}
	changed, err := r.Import(ctx, rec)
	if err != nil {
		return "", err
	}
	if changed {
		return OutcomeUpdated, nil
	}
	return OutcomeUnchanged, nil
}

func create(ctx context.Context, p *project.Project, id string, rec requirement.Record) error {
	r, err := p.CreateRequirement(requirement.Spec{
		ExternalID: id,
		Module:     rec.Module,
		Type:       rec.Type,
		Text:       rec.Text,
		Comment:    rec.Comment,
		URI:        rec.URI,
		Status:     requirement.StatusNew,
	})
	if err != nil {
		return err
	}
	names := make([]string, 0, len(rec.Attributes))
	for name := range rec.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := rec.Attributes[name]
		if err := r.SetAttribute(ctx, name, &v); err != nil {
			return err
		}
	}
	return nil
}

// retire marks ext Deleted when its module is covered by the import. It
// reports whether the status changed.
func retire(p *project.Project, ext string, modules map[string]bool) (bool, error) {
	r, err := p.RequirementByExternalID(ext)
	if err != nil {
		// Deleted concurrently.
		return false, nil
	}
	mod, err := r.Module()
	if err != nil {
		return false, ignoreDisposed(err)
	}
	if !modules[mod] {
		return false, nil
	}
	st, err := r.Status()
	if err != nil {
		return false, ignoreDisposed(err)
	}
	if st == requirement.StatusDeleted {
		return false, nil
	}
	if err := r.SetStatus(requirement.StatusDeleted); err != nil {
		return false, ignoreDisposed(err)
	}
	return true, nil
}

func ignoreDisposed(err error) error {
	if errors.Is(err, apierr.ErrDisposed) {
		return nil
	}
	return err
}
