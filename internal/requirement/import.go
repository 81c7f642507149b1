package requirement

import (
	"context"
	"net/url"
	"sort"

	"github.com/papapumpkin/tptmodel/internal/apierr"
)

// Record is the state of a requirement as read from an external source.
type Record struct {
	Module     string
	Type       Type // zero means TypeRequirement
	Text       string
	Comment    string
	URI        *url.URL
	Attributes map[string]string
}

// Import brings the requirement in line with rec. Unlike the individual
// setters it sets the modified flag whenever anything differs, and it
// revives a requirement whose status is StatusDeleted to StatusNormal.
// Attributes missing from rec are removed together with their attachments.
// It reports whether anything changed.
func (r *Requirement) Import(ctx context.Context, rec Record) (bool, error) {
	if rec.Type == 0 {
		rec.Type = TypeRequirement
	}
	if !rec.Type.valid() {
		return false, apierr.Constraint("requirement: invalid type %d", int(rec.Type))
	}
	for name := range rec.Attributes {
		if err := checkAttributeName(name); err != nil {
			return false, err
		}
	}

	changed := false
	err := r.mutate("import", "", func() error {
		if r.module != rec.Module {
			r.module, changed = rec.Module, true
		}
		if r.typ != rec.Type {
			r.typ, changed = rec.Type, true
		}
		if r.text != rec.Text {
			r.text, changed = rec.Text, true
		}
		if r.comment != rec.Comment {
			r.comment, changed = rec.Comment, true
		}
		if urlString(r.uri) != urlString(rec.URI) {
			r.uri, changed = cloneURL(rec.URI), true
		}
		if r.status == StatusDeleted {
			r.status, changed = StatusNormal, true
		}

		for name, value := range rec.Attributes {
			if old, ok := r.attrs[name]; !ok || old != value {
				r.attrs[name] = value
				if !ok {
					r.attrFiles[name] = nil
				}
				changed = true
			}
		}
		var stale []string
		for name := range r.attrs {
			if _, keep := rec.Attributes[name]; !keep {
				stale = append(stale, name)
			}
		}
		sort.Strings(stale)
		if len(stale) > 0 {
			changed = true
		}

		if changed {
			r.modified = true
		}
		for _, name := range stale {
			if err := r.removeAttributeLocked(ctx, name); err != nil {
				return err
			}
		}
		return nil
	})
	return changed, err
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}
