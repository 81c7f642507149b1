// Package requirement implements the requirement entity: its descriptive
// fields, its attribute map with per-attribute attachments, and the
// modified/reviewed flags that tell ingestion-driven changes apart from
// programmatic edits.
//
// Every exported method serializes on the entity's lock for the whole call
// and fails with apierr.ErrDisposed once the requirement is disposed.
package requirement

import (
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/attachment"
	"github.com/papapumpkin/tptmodel/internal/registry"
)

// Spec holds the fields a requirement is created with.
type Spec struct {
	ExternalID string
	Module     string
	Type       Type // zero means TypeRequirement
	Text       string
	Comment    string
	URI        *url.URL
	Status     Status // zero means StatusNew
}

// Change describes a completed mutation. It is delivered after the entity
// lock is released.
type Change struct {
	ID   registry.ID
	Op   string
	Name string // attribute or attachment file name, when relevant
}

// Options wires a requirement to its collaborators.
type Options struct {
	// Blobs keeps attachment content. Required.
	Blobs attachment.Store
	// OnChange, if set, observes every successful mutation.
	OnChange func(Change)
}

// Requirement is one row of a project's requirement list.
type Requirement struct {
	registry.Base

	blobs    attachment.Store
	onChange func(Change)

	externalID string
	module     string
	typ        Type
	text       string
	comment    string
	uri        *url.URL
	status     Status
	modified   bool
	reviewed   bool

	attrs map[string]string
	// attrFiles holds the attachment list of every non-reserved attribute.
	// Every key of attrs has an entry, possibly empty.
	attrFiles map[string][]attachment.Attachment
	// files is the requirement-level list, also reachable as "Text".
	files []attachment.Attachment

	releasedMu sync.Mutex
	released   []string
}

// New creates an unregistered requirement.
func New(spec Spec, opts Options) (*Requirement, error) {
	if spec.ExternalID == "" {
		return nil, apierr.Constraint("requirement: empty external id")
	}
	if opts.Blobs == nil {
		return nil, fmt.Errorf("requirement: nil attachment store")
	}
	if spec.Type == 0 {
		spec.Type = TypeRequirement
	}
	if !spec.Type.valid() {
		return nil, apierr.Constraint("requirement: invalid type %d", int(spec.Type))
	}
	if spec.Status == 0 {
		spec.Status = StatusNew
	}
	if _, ok := statusNames[spec.Status]; !ok {
		return nil, apierr.Constraint("requirement: invalid status %d", int(spec.Status))
	}
	return &Requirement{
		blobs:      opts.Blobs,
		onChange:   opts.OnChange,
		externalID: spec.ExternalID,
		module:     spec.Module,
		typ:        spec.Type,
		text:       spec.Text,
		comment:    spec.Comment,
		uri:        cloneURL(spec.URI),
		status:     spec.Status,
		attrs:      make(map[string]string),
		attrFiles:  make(map[string][]attachment.Attachment),
	}, nil
}

// Kind implements registry.Entity.
func (r *Requirement) Kind() registry.Kind { return registry.KindRequirement }

// read runs fn under the shared lock.
func (r *Requirement) read(op string, fn func()) error {
	release, err := r.AcquireRead("requirement: " + op)
	if err != nil {
		return err
	}
	defer release()
	fn()
	return nil
}

// mutate runs fn under the exclusive lock and reports the change once the
// lock is released.
func (r *Requirement) mutate(op, name string, fn func() error) error {
	release, err := r.Acquire("requirement: " + op)
	if err != nil {
		return err
	}
	err = fn()
	release()
	if err == nil && r.onChange != nil {
		r.onChange(Change{ID: r.ID(), Op: op, Name: name})
	}
	return err
}

// ExternalID returns the project-unique requirement id, e.g. "REQ-12".
func (r *Requirement) ExternalID() (string, error) {
	var v string
	err := r.read("external id", func() { v = r.externalID })
	return v, err
}

// Module returns the module path the requirement was imported from.
func (r *Requirement) Module() (string, error) {
	var v string
	err := r.read("module", func() { v = r.module })
	return v, err
}

// Type returns the requirement type.
func (r *Requirement) Type() (Type, error) {
	var v Type
	err := r.read("type", func() { v = r.typ })
	return v, err
}

// SetType changes the requirement type. Existing links are kept.
func (r *Requirement) SetType(t Type) error {
	if !t.valid() {
		return apierr.Constraint("requirement: invalid type %d", int(t))
	}
	return r.mutate("set_type", "", func() error {
		r.typ = t
		return nil
	})
}

// Linkable reports whether the requirement currently accepts links.
func (r *Requirement) Linkable() (bool, error) {
	var v bool
	err := r.read("linkable", func() { v = r.typ.Linkable() })
	return v, err
}

// WhileLinkable runs fn under the shared lock if the requirement's type
// accepts links and fails with apierr.ErrInvalidLinkTarget otherwise. The
// type cannot change while fn runs. fn must not call the requirement.
func (r *Requirement) WhileLinkable(fn func() error) error {
	release, err := r.AcquireRead("requirement: link")
	if err != nil {
		return err
	}
	defer release()
	if !r.typ.Linkable() {
		return apierr.InvalidLinkTarget("requirement %s of type %s cannot be linked", r.externalID, r.typ)
	}
	return fn()
}

// Finalize implements registry.Finalizer. It detaches every attachment so
// the owner can delete the content through ReleasedAttachments.
func (r *Requirement) Finalize() {
	var ids []string
	for _, a := range r.files {
		ids = append(ids, a.ID)
	}
	for _, list := range r.attrFiles {
		for _, a := range list {
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	r.files = nil
	r.attrFiles = make(map[string][]attachment.Attachment)

	r.releasedMu.Lock()
	r.released = append(r.released, ids...)
	r.releasedMu.Unlock()
}

// ReleasedAttachments returns and forgets the attachment ids detached by
// Finalize. It works on disposed requirements.
func (r *Requirement) ReleasedAttachments() []string {
	r.releasedMu.Lock()
	defer r.releasedMu.Unlock()
	ids := r.released
	r.released = nil
	return ids
}

// Text returns the requirement text.
func (r *Requirement) Text() (string, error) {
	var v string
	err := r.read("text", func() { v = r.text })
	return v, err
}

// SetText replaces the requirement text.
func (r *Requirement) SetText(text string) error {
	return r.mutate("set_text", "", func() error {
		r.text = text
		return nil
	})
}

// Comment returns the requirement comment.
func (r *Requirement) Comment() (string, error) {
	var v string
	err := r.read("comment", func() { v = r.comment })
	return v, err
}

// SetComment replaces the requirement comment.
func (r *Requirement) SetComment(comment string) error {
	return r.mutate("set_comment", "", func() error {
		r.comment = comment
		return nil
	})
}

// URI returns a copy of the external link, or nil.
func (r *Requirement) URI() (*url.URL, error) {
	var v *url.URL
	err := r.read("uri", func() { v = cloneURL(r.uri) })
	return v, err
}

// SetURI replaces the external link. nil clears it.
func (r *Requirement) SetURI(u *url.URL) error {
	return r.mutate("set_uri", "", func() error {
		r.uri = cloneURL(u)
		return nil
	})
}

// Status returns the lifecycle status.
func (r *Requirement) Status() (Status, error) {
	var v Status
	err := r.read("status", func() { v = r.status })
	return v, err
}

// SetStatus changes the lifecycle status. Moving to StatusDeleted also
// marks the requirement as modified.
func (r *Requirement) SetStatus(s Status) error {
	if _, ok := statusNames[s]; !ok {
		return apierr.Constraint("requirement: invalid status %d", int(s))
	}
	return r.mutate("set_status", s.String(), func() error {
		r.status = s
		if s == StatusDeleted {
			r.modified = true
		}
		return nil
	})
}

// MarkAsModified sets the modified flag. The reviewed flag is untouched.
func (r *Requirement) MarkAsModified() error {
	return r.mutate("mark_modified", "", func() error {
		r.modified = true
		return nil
	})
}

// MarkAsReviewed sets the reviewed flag. The modified flag is untouched.
func (r *Requirement) MarkAsReviewed() error {
	return r.mutate("mark_reviewed", "", func() error {
		r.reviewed = true
		return nil
	})
}

// IsModified reports the modified flag.
func (r *Requirement) IsModified() (bool, error) {
	var v bool
	err := r.read("is modified", func() { v = r.modified })
	return v, err
}

// IsReviewed reports the reviewed flag.
func (r *Requirement) IsReviewed() (bool, error) {
	var v bool
	err := r.read("is reviewed", func() { v = r.reviewed })
	return v, err
}
