package requirement

import (
	"net/url"

	"github.com/papapumpkin/tptmodel/internal/attachment"
)

// View is a consistent snapshot of a requirement, shaped for output.
type View struct {
	ID          string                             `json:"id" yaml:"id" toml:"id"`
	ExternalID  string                             `json:"external_id" yaml:"external_id" toml:"external_id"`
	Module      string                             `json:"module,omitempty" yaml:"module,omitempty" toml:"module,omitempty"`
	Type        string                             `json:"type" yaml:"type" toml:"type"`
	Status      string                             `json:"status" yaml:"status" toml:"status"`
	Text        string                             `json:"text,omitempty" yaml:"text,omitempty" toml:"text,omitempty"`
	Comment     string                             `json:"comment,omitempty" yaml:"comment,omitempty" toml:"comment,omitempty"`
	URI         string                             `json:"uri,omitempty" yaml:"uri,omitempty" toml:"uri,omitempty"`
	Modified    bool                               `json:"modified" yaml:"modified" toml:"modified"`
	Reviewed    bool                               `json:"reviewed" yaml:"reviewed" toml:"reviewed"`
	Attributes  map[string]string                  `json:"attributes,omitempty" yaml:"attributes,omitempty" toml:"attributes,omitempty"`
	Attachments []attachment.Attachment            `json:"attachments,omitempty" yaml:"attachments,omitempty" toml:"attachments,omitempty"`
	Files       map[string][]attachment.Attachment `json:"attribute_attachments,omitempty" yaml:"attribute_attachments,omitempty" toml:"attribute_attachments,omitempty"`
}

// Snapshot returns every field under a single read lock.
func (r *Requirement) Snapshot() (View, error) {
	// The id is fixed at registration, so it is read before the lock.
	id := r.ID()
	var v View
	err := r.read("snapshot", func() {
		v = View{
			ID:          id.String(),
			ExternalID:  r.externalID,
			Module:      r.module,
			Type:        r.typ.String(),
			Status:      r.status.String(),
			Text:        r.text,
			Comment:     r.comment,
			Modified:    r.modified,
			Reviewed:    r.reviewed,
			Attributes:  r.attributesLocked(),
			Attachments: cloneList(r.files),
		}
		if r.uri != nil {
			v.URI = r.uri.String()
		}
		for name, list := range r.attrFiles {
			if len(list) == 0 {
				continue
			}
			if v.Files == nil {
				v.Files = make(map[string][]attachment.Attachment)
			}
			v.Files[name] = cloneList(list)
		}
	})
	return v, err
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}

func cloneList(in []attachment.Attachment) []attachment.Attachment {
	if len(in) == 0 {
		return []attachment.Attachment{}
	}
	out := make([]attachment.Attachment, len(in))
	copy(out, in)
	return out
}
