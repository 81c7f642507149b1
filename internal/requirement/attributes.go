package requirement

import (
	"context"
	"sort"

	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/attachment"
)

// Reserved attribute names. They address the requirement's own fields and
// never hold attachments of their own; "Text" aliases the requirement-level
// attachment list.
const (
	AttrID      = "ID"
	AttrText    = "Text"
	AttrURI     = "URI"
	AttrComment = "Comment"
)

// IsReserved reports whether name is one of the reserved attribute names.
func IsReserved(name string) bool {
	switch name {
	case AttrID, AttrText, AttrURI, AttrComment:
		return true
	}
	return false
}

func checkAttributeName(name string) error {
	if name == "" {
		return apierr.Constraint("requirement: empty attribute name")
	}
	if IsReserved(name) {
		return apierr.Constraint("requirement: attribute %q is reserved", name)
	}
	return nil
}

// Attributes returns a copy of the attribute map.
func (r *Requirement) Attributes() (map[string]string, error) {
	var v map[string]string
	err := r.read("attributes", func() { v = r.attributesLocked() })
	return v, err
}

func (r *Requirement) attributesLocked() map[string]string {
	out := make(map[string]string, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}

// Attribute returns the value of one attribute and whether it exists.
func (r *Requirement) Attribute(name string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := r.read("attribute", func() { v, ok = r.attrs[name] })
	return v, ok, err
}

// SetAttribute sets an attribute value. A nil value removes the attribute
// together with its attachments; a new name starts with no attachments.
// Reserved names are set through their dedicated setters.
func (r *Requirement) SetAttribute(ctx context.Context, name string, value *string) error {
	if err := checkAttributeName(name); err != nil {
		return err
	}
	if value == nil {
		return r.RemoveAttribute(ctx, name)
	}
	return r.mutate("set_attribute", name, func() error {
		r.attrs[name] = *value
		if _, ok := r.attrFiles[name]; !ok {
			r.attrFiles[name] = nil
		}
		return nil
	})
}

// RemoveAttribute removes an attribute and deletes its attachment content.
// Removing an unknown attribute is a no-op.
func (r *Requirement) RemoveAttribute(ctx context.Context, name string) error {
	if err := checkAttributeName(name); err != nil {
		return err
	}
	return r.mutate("remove_attribute", name, func() error {
		return r.removeAttributeLocked(ctx, name)
	})
}

// removeAttributeLocked drops the attribute from memory first, so a failing
// blob backend leaves orphaned content rather than dangling metadata.
func (r *Requirement) removeAttributeLocked(ctx context.Context, name string) error {
	if _, ok := r.attrs[name]; !ok {
		return nil
	}
	files := r.attrFiles[name]
	delete(r.attrs, name)
	delete(r.attrFiles, name)
	if len(files) == 0 {
		return nil
	}
	ids := make([]string, len(files))
	for i, a := range files {
		ids[i] = a.ID
	}
	return r.blobs.Delete(ctx, ids...)
}

// AttributeAttachments returns the attachment list of an attribute. ok is
// false when the attribute does not exist. "Text" returns the
// requirement-level list; the other reserved names return an empty list.
func (r *Requirement) AttributeAttachments(name string) (list []attachment.Attachment, ok bool, err error) {
	err = r.read("attribute attachments", func() {
		switch {
		case name == AttrText:
			list, ok = cloneList(r.files), true
		case IsReserved(name):
			list, ok = []attachment.Attachment{}, true
		default:
			var files []attachment.Attachment
			files, ok = r.attrFiles[name]
			if ok {
				list = cloneList(files)
			}
		}
	})
	return list, ok, err
}

// CreateAttributeAttachment stores content and appends it to the
// attribute's attachment list. An unknown attribute is created with an
// empty value first. Reserved names are rejected; attach to "Text" through
// CreateRequirementAttachment.
func (r *Requirement) CreateAttributeAttachment(ctx context.Context, name, fileName string, content []byte) (attachment.Attachment, error) {
	if err := checkAttributeName(name); err != nil {
		return attachment.Attachment{}, err
	}
	a, err := attachment.New(fileName, content)
	if err != nil {
		return attachment.Attachment{}, err
	}
	err = r.mutate("create_attribute_attachment", name, func() error {
		if err := r.blobs.Put(ctx, a, content); err != nil {
			return err
		}
		if _, ok := r.attrs[name]; !ok {
			r.attrs[name] = ""
		}
		r.attrFiles[name] = append(r.attrFiles[name], a)
		return nil
	})
	if err != nil {
		return attachment.Attachment{}, err
	}
	return a, nil
}

// RequirementAttachments returns the requirement-level attachment list.
func (r *Requirement) RequirementAttachments() ([]attachment.Attachment, error) {
	var v []attachment.Attachment
	err := r.read("requirement attachments", func() { v = cloneList(r.files) })
	return v, err
}

// CreateRequirementAttachment stores content and appends it to the
// requirement-level list, which is also the "Text" attribute's list.
func (r *Requirement) CreateRequirementAttachment(ctx context.Context, fileName string, content []byte) (attachment.Attachment, error) {
	a, err := attachment.New(fileName, content)
	if err != nil {
		return attachment.Attachment{}, err
	}
	err = r.mutate("create_requirement_attachment", fileName, func() error {
		if err := r.blobs.Put(ctx, a, content); err != nil {
			return err
		}
		r.files = append(r.files, a)
		return nil
	})
	if err != nil {
		return attachment.Attachment{}, err
	}
	return a, nil
}

// AttachmentContent reads the content of one of this requirement's
// attachments.
func (r *Requirement) AttachmentContent(ctx context.Context, attachmentID string) ([]byte, error) {
	release, err := r.AcquireRead("requirement: attachment content")
	if err != nil {
		return nil, err
	}
	defer release()
	if !r.ownsLocked(attachmentID) {
		return nil, apierr.NotFound("requirement: attachment %s", attachmentID)
	}
	return r.blobs.Get(ctx, attachmentID)
}

// AttachmentIDs returns the ids of every attachment the requirement owns,
// sorted.
func (r *Requirement) AttachmentIDs() ([]string, error) {
	var ids []string
	err := r.read("attachment ids", func() {
		for _, a := range r.files {
			ids = append(ids, a.ID)
		}
		for _, list := range r.attrFiles {
			for _, a := range list {
				ids = append(ids, a.ID)
			}
		}
	})
	sort.Strings(ids)
	return ids, err
}

func (r *Requirement) ownsLocked(id string) bool {
	for _, a := range r.files {
		if a.ID == id {
			return true
		}
	}
	for _, list := range r.attrFiles {
		for _, a := range list {
			if a.ID == id {
				return true
			}
		}
	}
	return false
}
