package requirement

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/attachment"
	"github.com/papapumpkin/tptmodel/internal/registry"
)

func strPtr(s string) *string { return &s }

// failingStore reports every call as a transport failure.
type failingStore struct{}

func (failingStore) Put(context.Context, attachment.Attachment, []byte) error {
	return apierr.NewTransportError("test: put", errors.New("connection reset"))
}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, apierr.NewTransportError("test: get", errors.New("connection reset"))
}

func (failingStore) Delete(context.Context, ...string) error {
	return apierr.NewTransportError("test: delete", errors.New("connection reset"))
}

func (failingStore) Close() error { return nil }

func TestOwnerAttachmentScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, store, _ := newRequirement(t, Spec{Type: TypeRequirement})

	require.NoError(t, r.SetAttribute(ctx, "Owner", strPtr("Alice")))
	pdf := []byte("%PDF-1.7 ...")
	a, err := r.CreateAttributeAttachment(ctx, "Owner", "spec.pdf", pdf)
	require.NoError(t, err)

	list, ok, err := r.AttributeAttachments("Owner")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, list, 1)
	require.Equal(t, "spec.pdf", list[0].FileName)
	require.Equal(t, len(pdf), list[0].Size)

	content, err := r.AttachmentContent(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, pdf, content)

	require.NoError(t, r.SetAttribute(ctx, "Owner", nil))

	attrs, err := r.Attributes()
	require.NoError(t, err)
	require.NotContains(t, attrs, "Owner")

	list, ok, err = r.AttributeAttachments("Owner")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, list)
	require.Zero(t, store.Len(), "attachment content must be deleted with the attribute")
}

func TestSetAttribute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("set then remove", func(t *testing.T) {
		t.Parallel()
		r, _, _ := newRequirement(t, Spec{})
		require.NoError(t, r.SetAttribute(ctx, "foo", strPtr("bar")))

		v, ok, err := r.Attribute("foo")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "bar", v)

		list, ok, err := r.AttributeAttachments("foo")
		require.NoError(t, err)
		require.True(t, ok, "new attribute starts with an empty attachment list")
		require.Empty(t, list)

		require.NoError(t, r.SetAttribute(ctx, "foo", nil))
		attrs, _ := r.Attributes()
		require.Empty(t, attrs)
	})

	t.Run("remove unknown is a no-op", func(t *testing.T) {
		t.Parallel()
		r, _, _ := newRequirement(t, Spec{})
		require.NoError(t, r.RemoveAttribute(ctx, "nope"))
	})

	t.Run("reserved and empty names rejected", func(t *testing.T) {
		t.Parallel()
		r, _, _ := newRequirement(t, Spec{})
		for _, name := range []string{"", AttrID, AttrText, AttrURI, AttrComment} {
			err := r.SetAttribute(ctx, name, strPtr("x"))
			require.ErrorIs(t, err, apierr.ErrConstraint, "name %q", name)
		}
		attrs, _ := r.Attributes()
		require.Empty(t, attrs)
	})

	t.Run("returned map is a copy", func(t *testing.T) {
		t.Parallel()
		r, _, _ := newRequirement(t, Spec{})
		require.NoError(t, r.SetAttribute(ctx, "a", strPtr("1")))
		attrs, _ := r.Attributes()
		attrs["a"] = "mutated"
		v, _, _ := r.Attribute("a")
		require.Equal(t, "1", v)
	})
}

func TestAttributeAttachments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("unknown attribute created on attach", func(t *testing.T) {
		t.Parallel()
		r, _, _ := newRequirement(t, Spec{})
		_, err := r.CreateAttributeAttachment(ctx, "Evidence", "log.txt", []byte("ok"))
		require.NoError(t, err)
		v, ok, _ := r.Attribute("Evidence")
		require.True(t, ok)
		require.Equal(t, "", v)
	})

	t.Run("text aliases requirement list", func(t *testing.T) {
		t.Parallel()
		r, _, _ := newRequirement(t, Spec{})
		a, err := r.CreateRequirementAttachment(ctx, "drawing.png", []byte{0x89, 'P'})
		require.NoError(t, err)

		viaText, ok, err := r.AttributeAttachments(AttrText)
		require.NoError(t, err)
		require.True(t, ok)
		direct, err := r.RequirementAttachments()
		require.NoError(t, err)
		require.Equal(t, direct, viaText)
		require.Equal(t, a.ID, viaText[0].ID)
	})

	t.Run("reserved names never accept attachments", func(t *testing.T) {
		t.Parallel()
		r, store, _ := newRequirement(t, Spec{})
		for _, name := range []string{AttrID, AttrText, AttrURI, AttrComment} {
			_, err := r.CreateAttributeAttachment(ctx, name, "x.bin", []byte("x"))
			require.ErrorIs(t, err, apierr.ErrConstraint, "name %q", name)
		}
		require.Zero(t, store.Len())

		for _, name := range []string{AttrID, AttrURI, AttrComment} {
			list, ok, err := r.AttributeAttachments(name)
			require.NoError(t, err)
			require.True(t, ok)
			require.Empty(t, list)
		}
	})

	t.Run("empty file name rejected", func(t *testing.T) {
		t.Parallel()
		r, _, _ := newRequirement(t, Spec{})
		_, err := r.CreateAttributeAttachment(ctx, "Owner", "", []byte("x"))
		require.ErrorIs(t, err, apierr.ErrConstraint)
		_, ok, _ := r.Attribute("Owner")
		require.False(t, ok, "failed attach must not create the attribute")
	})

	t.Run("foreign attachment id", func(t *testing.T) {
		t.Parallel()
		r, _, _ := newRequirement(t, Spec{})
		_, err := r.AttachmentContent(ctx, "not-mine")
		require.ErrorIs(t, err, apierr.ErrNotFound)
	})

	t.Run("attachment ids", func(t *testing.T) {
		t.Parallel()
		r, _, _ := newRequirement(t, Spec{})
		a, err := r.CreateRequirementAttachment(ctx, "a", nil)
		require.NoError(t, err)
		b, err := r.CreateAttributeAttachment(ctx, "Owner", "b", nil)
		require.NoError(t, err)
		ids, err := r.AttachmentIDs()
		require.NoError(t, err)
		require.ElementsMatch(t, []string{a.ID, b.ID}, ids)
	})
}

func TestTransportFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, err := New(Spec{ExternalID: "R"}, Options{Blobs: failingStore{}})
	require.NoError(t, err)
	_, err = registry.New().Register(r)
	require.NoError(t, err)

	_, err = r.CreateAttributeAttachment(ctx, "Owner", "x.bin", []byte("x"))
	require.True(t, apierr.IsTransport(err), "err = %v", err)
	require.Equal(t, apierr.KindTransport, apierr.KindOf(err))

	_, err = r.CreateRequirementAttachment(ctx, "x.bin", []byte("x"))
	require.True(t, apierr.IsTransport(err), "err = %v", err)
	list, _ := r.RequirementAttachments()
	require.Empty(t, list)
}

func TestConcurrentSetAttribute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, _, _ := newRequirement(t, Spec{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("attr%d", i%5)
			if err := r.SetAttribute(ctx, name, strPtr(fmt.Sprint(i))); err != nil {
				t.Errorf("SetAttribute: %v", err)
			}
			if _, err := r.CreateAttributeAttachment(ctx, name, "f", []byte{byte(i)}); err != nil {
				t.Errorf("CreateAttributeAttachment: %v", err)
			}
		}(i)
	}
	wg.Wait()

	attrs, err := r.Attributes()
	require.NoError(t, err)
	require.Len(t, attrs, 5)
	total := 0
	for name := range attrs {
		list, ok, err := r.AttributeAttachments(name)
		require.NoError(t, err)
		require.True(t, ok)
		total += len(list)
	}
	require.Equal(t, 20, total)
}

func TestImport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("unchanged record", func(t *testing.T) {
		t.Parallel()
		r, _, _ := newRequirement(t, Spec{Text: "t"})
		changed, err := r.Import(ctx, Record{Text: "t"})
		require.NoError(t, err)
		require.False(t, changed)
		mod, _ := r.IsModified()
		require.False(t, mod)
	})

	t.Run("changes set modified", func(t *testing.T) {
		t.Parallel()
		r, store, _ := newRequirement(t, Spec{Text: "old"})
		require.NoError(t, r.SetAttribute(ctx, "Stale", strPtr("x")))
		_, err := r.CreateAttributeAttachment(ctx, "Stale", "s.txt", []byte("s"))
		require.NoError(t, err)

		u, _ := url.Parse("https://example.com/1")
		changed, err := r.Import(ctx, Record{
			Type:       TypeHeading,
			Text:       "new",
			URI:        u,
			Attributes: map[string]string{"Owner": "Bob"},
		})
		require.NoError(t, err)
		require.True(t, changed)

		mod, _ := r.IsModified()
		require.True(t, mod)
		attrs, _ := r.Attributes()
		require.Equal(t, map[string]string{"Owner": "Bob"}, attrs)
		require.Zero(t, store.Len())
		typ, _ := r.Type()
		require.Equal(t, TypeHeading, typ)
	})

	t.Run("revives deleted", func(t *testing.T) {
		t.Parallel()
		r, _, _ := newRequirement(t, Spec{Status: StatusDeleted})
		changed, err := r.Import(ctx, Record{})
		require.NoError(t, err)
		require.True(t, changed)
		st, _ := r.Status()
		require.Equal(t, StatusNormal, st)
	})

	t.Run("reserved attribute rejected without effect", func(t *testing.T) {
		t.Parallel()
		r, _, _ := newRequirement(t, Spec{Text: "keep"})
		_, err := r.Import(ctx, Record{Text: "other", Attributes: map[string]string{"URI": "x"}})
		require.ErrorIs(t, err, apierr.ErrConstraint)
		text, _ := r.Text()
		require.Equal(t, "keep", text)
	})
}
