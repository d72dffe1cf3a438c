package noosphere

import (
	"context"
	"fmt"

	"github.com/bitfsorg/libnoosphere-go/sphere"
	"github.com/bitfsorg/libnoosphere-go/storage"
	"github.com/ipfs/go-cid"
	"go.opentelemetry.io/otel/attribute"
)

// Sphere is a sphere handle whose operations report *Error and fail with
// ErrClosed once the owning Noosphere is closed.
type Sphere struct {
	ns    *Noosphere
	inner *sphere.Sphere
}

// File is a content entry read through a Sphere.
type File struct {
	ns    *Noosphere
	inner *sphere.File
}

// Revision is one committed sphere version.
type Revision struct {
	Version string
	Lamport uint32
}

func (n *Noosphere) wrap(h *sphere.Sphere) *Sphere {
	return &Sphere{ns: n, inner: h}
}

// Identity returns the sphere's did:key.
func (s *Sphere) Identity() string { return s.inner.Identity() }

// Version returns the CID of the version the handle is based on.
func (s *Sphere) Version() string { return s.inner.Version().String() }

// ReadOnly reports whether the handle views a prior version.
func (s *Sphere) ReadOnly() bool { return s.inner.ReadOnly() }

func (s *Sphere) attrs(extra ...attribute.KeyValue) []attribute.KeyValue {
	return append([]attribute.KeyValue{attribute.String("sphere.identity", s.inner.Identity())}, extra...)
}

// Write stages content under slug. It becomes visible to other handles
// after Save.
func (s *Sphere) Write(ctx context.Context, slug, contentType string, data []byte, headers ...sphere.Header) error {
	ctx, span := startSpan(ctx, "Write", s.attrs(
		attribute.String("content.slug", slug),
		attribute.String("content.type", contentType),
		attribute.Int("content.size", len(data)))...)
	leave, err := s.ns.enter()
	if err != nil {
		return finish(span, err)
	}
	defer leave()

	return finish(span, s.inner.Write(ctx, slug, contentType, data, headers...))
}

// Remove stages the removal of slug.
func (s *Sphere) Remove(ctx context.Context, slug string) error {
	ctx, span := startSpan(ctx, "Remove", s.attrs(attribute.String("content.slug", slug))...)
	leave, err := s.ns.enter()
	if err != nil {
		return finish(span, err)
	}
	defer leave()

	return finish(span, s.inner.Remove(ctx, slug))
}

// ReadAsync starts reading the content at path.
func (s *Sphere) ReadAsync(ctx context.Context, path string) *sphere.Future[*File] {
	return sphere.Async(ctx, func(ctx context.Context) (*File, error) {
		return s.Read(ctx, path)
	})
}

// Read returns the content at path; missing content fails with CodeNotFound.
func (s *Sphere) Read(ctx context.Context, path string) (*File, error) {
	ctx, span := startSpan(ctx, "Read", s.attrs(attribute.String("content.slug", path))...)
	leave, err := s.ns.enter()
	if err != nil {
		return nil, finish(span, err)
	}
	defer leave()

	f, err := s.inner.Read(ctx, path)
	if err != nil {
		return nil, finish(span, err)
	}
	return &File{ns: s.ns, inner: f}, finish(span, nil)
}

// List returns the visible slugs, sorted.
func (s *Sphere) List(ctx context.Context) ([]string, error) {
	ctx, span := startSpan(ctx, "List", s.attrs()...)
	leave, err := s.ns.enter()
	if err != nil {
		return nil, finish(span, err)
	}
	defer leave()

	slugs, err := s.inner.List(ctx)
	if err != nil {
		return nil, finish(span, err)
	}
	return slugs, finish(span, nil)
}

// Changes lists slugs changed since the given version; "" lists all.
func (s *Sphere) Changes(ctx context.Context, since string) ([]string, error) {
	ctx, span := startSpan(ctx, "Changes", s.attrs(attribute.String("sphere.since", since))...)
	leave, err := s.ns.enter()
	if err != nil {
		return nil, finish(span, err)
	}
	defer leave()

	v, err := parseVersion(since)
	if err != nil {
		return nil, finish(span, err)
	}
	slugs, err := s.inner.Changes(ctx, v)
	if err != nil {
		return nil, finish(span, err)
	}
	return slugs, finish(span, nil)
}

// Save commits staged changes and returns the new version. Saving with
// nothing staged returns the current version.
func (s *Sphere) Save(ctx context.Context) (string, error) {
	ctx, span := startSpan(ctx, "Save", s.attrs()...)
	leave, err := s.ns.enter()
	if err != nil {
		return "", finish(span, err)
	}
	defer leave()

	v, err := s.inner.Save(ctx)
	if err != nil {
		return "", finish(span, err)
	}
	span.SetAttributes(attribute.String("sphere.version", v.String()))
	return v.String(), finish(span, nil)
}

// History returns the sphere's versions, newest first.
func (s *Sphere) History(ctx context.Context) ([]Revision, error) {
	ctx, span := startSpan(ctx, "History", s.attrs()...)
	leave, err := s.ns.enter()
	if err != nil {
		return nil, finish(span, err)
	}
	defer leave()

	entries, err := s.inner.History(ctx)
	if err != nil {
		return nil, finish(span, err)
	}
	out := make([]Revision, len(entries))
	for i, e := range entries {
		out[i] = Revision{Version: e.Version.String(), Lamport: e.Lamport}
	}
	return out, finish(span, nil)
}

// At opens a read-only view of a prior version.
func (s *Sphere) At(ctx context.Context, version string) (*Sphere, error) {
	ctx, span := startSpan(ctx, "At", s.attrs(attribute.String("sphere.version", version))...)
	leave, err := s.ns.enter()
	if err != nil {
		return nil, finish(span, err)
	}
	defer leave()

	v, err := parseVersion(version)
	if err == nil && !v.Defined() {
		err = fmt.Errorf("%w: empty version", storage.ErrInvalidCID)
	}
	if err != nil {
		return nil, finish(span, err)
	}
	h, err := s.inner.At(ctx, v)
	if err != nil {
		return nil, finish(span, err)
	}
	return s.ns.wrap(h), finish(span, nil)
}

// parseVersion decodes a version CID; "" is cid.Undef.
func parseVersion(s string) (cid.Cid, error) {
	if s == "" {
		return cid.Undef, nil
	}
	v, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %q: %w", storage.ErrInvalidCID, s, err)
	}
	return v, nil
}

// Slug returns the slug the file was read from.
func (f *File) Slug() string { return f.inner.Slug() }

// Version returns the CID of the file's content memo.
func (f *File) Version() string { return f.inner.Version().String() }

// ContentType returns the file's Content-Type header.
func (f *File) ContentType() string { return f.inner.ContentType() }

// HeaderValues returns all values of a header; empty, never nil, if absent.
func (f *File) HeaderValues(name string) []string { return f.inner.HeaderValues(name) }

// FirstHeader returns the first value of a header.
func (f *File) FirstHeader(name string) (string, bool) { return f.inner.FirstHeader(name) }

// HeaderNames returns the distinct header names in order.
func (f *File) HeaderNames() []string { return f.inner.HeaderNames() }

// ContentsAsync starts loading the file's bytes.
func (f *File) ContentsAsync(ctx context.Context) *sphere.Future[[]byte] {
	return sphere.Async(ctx, f.Contents)
}

// Contents returns the file's bytes.
func (f *File) Contents(ctx context.Context) ([]byte, error) {
	ctx, span := startSpan(ctx, "Contents", attribute.String("content.slug", f.inner.Slug()))
	leave, err := f.ns.enter()
	if err != nil {
		return nil, finish(span, err)
	}
	defer leave()

	data, err := f.inner.Contents(ctx)
	if err != nil {
		return nil, finish(span, err)
	}
	return data, finish(span, nil)
}
