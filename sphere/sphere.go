package sphere

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bitfsorg/libnoosphere-go/storage"
	"github.com/ipfs/go-cid"
)

// Sphere is a handle on one sphere. Writes are staged on the handle and
// become a new version on Save. Handles are safe for concurrent use:
// readers share a read lock and writers serialize.
type Sphere struct {
	identity string
	store    *Store
	readOnly bool
	logger   *slog.Logger

	mu      sync.RWMutex
	state   *revision
	pending map[string]cid.Cid // cid.Undef marks a staged removal
}

// Identity returns the sphere's did:key.
func (h *Sphere) Identity() string {
	return h.identity
}

// Version returns the version this handle is based on. Staged changes are
// not reflected until Save.
func (h *Sphere) Version() cid.Cid {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.version
}

// ReadOnly reports whether the handle is a historical view.
func (h *Sphere) ReadOnly() bool {
	return h.readOnly
}

// normalizeSlug strips one leading "/" and rejects empty slugs.
func normalizeSlug(path string) (string, error) {
	slug := strings.TrimPrefix(path, "/")
	if slug == "" {
		return "", fmt.Errorf("%w: slug must not be empty", ErrInvalidSlug)
	}
	return slug, nil
}

// lookup resolves slug against staged changes first, then the base version.
// Callers hold h.mu.
func (h *Sphere) lookup(slug string) (cid.Cid, bool) {
	if id, ok := h.pending[slug]; ok {
		return id, id.Defined()
	}
	id, ok := h.state.content[slug]
	return id, ok
}

// Write stages content under slug with the given content type and any
// extra headers. A staged entry for the same slug is replaced.
func (h *Sphere) Write(ctx context.Context, slug, contentType string, data []byte, extra ...Header) error {
	if h.readOnly {
		return ErrReadOnly
	}
	slug, err := normalizeSlug(slug)
	if err != nil {
		return err
	}

	headers := Headers{{Name: HeaderContentType, Value: contentType}}
	for _, hdr := range extra {
		if strings.EqualFold(hdr.Name, HeaderContentType) {
			continue
		}
		headers.Add(hdr.Name, hdr.Value)
	}

	bodyID, err := writeBody(ctx, h.store.blocks, data, h.store.cfg.ChunkSize)
	if err != nil {
		return err
	}
	memo := &Memo{Body: bodyID, Headers: headers}

	// The parent link and the staged entry change together so concurrent
	// writers of one slug form a single chain.
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.lookup(slug); ok {
		memo.Parent = &prev
	}
	memoID, err := putMemo(ctx, h.store.blocks, memo)
	if err != nil {
		return err
	}
	h.pending[slug] = memoID

	h.logger.Debug("content staged", "slug", slug, "content_type", contentType, "size", len(data))
	return nil
}

// Remove stages the removal of slug. Returns ErrContentNotFound if the slug
// has no content on this handle.
func (h *Sphere) Remove(ctx context.Context, slug string) error {
	if h.readOnly {
		return ErrReadOnly
	}
	slug, err := normalizeSlug(slug)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.lookup(slug); !ok {
		return fmt.Errorf("%w: %s", ErrContentNotFound, slug)
	}
	h.pending[slug] = cid.Undef
	h.logger.Debug("content removal staged", "slug", slug)
	return nil
}

// ReadAsync starts a read of the content at path. A leading "/" is ignored.
// Staged writes on this handle take precedence over committed content.
func (h *Sphere) ReadAsync(ctx context.Context, path string) *Future[*File] {
	return Async(ctx, func(ctx context.Context) (*File, error) {
		return h.read(ctx, path)
	})
}

// Read is the blocking form of ReadAsync.
func (h *Sphere) Read(ctx context.Context, path string) (*File, error) {
	return h.ReadAsync(ctx, path).Await(ctx)
}

func (h *Sphere) read(ctx context.Context, path string) (*File, error) {
	slug, err := normalizeSlug(path)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	id, ok := h.lookup(slug)
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, slug)
	}

	memo, err := loadMemo(ctx, h.store.blocks, id)
	if err != nil {
		return nil, err
	}
	return &File{slug: slug, version: id, memo: memo, blocks: h.store.blocks}, nil
}

// List returns every slug visible on this handle, sorted.
func (h *Sphere) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.state.content)+len(h.pending))
	for slug := range h.state.content {
		if id, ok := h.pending[slug]; ok && !id.Defined() {
			continue
		}
		out = append(out, slug)
	}
	for slug, id := range h.pending {
		if _, committed := h.state.content[slug]; !committed && id.Defined() {
			out = append(out, slug)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Changes returns the slugs added, modified or removed between since and
// this handle's version, sorted. An undefined since lists every slug.
func (h *Sphere) Changes(ctx context.Context, since cid.Cid) ([]string, error) {
	h.mu.RLock()
	cur := h.state
	h.mu.RUnlock()

	prev := map[string]cid.Cid{}
	if since.Defined() && !since.Equals(cur.version) {
		rev, err := h.store.loadRevision(ctx, h.identity, since)
		if err != nil {
			return nil, err
		}
		prev = rev.content
	} else if since.Defined() {
		prev = cur.content
	}

	out := []string{}
	for slug, id := range cur.content {
		if old, ok := prev[slug]; !ok || !old.Equals(id) {
			out = append(out, slug)
		}
	}
	for slug := range prev {
		if _, ok := cur.content[slug]; !ok {
			out = append(out, slug)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Save commits staged changes as a new signed version and returns it.
// With nothing staged it returns the current version unchanged. If another
// handle saved first, staged slugs are applied on top of the newer version.
// On error nothing is committed and staged changes are kept.
func (h *Sphere) Save(ctx context.Context) (cid.Cid, error) {
	if h.readOnly {
		return cid.Undef, ErrReadOnly
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.pending) == 0 {
		return h.state.version, nil
	}

	unlock, err := h.store.lockSphere(ctx, h.identity)
	if err != nil {
		return cid.Undef, err
	}
	defer unlock()

	rec, err := h.store.index.Get(h.identity)
	if err != nil {
		return cid.Undef, err
	}
	tip, err := rec.Tip()
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %w", ErrInvalidMemo, err)
	}

	base := h.state
	if !tip.Equals(base.version) {
		h.logger.Debug("rebasing staged changes", "from", base.version.String(), "onto", tip.String())
		if base, err = h.store.loadRevision(ctx, h.identity, tip); err != nil {
			return cid.Undef, err
		}
	}

	if rec.OwnerKey == "" {
		return cid.Undef, fmt.Errorf("%w: no local key for owner %s", ErrUnauthorized, rec.Owner)
	}
	owner, err := h.store.keys.RequireKey(rec.OwnerKey)
	if err != nil {
		return cid.Undef, err
	}
	if owner.Identity != rec.Owner {
		return cid.Undef, fmt.Errorf("%w: key %q is not owner %s", ErrUnauthorized, rec.OwnerKey, rec.Owner)
	}

	content := maps.Clone(base.content)
	for slug, id := range h.pending {
		if id.Defined() {
			content[slug] = id
		} else {
			delete(content, slug)
		}
	}

	bodyID, err := putSphereBody(ctx, h.store.blocks, &sphereBody{Content: content, Identity: h.identity})
	if err != nil {
		return cid.Undef, err
	}
	memo := BranchFrom(base.version, base.memo)
	memo.Body = bodyID
	if err := memo.Sign(owner); err != nil {
		return cid.Undef, err
	}
	version, err := putMemo(ctx, h.store.blocks, memo)
	if err != nil {
		return cid.Undef, err
	}

	err = h.store.index.Advance(base.version, &storage.SphereRecord{
		Identity:  h.identity,
		Owner:     rec.Owner,
		OwnerKey:  rec.OwnerKey,
		Version:   version.String(),
		Lamport:   memo.LamportOrder(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return cid.Undef, err
	}

	h.logger.Info("sphere saved", "version", version.String(), "lamport", memo.LamportOrder(), "changes", len(h.pending))
	h.state = &revision{version: version, memo: memo, content: content}
	h.pending = make(map[string]cid.Cid)
	return version, nil
}

// History returns every committed version of the sphere, newest first.
func (h *Sphere) History(ctx context.Context) ([]storage.VersionEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.store.index.History(h.identity)
}

// At returns a read-only view of the sphere at a prior version.
func (h *Sphere) At(ctx context.Context, version cid.Cid) (*Sphere, error) {
	rev, err := h.store.loadRevision(ctx, h.identity, version)
	if err != nil {
		return nil, err
	}
	return h.store.newHandle(h.identity, rev, true), nil
}
