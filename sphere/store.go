// Package sphere implements identity-scoped, versioned content containers.
//
// A sphere is a chain of signed memos. Each revision's body maps content
// slugs to content memos, and each content memo links to a chunked body.
// The latest revision of every local sphere is tracked in a
// storage.SphereIndex; blocks live in any storage.BlockStore.
package sphere

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bitfsorg/libnoosphere-go/keys"
	"github.com/bitfsorg/libnoosphere-go/storage"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	retry "github.com/sethvargo/go-retry"
)

// lockPoll is how often a save lock held by another process is retried.
const lockPoll = 10 * time.Millisecond

// Config tunes a Store.
type Config struct {
	LockDir   string       // directory for cross-process save locks; empty disables them
	ChunkSize int          // body chunk size in bytes; 0 uses storage.DefaultChunkSize
	Logger    *slog.Logger // nil uses slog.Default()
}

// Store creates, opens and saves spheres.
type Store struct {
	blocks storage.BlockStore
	index  *storage.SphereIndex
	keys   *keys.Store
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewStore creates a Store over a block store, a sphere index and a key store.
func NewStore(blocks storage.BlockStore, index *storage.SphereIndex, keyStore *keys.Store, cfg Config) (*Store, error) {
	if blocks == nil || index == nil || keyStore == nil {
		return nil, fmt.Errorf("sphere: store requires blocks, index and keys")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = storage.DefaultChunkSize
	}
	if cfg.ChunkSize < 0 || cfg.ChunkSize > storage.MaxChunkSize {
		return nil, fmt.Errorf("%w: %d", storage.ErrInvalidChunkSize, cfg.ChunkSize)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		blocks: blocks,
		index:  index,
		keys:   keyStore,
		cfg:    cfg,
		logger: logger,
		locks:  make(map[string]chan struct{}),
	}, nil
}

// revision is a decoded, verified sphere version.
type revision struct {
	version cid.Cid
	memo    *Memo
	content map[string]cid.Cid
}

func (r *revision) lamport() uint32 {
	return r.memo.LamportOrder()
}

// loadRevision fetches the sphere memo at version, verifies its lineage and
// loads its body.
func (s *Store) loadRevision(ctx context.Context, identity string, version cid.Cid) (*revision, error) {
	memo, err := loadMemo(ctx, s.blocks, version)
	if err != nil {
		return nil, err
	}
	if _, err := s.verifyLineage(ctx, identity, version, memo); err != nil {
		return nil, err
	}
	return s.readRevision(ctx, identity, version, memo)
}

func (s *Store) readRevision(ctx context.Context, identity string, version cid.Cid, memo *Memo) (*revision, error) {
	body, err := loadSphereBody(ctx, s.blocks, memo.Body)
	if err != nil {
		return nil, err
	}
	if body.Identity != identity {
		return nil, fmt.Errorf("%w: body belongs to %s", ErrInvalidMemo, body.Identity)
	}
	return &revision{version: version, memo: memo, content: body.Content}, nil
}

// trustedVersions returns the versions of identity recorded in the local
// index. Each was verified when it was committed or imported.
func (s *Store) trustedVersions(identity string) (map[cid.Cid]bool, error) {
	entries, err := s.index.History(identity)
	if errors.Is(err, storage.ErrSphereNotFound) {
		return map[cid.Cid]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	trusted := make(map[cid.Cid]bool, len(entries))
	for _, e := range entries {
		trusted[e.Version] = true
	}
	return trusted, nil
}

// verifyLineage walks from version back to a locally trusted revision or
// to genesis, then verifies every revision on the way oldest first. It
// returns the newly verified revisions, newest first; none when version is
// already trusted.
func (s *Store) verifyLineage(ctx context.Context, identity string, version cid.Cid, memo *Memo) ([]chainLink, error) {
	trusted, err := s.trustedVersions(identity)
	if err != nil {
		return nil, err
	}

	var chain []chainLink
	var anchor *Memo
	for id, m := version, memo; ; {
		if trusted[id] {
			anchor = m
			break
		}
		chain = append(chain, chainLink{version: id, memo: m})
		if m.Parent == nil {
			break
		}
		parentID := *m.Parent
		parent, err := loadMemo(ctx, s.blocks, parentID)
		if err != nil {
			return nil, fmt.Errorf("sphere: ancestor %s: %w", parentID, err)
		}
		id, m = parentID, parent
	}

	parent := anchor
	for i := len(chain) - 1; i >= 0; i-- {
		if err := verifySphereMemo(chain[i].memo, parent, identity); err != nil {
			return nil, fmt.Errorf("sphere: revision %s: %w", chain[i].version, err)
		}
		parent = chain[i].memo
	}
	return chain, nil
}

// lockSphere serializes commits to one sphere: in-process via a
// per-identity semaphore and across processes via a lock file under
// LockDir. It gives up with ctx's error when ctx ends first.
func (s *Store) lockSphere(ctx context.Context, identity string) (func(), error) {
	s.mu.Lock()
	sem, ok := s.locks[identity]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[identity] = sem
	}
	s.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-sem }
	if s.cfg.LockDir == "" {
		return release, nil
	}

	path := filepath.Join(s.cfg.LockDir, strings.TrimPrefix(identity, keys.DIDKeyPrefix)+".lock")
	var fl *storage.FileLock
	err := retry.Do(ctx, retry.NewConstant(lockPoll), func(context.Context) error {
		var err error
		fl, err = storage.TryLock(path)
		if errors.Is(err, storage.ErrLocked) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		release()
		return nil, err
	}
	return func() {
		fl.Release()
		release()
	}, nil
}

// Create makes a new sphere owned by the named key. It returns the sphere
// identity and the mnemonic of the sphere key, which is not stored anywhere.
func (s *Store) Create(ctx context.Context, ownerKeyName string) (string, string, error) {
	owner, err := s.keys.RequireKey(ownerKeyName)
	if err != nil {
		return "", "", err
	}

	sphereKey, mnemonic, err := keys.Generate()
	if err != nil {
		return "", "", err
	}
	identity := sphereKey.Identity

	bodyID, err := putSphereBody(ctx, s.blocks, &sphereBody{Identity: identity})
	if err != nil {
		return "", "", err
	}

	memo := &Memo{
		Body: bodyID,
		Headers: Headers{
			{Name: HeaderContentType, Value: ContentTypeSphere},
			{Name: HeaderVersion, Value: ProtocolVersion},
			{Name: HeaderLamportOrder, Value: "0"},
			{Name: HeaderOwner, Value: owner.Identity},
		},
	}
	if err := memo.Sign(sphereKey); err != nil {
		return "", "", err
	}
	version, err := putMemo(ctx, s.blocks, memo)
	if err != nil {
		return "", "", err
	}

	err = s.index.Register(&storage.SphereRecord{
		Identity:  identity,
		Owner:     owner.Identity,
		OwnerKey:  ownerKeyName,
		Version:   version.String(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", "", err
	}

	s.logger.Info("sphere created", "sphere", identity, "owner", ownerKeyName, "version", version.String())
	return identity, mnemonic, nil
}

// Open returns a handle on the latest local version of a sphere.
// Unknown and malformed identities both yield ErrSphereNotFound; no
// state is created.
func (s *Store) Open(ctx context.Context, identity string) (*Sphere, error) {
	if _, err := keys.ParseIdentity(identity); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSphereNotFound, err)
	}
	rec, err := s.index.Get(identity)
	if err != nil {
		if errors.Is(err, storage.ErrSphereNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSphereNotFound, identity)
		}
		return nil, err
	}
	tip, err := rec.Tip()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMemo, err)
	}
	rev, err := s.loadRevision(ctx, identity, tip)
	if err != nil {
		return nil, err
	}
	return s.newHandle(identity, rev, false), nil
}

// Spheres lists the identities of every local sphere.
func (s *Store) Spheres() ([]string, error) {
	return s.index.List()
}

// Recover re-authorizes a sphere to a new owner key, proving control with
// the sphere's own mnemonic. The new revision is signed by the sphere key.
func (s *Store) Recover(ctx context.Context, identity, mnemonic, newOwnerKeyName string) (*Sphere, error) {
	sphereKey, err := keys.FromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	if sphereKey.Identity != identity {
		return nil, ErrMnemonicMismatch
	}
	owner, err := s.keys.RequireKey(newOwnerKeyName)
	if err != nil {
		return nil, err
	}

	if err := s.recover(ctx, identity, sphereKey, owner); err != nil {
		return nil, err
	}
	s.logger.Info("sphere ownership recovered", "sphere", identity, "owner", newOwnerKeyName)
	return s.Open(ctx, identity)
}

func (s *Store) recover(ctx context.Context, identity string, sphereKey, owner *keys.Key) error {
	unlock, err := s.lockSphere(ctx, identity)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := s.index.Get(identity)
	if err != nil {
		if errors.Is(err, storage.ErrSphereNotFound) {
			return fmt.Errorf("%w: %s", ErrSphereNotFound, identity)
		}
		return err
	}
	tip, err := rec.Tip()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMemo, err)
	}
	base, err := s.loadRevision(ctx, identity, tip)
	if err != nil {
		return err
	}

	memo := BranchFrom(base.version, base.memo)
	memo.Headers.Set(HeaderOwner, owner.Identity)
	if err := memo.Sign(sphereKey); err != nil {
		return err
	}
	version, err := putMemo(ctx, s.blocks, memo)
	if err != nil {
		return err
	}

	return s.index.Advance(base.version, &storage.SphereRecord{
		Identity:  identity,
		Owner:     owner.Identity,
		OwnerKey:  owner.Name,
		Version:   version.String(),
		Lamport:   memo.LamportOrder(),
		UpdatedAt: time.Now().UTC(),
	})
}

func (s *Store) newHandle(identity string, rev *revision, readOnly bool) *Sphere {
	return &Sphere{
		identity: identity,
		store:    s,
		readOnly: readOnly,
		logger:   s.logger.With("sphere", identity, "handle", uuid.NewString()),
		state:    rev,
		pending:  make(map[string]cid.Cid),
	}
}
