package sphere

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfsorg/libnoosphere-go/keys"
	"github.com/bitfsorg/libnoosphere-go/storage"
	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"
)

// replicateConcurrency bounds parallel content fetches during replication.
const replicateConcurrency = 8

// Replicate imports a sphere at version from the store's block source
// (typically a storage.BlockResolver backed by gateways) and records it in
// the local index. Revisions back to genesis, or to the newest one already
// held locally, are verified, and all content of the target version is
// fetched. If the local copy is already at or beyond the target Lamport
// order, it is opened unchanged.
func (s *Store) Replicate(ctx context.Context, identity string, version cid.Cid) (*Sphere, error) {
	if _, err := keys.ParseIdentity(identity); err != nil {
		return nil, err
	}

	memo, err := loadMemo(ctx, s.blocks, version)
	if err != nil {
		return nil, fmt.Errorf("sphere: replicate %s: %w", version, err)
	}
	chain, err := s.verifyLineage(ctx, identity, version, memo)
	if err != nil {
		return nil, fmt.Errorf("sphere: replicate %s: %w", version, err)
	}
	target, err := s.readRevision(ctx, identity, version, memo)
	if err != nil {
		return nil, fmt.Errorf("sphere: replicate %s: %w", version, err)
	}

	if rec, err := s.index.Get(identity); err == nil && rec.Lamport >= target.lamport() {
		s.logger.Debug("local sphere is current", "sphere", identity, "lamport", rec.Lamport)
		return s.Open(ctx, identity)
	} else if err != nil && !errors.Is(err, storage.ErrSphereNotFound) {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(replicateConcurrency)
	for slug, id := range target.content {
		g.Go(func() error {
			memo, err := loadMemo(gctx, s.blocks, id)
			if err != nil {
				return fmt.Errorf("sphere: replicate %q: %w", slug, err)
			}
			if _, err := readBody(gctx, s.blocks, memo.Body); err != nil {
				return fmt.Errorf("sphere: replicate %q body: %w", slug, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	unlock, err := s.lockSphere(ctx, identity)
	if err != nil {
		return nil, err
	}
	ownerKey := s.localKeyFor(target.memo)
	for i := len(chain) - 1; i >= 0; i-- {
		owner, _ := chain[i].memo.Headers.First(HeaderOwner)
		err := s.index.Put(&storage.SphereRecord{
			Identity:  identity,
			Owner:     owner,
			OwnerKey:  ownerKey,
			Version:   chain[i].version.String(),
			Lamport:   chain[i].memo.LamportOrder(),
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			unlock()
			return nil, err
		}
	}
	unlock()

	s.logger.Info("sphere replicated", "sphere", identity, "version", version.String(), "revisions", len(chain), "entries", len(target.content))
	return s.Open(ctx, identity)
}

// chainLink pairs a sphere memo with its CID.
type chainLink struct {
	version cid.Cid
	memo    *Memo
}

// localKeyFor returns the name of a local key matching the memo's owner, or "".
func (s *Store) localKeyFor(memo *Memo) string {
	owner, ok := memo.Headers.First(HeaderOwner)
	if !ok {
		return ""
	}
	names, err := s.keys.ListKeys()
	if err != nil {
		return ""
	}
	for _, name := range names {
		if id, err := s.keys.Identity(name); err == nil && id == owner {
			return name
		}
	}
	return ""
}
