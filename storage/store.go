// Package storage holds the on-disk substrate of the sphere engine:
// a CID-addressed block store, a gateway-backed block resolver, the bbolt
// sphere index that records version tips, and cross-process file locks.
package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// BlockStore provides content-addressed storage for immutable blocks.
//
// Contract:
//   - Put is idempotent and returns the CIDv1 derived from (codec, data).
//   - Get returns ErrNotFound when the block is absent.
//   - Stored blocks never change; Get verifies the bytes match the CID.
type BlockStore interface {
	// Put stores data under the CID computed with the given multicodec.
	Put(ctx context.Context, codec uint64, data []byte) (cid.Cid, error)

	// Get retrieves a block by CID.
	Get(ctx context.Context, id cid.Cid) ([]byte, error)

	// Has reports whether a block is available.
	Has(ctx context.Context, id cid.Cid) (bool, error)
}
