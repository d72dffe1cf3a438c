package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Multicodecs used for sphere blocks.
const (
	CodecRaw     = cid.Raw     // body chunks fetched as raw bytes
	CodecDagJSON = cid.DagJSON // memos, body chunk links, sphere bodies
)

// ComputeCID returns the CIDv1 of data using a sha2-256 multihash.
func ComputeCID(codec uint64, data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %w", ErrInvalidCID, err)
	}
	return cid.NewCidV1(codec, sum), nil
}

// VerifyCID checks that data hashes to id.
func VerifyCID(id cid.Cid, data []byte) error {
	if !id.Defined() {
		return ErrInvalidCID
	}
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCID, err)
	}
	if !got.Equals(id) {
		return fmt.Errorf("%w: %s", ErrCIDMismatch, id)
	}
	return nil
}
