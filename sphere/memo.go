package sphere

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bitfsorg/libnoosphere-go/keys"
	"github.com/bitfsorg/libnoosphere-go/storage"
	"github.com/ipfs/go-cid"
)

// Memo pairs ordered headers with a body link and an optional parent link.
// Fields are declared in key order so the JSON encoding is canonical.
type Memo struct {
	Body    cid.Cid  `json:"body"`
	Headers Headers  `json:"headers"`
	Parent  *cid.Cid `json:"parent,omitempty"`
}

// LamportOrder parses the Lamport-Order header; absent or malformed is 0.
func (m *Memo) LamportOrder() uint32 {
	v, ok := m.Headers.First(HeaderLamportOrder)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// BranchFrom returns a child of parent: same headers and body, linked to
// parentID, with signature material removed and Lamport order incremented.
func BranchFrom(parentID cid.Cid, parent *Memo) *Memo {
	child := &Memo{
		Body:    parent.Body,
		Headers: parent.Headers.Clone(),
		Parent:  &parentID,
	}
	child.Headers.Del(HeaderSignature)
	child.Headers.Del(HeaderProof)
	child.Headers.Set(HeaderLamportOrder, strconv.FormatUint(uint64(parent.LamportOrder())+1, 10))
	return child
}

// Sign signs the body CID with key and records the signature and author.
func (m *Memo) Sign(key *keys.Key) error {
	sig, err := key.Sign(m.Body.Bytes())
	if err != nil {
		return err
	}
	m.Headers.Set(HeaderSignature, base64.StdEncoding.EncodeToString(sig))
	m.Headers.Del(HeaderProof)
	m.Headers.Set(HeaderAuthor, key.Identity)
	return nil
}

// VerifySignature checks the Signature header against the Author header
// and returns the author identity.
func (m *Memo) VerifySignature() (string, error) {
	author, ok := m.Headers.First(HeaderAuthor)
	if !ok {
		return "", fmt.Errorf("%w: no author header", ErrInvalidMemo)
	}
	encoded, ok := m.Headers.First(HeaderSignature)
	if !ok {
		return "", fmt.Errorf("%w: no signature header", ErrInvalidMemo)
	}
	sig, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: signature encoding: %w", ErrInvalidMemo, err)
	}
	if err := keys.Verify(author, m.Body.Bytes(), sig); err != nil {
		return "", err
	}
	return author, nil
}

// verifySphereMemo checks that m is a sphere revision its author may write
// on top of parent, which must already be trusted. A genesis revision
// (parent nil) is signed by the sphere key. Later revisions are signed by
// the sphere key or by the owner named in parent, and only the sphere key
// may change the owner.
func verifySphereMemo(m, parent *Memo, identity string) error {
	ct, _ := m.Headers.First(HeaderContentType)
	if ct != ContentTypeSphere {
		return fmt.Errorf("%w: content type %q", ErrInvalidMemo, ct)
	}
	author, err := m.VerifySignature()
	if err != nil {
		return err
	}

	if parent == nil {
		if author != identity {
			return fmt.Errorf("%w: genesis signed by %s", ErrUnauthorized, author)
		}
		return nil
	}
	if m.LamportOrder() != parent.LamportOrder()+1 {
		return fmt.Errorf("%w: lamport order %d follows %d", ErrInvalidMemo, m.LamportOrder(), parent.LamportOrder())
	}
	if author == identity {
		return nil
	}

	owner, _ := m.Headers.First(HeaderOwner)
	authorized, _ := parent.Headers.First(HeaderOwner)
	if authorized == "" || author != authorized {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, author)
	}
	if owner != authorized {
		return fmt.Errorf("%w: owner change signed by %s", ErrUnauthorized, author)
	}
	return nil
}

// EncodeMemo returns the DAG-JSON encoding of m.
func EncodeMemo(m *Memo) ([]byte, error) {
	if !m.Body.Defined() {
		return nil, fmt.Errorf("%w: undefined body", ErrInvalidMemo)
	}
	if m.Headers == nil {
		m.Headers = Headers{}
	}
	return json.Marshal(m)
}

// DecodeMemo parses a DAG-JSON memo block.
func DecodeMemo(data []byte) (*Memo, error) {
	var m Memo
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMemo, err)
	}
	if !m.Body.Defined() {
		return nil, fmt.Errorf("%w: undefined body", ErrInvalidMemo)
	}
	return &m, nil
}

func putMemo(ctx context.Context, bs storage.BlockStore, m *Memo) (cid.Cid, error) {
	data, err := EncodeMemo(m)
	if err != nil {
		return cid.Undef, err
	}
	return bs.Put(ctx, storage.CodecDagJSON, data)
}

func loadMemo(ctx context.Context, bs storage.BlockStore, id cid.Cid) (*Memo, error) {
	data, err := bs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return DecodeMemo(data)
}
