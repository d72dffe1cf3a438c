package sphere

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/bitfsorg/libnoosphere-go/storage"
	"github.com/ipfs/go-cid"
)

// chunkBytes encodes as a DAG-JSON bytes node: {"/":{"bytes":"<base64>"}}.
type chunkBytes []byte

type bytesNode struct {
	Bytes string `json:"bytes"`
}

func (b chunkBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]bytesNode{
		"/": {Bytes: base64.RawStdEncoding.EncodeToString(b)},
	})
}

func (b *chunkBytes) UnmarshalJSON(data []byte) error {
	var node map[string]bytesNode
	if err := json.Unmarshal(data, &node); err != nil {
		return err
	}
	n, ok := node["/"]
	if !ok {
		return fmt.Errorf("missing bytes node")
	}
	raw, err := base64.RawStdEncoding.DecodeString(n.Bytes)
	if err != nil {
		return err
	}
	*b = raw
	return nil
}

// bodyChunk is one link in a content body: a run of bytes and the next chunk.
type bodyChunk struct {
	Bytes chunkBytes `json:"bytes"`
	Next  *cid.Cid   `json:"next,omitempty"`
}

// writeBody stores data as a linked list of chunks of at most chunkSize
// bytes and returns the CID of the head chunk. Empty data is a single
// empty chunk.
func writeBody(ctx context.Context, bs storage.BlockStore, data []byte, chunkSize int) (cid.Cid, error) {
	chunks, err := storage.SplitIntoChunks(data, chunkSize)
	if err != nil {
		return cid.Undef, err
	}
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}

	var next *cid.Cid
	for i := len(chunks) - 1; i >= 0; i-- {
		encoded, err := json.Marshal(bodyChunk{Bytes: chunks[i], Next: next})
		if err != nil {
			return cid.Undef, fmt.Errorf("sphere: encode body chunk: %w", err)
		}
		id, err := bs.Put(ctx, storage.CodecDagJSON, encoded)
		if err != nil {
			return cid.Undef, err
		}
		next = &id
	}
	return *next, nil
}

// readBody follows the chunk list from head and concatenates the bytes.
func readBody(ctx context.Context, bs storage.BlockStore, head cid.Cid) ([]byte, error) {
	var out []byte
	next := &head
	for next != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := bs.Get(ctx, *next)
		if err != nil {
			return nil, err
		}
		var chunk bodyChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, fmt.Errorf("%w: body chunk %s: %w", ErrInvalidMemo, *next, err)
		}
		out = append(out, chunk.Bytes...)
		next = chunk.Next
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// sphereBody is the body of a sphere memo: the slug to content memo map.
type sphereBody struct {
	Content  map[string]cid.Cid `json:"content"`
	Identity string             `json:"identity"`
}

func putSphereBody(ctx context.Context, bs storage.BlockStore, body *sphereBody) (cid.Cid, error) {
	if body.Content == nil {
		body.Content = map[string]cid.Cid{}
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return cid.Undef, fmt.Errorf("sphere: encode sphere body: %w", err)
	}
	return bs.Put(ctx, storage.CodecDagJSON, encoded)
}

func loadSphereBody(ctx context.Context, bs storage.BlockStore, id cid.Cid) (*sphereBody, error) {
	data, err := bs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var body sphereBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: sphere body %s: %w", ErrInvalidMemo, id, err)
	}
	if body.Content == nil {
		body.Content = map[string]cid.Cid{}
	}
	return &body, nil
}
