package sphere

import (
	"context"

	"github.com/bitfsorg/libnoosphere-go/storage"
	"github.com/ipfs/go-cid"
)

// File is one content entry read from a sphere.
type File struct {
	slug    string
	version cid.Cid
	memo    *Memo
	blocks  storage.BlockStore
}

// Slug returns the slug the file was read from.
func (f *File) Slug() string { return f.slug }

// Version returns the CID of the file's content memo.
func (f *File) Version() cid.Cid { return f.version }

// ContentType returns the first Content-Type header, or "".
func (f *File) ContentType() string {
	v, _ := f.memo.Headers.First(HeaderContentType)
	return v
}

// HeaderValues returns all values of the named header; empty if absent.
func (f *File) HeaderValues(name string) []string {
	return f.memo.Headers.Values(name)
}

// FirstHeader returns the first value of the named header.
func (f *File) FirstHeader(name string) (string, bool) {
	return f.memo.Headers.First(name)
}

// HeaderNames returns the distinct header names in order.
func (f *File) HeaderNames() []string {
	return f.memo.Headers.Names()
}

// ContentsAsync starts loading the file's bytes.
func (f *File) ContentsAsync(ctx context.Context) *Future[[]byte] {
	return Async(ctx, func(ctx context.Context) ([]byte, error) {
		return readBody(ctx, f.blocks, f.memo.Body)
	})
}

// Contents returns the file's bytes exactly as written.
func (f *File) Contents(ctx context.Context) ([]byte, error) {
	return f.ContentsAsync(ctx).Await(ctx)
}
