package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ipfs/go-cid"
)

// FileStore implements BlockStore using the local filesystem.
// Blocks are stored at: {baseDir}/{last 2 chars of cid}/{cid}
// CIDv1 strings share a long common prefix, so the shard is taken from the
// tail of the string.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// Compile-time interface check.
var _ BlockStore = (*FileStore)(nil)

// NewFileStore creates a new file-based block store.
// The directory is created if it does not exist.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, ErrInvalidBaseDir
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return &FileStore{
		baseDir: baseDir,
	}, nil
}

// BlockPath converts a CID to its filesystem path.
func BlockPath(baseDir string, id cid.Cid) string {
	s := id.String()
	return filepath.Join(baseDir, s[len(s)-2:], s)
}

func checkCID(id cid.Cid) error {
	if !id.Defined() {
		return ErrInvalidCID
	}
	return nil
}

// Put stores data and returns its CID. Writing an existing block is a no-op.
// The block appears atomically: readers see either nothing or the full block.
func (fs *FileStore) Put(ctx context.Context, codec uint64, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	if len(data) == 0 {
		return cid.Undef, ErrEmptyContent
	}

	id, err := ComputeCID(codec, data)
	if err != nil {
		return cid.Undef, err
	}
	if err := fs.putBlock(id, data); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

// putBlock writes data under a CID the caller has already verified.
func (fs *FileStore) putBlock(id cid.Cid, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := BlockPath(fs.baseDir, id)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return nil
}

// Get retrieves a block by CID and verifies its hash.
func (fs *FileStore) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkCID(id); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	data, err := os.ReadFile(BlockPath(fs.baseDir, id))
	fs.mu.RUnlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	if err := VerifyCID(id, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Has checks if a block exists for the given CID.
func (fs *FileStore) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := checkCID(id); err != nil {
		return false, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, err := os.Stat(BlockPath(fs.baseDir, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return true, nil
}
