package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	retry "github.com/sethvargo/go-retry"
)

// MaxBlockResponseSize bounds a single gateway block response (4 MB).
const MaxBlockResponseSize = 4 << 20

// Gateway retry defaults.
const (
	DefaultFetchRetries = 2
	DefaultFetchBackoff = 200 * time.Millisecond
)

// BlockResolver serves blocks from a local FileStore and falls back to
// gateway endpoints for blocks that are missing locally. Fetched blocks are
// verified against their CID and cached in the local store.
type BlockResolver struct {
	Store     *FileStore   // local block storage
	Endpoints []string     // gateway base URLs (e.g. "http://localhost:8080")
	Client    *http.Client // HTTP client for remote fetches; nil uses default

	// Retries is how many times a transient gateway failure (transport
	// error or 5xx) is retried per endpoint. Backoff is the first delay.
	Retries uint64
	Backoff time.Duration
}

// Compile-time interface check.
var _ BlockStore = (*BlockResolver)(nil)

// NewBlockResolver creates a BlockResolver over the given local store.
// Endpoints can be set after creation.
func NewBlockResolver(store *FileStore) *BlockResolver {
	return &BlockResolver{
		Store: store,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
		Retries: DefaultFetchRetries,
		Backoff: DefaultFetchBackoff,
	}
}

// Put stores a block locally.
func (r *BlockResolver) Put(ctx context.Context, codec uint64, data []byte) (cid.Cid, error) {
	return r.Store.Put(ctx, codec, data)
}

// Has reports local availability only; it never touches the network.
func (r *BlockResolver) Has(ctx context.Context, id cid.Cid) (bool, error) {
	return r.Store.Has(ctx, id)
}

// Get retrieves a block, trying sources in order:
//  1. Local FileStore
//  2. Gateway endpoints (GET /ipfs/{cid}?format=raw)
func (r *BlockResolver) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := checkCID(id); err != nil {
		return nil, err
	}

	if r.Store != nil {
		data, err := r.Store.Get(ctx, id)
		if err == nil {
			return data, nil
		}
		// Only continue if not found; other errors are real failures.
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("resolver: local store: %w", err)
		}
	}

	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var tooLarge error
	for _, ep := range r.Endpoints {
		data, err := r.fetchWithRetry(ctx, client, ep, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, ErrBlockTooLarge) {
				tooLarge = err
			}
			continue
		}
		// Verify content hash before trusting remote data.
		if VerifyCID(id, data) != nil {
			continue
		}
		if r.Store != nil {
			_ = r.Store.putBlock(id, data) // best-effort cache
		}
		return data, nil
	}

	if tooLarge != nil {
		return nil, fmt.Errorf("resolver: %s: %w", id, tooLarge)
	}
	return nil, fmt.Errorf("resolver: %w: %s", ErrNotFound, id)
}

// errTransient marks gateway failures worth retrying.
var errTransient = errors.New("resolver: transient gateway failure")

// fetchWithRetry fetches from one gateway with exponential backoff.
// Only transient failures are retried; a 404 fails immediately.
func (r *BlockResolver) fetchWithRetry(ctx context.Context, client *http.Client, baseURL string, id cid.Cid) ([]byte, error) {
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = DefaultFetchBackoff
	}
	b := retry.WithMaxRetries(r.Retries, retry.NewExponential(backoff))

	var data []byte
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		data, err = r.fetchFromEndpoint(ctx, client, baseURL, id)
		if err != nil && errors.Is(err, errTransient) {
			return retry.RetryableError(err)
		}
		return err
	})
	return data, err
}

// fetchFromEndpoint fetches one block from a single gateway.
func (r *BlockResolver) fetchFromEndpoint(ctx context.Context, client *http.Client, baseURL string, id cid.Cid) ([]byte, error) {
	url := strings.TrimSuffix(baseURL, "/") + "/ipfs/" + id.String() + "?format=raw"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("resolver: endpoint %s: %w", baseURL, err)
	}
	req.Header.Set("Accept", "application/vnd.ipld.raw")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: endpoint %s: %w", errTransient, baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: endpoint %s: HTTP %d", errTransient, baseURL, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resolver: endpoint %s: HTTP %d", baseURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBlockResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("resolver: endpoint %s: read body: %w", baseURL, err)
	}
	if len(data) > MaxBlockResponseSize {
		return nil, fmt.Errorf("%w: endpoint %s", ErrBlockTooLarge, baseURL)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("resolver: endpoint %s: empty response", baseURL)
	}

	return data, nil
}
