// Package noosphere is the entry point for managing keys and spheres.
//
// A Noosphere owns two storage roots: a global root holding key material
// and configuration, and a sphere root holding blocks, the sphere index and
// lock files. Every operation returns either a value or an *Error, never both.
package noosphere

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bitfsorg/libnoosphere-go/config"
	"github.com/bitfsorg/libnoosphere-go/keys"
	"github.com/bitfsorg/libnoosphere-go/names"
	"github.com/bitfsorg/libnoosphere-go/sphere"
	"github.com/bitfsorg/libnoosphere-go/storage"
	"github.com/ipfs/go-cid"
	"go.opentelemetry.io/otel/attribute"
)

// Layout under the storage roots.
const (
	KeysDir   = "keys"     // under the global root
	BlocksDir = "blocks"   // under the sphere root
	IndexFile = "index.db" // under the sphere root
	LocksDir  = "locks"    // under the sphere root
)

// SphereReceipt is returned once, when a sphere is created. The mnemonic
// is the only way to recover the sphere and is not stored.
type SphereReceipt struct {
	Identity string
	Mnemonic string
}

// Option customizes Initialize.
type Option func(*options)

type options struct {
	passphrase string
	logger     *slog.Logger
	gateways   []string
	dns        names.DNSResolver
	kdf        *keys.KDFParams
}

// WithPassphrase seals key files with passphrase instead of an empty one.
func WithPassphrase(passphrase string) Option {
	return func(o *options) { o.passphrase = passphrase }
}

// WithLogger replaces the logger built from configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithGateways overrides the configured gateway URLs.
func WithGateways(gateways ...string) Option {
	return func(o *options) { o.gateways = gateways }
}

// WithDNSResolver overrides the resolver used by ResolveSphere.
func WithDNSResolver(r names.DNSResolver) Option {
	return func(o *options) { o.dns = r }
}

// WithKDFParams sets the key sealing cost for new keys.
func WithKDFParams(p keys.KDFParams) Option {
	return func(o *options) { o.kdf = &p }
}

// Noosphere coordinates the key store, block storage and sphere store.
type Noosphere struct {
	Config   config.Config
	Keys     *keys.Store
	Blocks   *storage.FileStore
	Resolver *storage.BlockResolver
	Index    *storage.SphereIndex
	Spheres  *sphere.Store

	dns       names.DNSResolver
	logger    *slog.Logger
	level     *slog.LevelVar
	logCloser io.Closer

	mu     sync.RWMutex
	closed bool
}

// Initialize opens (creating if needed) a Noosphere over the two storage
// roots. A config file at {globalPath}/config is applied when present; the
// paths given here always win over the file.
func Initialize(globalPath, spherePath string, opts ...Option) (*Noosphere, error) {
	n, err := initialize(globalPath, spherePath, opts...)
	if err != nil {
		return nil, normalize(err)
	}
	return n, nil
}

func initialize(globalPath, spherePath string, opts ...Option) (_ *Noosphere, err error) {
	if globalPath == "" || spherePath == "" {
		return nil, ErrMissingPath
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg, loadErr := config.LoadConfig(config.ConfigPath(globalPath))
	if loadErr != nil && !errors.Is(loadErr, config.ErrConfigNotFound) {
		return nil, loadErr
	}
	cfg.GlobalDir = globalPath
	cfg.SphereDir = spherePath
	if o.gateways != nil {
		cfg.Gateways = o.gateways
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	logger, logCloser, level := o.logger, io.Closer(nil), new(slog.LevelVar)
	if logger == nil {
		if logger, level, logCloser, err = newLogger(cfg.LogLevel, cfg.LogFile); err != nil {
			return nil, err
		}
		defer func() {
			if err != nil {
				_ = logCloser.Close()
			}
		}()
	}

	if err := os.MkdirAll(cfg.SphereDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrIOFailure, err)
	}

	keyStore, err := keys.NewStore(filepath.Join(cfg.GlobalDir, KeysDir), o.passphrase)
	if err != nil {
		return nil, err
	}
	if o.kdf != nil {
		keyStore.KDF = *o.kdf
	}

	blocks, err := storage.NewFileStore(filepath.Join(cfg.SphereDir, BlocksDir))
	if err != nil {
		return nil, err
	}
	resolver := storage.NewBlockResolver(blocks)
	resolver.Endpoints = cfg.Gateways

	index, err := storage.OpenSphereIndex(filepath.Join(cfg.SphereDir, IndexFile))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = index.Close()
		}
	}()

	spheres, err := sphere.NewStore(resolver, index, keyStore, sphere.Config{
		LockDir:   filepath.Join(cfg.SphereDir, LocksDir),
		ChunkSize: cfg.ChunkSize,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	dns := o.dns
	if dns == nil {
		if cfg.NameServer != "" {
			dns = names.NewDNSSECResolver(cfg.NameServer)
		} else {
			dns = names.DefaultDNSResolver
		}
	}

	logger.Debug("noosphere initialized", "global", cfg.GlobalDir, "spheres", cfg.SphereDir, "gateways", len(cfg.Gateways))

	return &Noosphere{
		Config:    cfg,
		Keys:      keyStore,
		Blocks:    blocks,
		Resolver:  resolver,
		Index:     index,
		Spheres:   spheres,
		dns:       dns,
		logger:    logger,
		level:     level,
		logCloser: logCloser,
	}, nil
}

// enter holds the context open for the duration of an operation.
func (n *Noosphere) enter() (func(), error) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return nil, ErrClosed
	}
	return n.mu.RUnlock, nil
}

// Close releases the sphere index and log file. In-flight operations
// finish first; later calls fail with ErrClosed.
func (n *Noosphere) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true

	err := n.Index.Close()
	if n.logCloser != nil {
		_ = n.logCloser.Close()
	}
	return normalize(err)
}

// CreateKey generates a new named key. Fails with CodeAlreadyExists if the
// name is taken; concurrent callers see exactly one success.
func (n *Noosphere) CreateKey(ctx context.Context, name string) error {
	_, span := startSpan(ctx, "CreateKey", attribute.String("key.name", name))
	leave, err := n.enter()
	if err != nil {
		return finish(span, err)
	}
	defer leave()

	identity, err := n.Keys.CreateKey(name)
	if err == nil {
		n.logger.Info("key created", "key", name, "identity", identity)
	}
	return finish(span, err)
}

// HasKey reports whether a key named name exists.
func (n *Noosphere) HasKey(ctx context.Context, name string) (bool, error) {
	_, span := startSpan(ctx, "HasKey", attribute.String("key.name", name))
	leave, err := n.enter()
	if err != nil {
		return false, finish(span, err)
	}
	defer leave()

	ok, err := n.Keys.HasKey(name)
	if err != nil {
		return false, finish(span, err)
	}
	return ok, finish(span, nil)
}

// ListKeys returns all key names, sorted.
func (n *Noosphere) ListKeys(ctx context.Context) ([]string, error) {
	_, span := startSpan(ctx, "ListKeys")
	leave, err := n.enter()
	if err != nil {
		return nil, finish(span, err)
	}
	defer leave()

	list, err := n.Keys.ListKeys()
	if err != nil {
		return nil, finish(span, err)
	}
	return list, finish(span, nil)
}

// KeyIdentity returns the did:key of a named key.
func (n *Noosphere) KeyIdentity(ctx context.Context, name string) (string, error) {
	_, span := startSpan(ctx, "KeyIdentity", attribute.String("key.name", name))
	leave, err := n.enter()
	if err != nil {
		return "", finish(span, err)
	}
	defer leave()

	id, err := n.Keys.Identity(name)
	if err != nil {
		return "", finish(span, err)
	}
	return id, finish(span, nil)
}

// CreateSphere creates a sphere owned by the named key.
func (n *Noosphere) CreateSphere(ctx context.Context, ownerKeyName string) (*SphereReceipt, error) {
	ctx, span := startSpan(ctx, "CreateSphere", attribute.String("key.name", ownerKeyName))
	leave, err := n.enter()
	if err != nil {
		return nil, finish(span, err)
	}
	defer leave()

	identity, mnemonic, err := n.Spheres.Create(ctx, ownerKeyName)
	if err != nil {
		return nil, finish(span, err)
	}
	span.SetAttributes(attribute.String("sphere.identity", identity))
	return &SphereReceipt{Identity: identity, Mnemonic: mnemonic}, finish(span, nil)
}

// OpenSphere opens a local sphere by identity. Unknown identities fail
// with CodeOther.
func (n *Noosphere) OpenSphere(ctx context.Context, identity string) (*Sphere, error) {
	ctx, span := startSpan(ctx, "OpenSphere", attribute.String("sphere.identity", identity))
	leave, err := n.enter()
	if err != nil {
		return nil, finish(span, err)
	}
	defer leave()

	h, err := n.Spheres.Open(ctx, identity)
	if err != nil {
		return nil, finish(span, err)
	}
	return n.wrap(h), finish(span, nil)
}

// ListSpheres returns the identities of all local spheres.
func (n *Noosphere) ListSpheres(ctx context.Context) ([]string, error) {
	_, span := startSpan(ctx, "ListSpheres")
	leave, err := n.enter()
	if err != nil {
		return nil, finish(span, err)
	}
	defer leave()

	ids, err := n.Spheres.Spheres()
	if err != nil {
		return nil, finish(span, err)
	}
	return ids, finish(span, nil)
}

// RecoverSphere hands ownership of a sphere to a new key, authorized by
// the sphere's mnemonic.
func (n *Noosphere) RecoverSphere(ctx context.Context, identity, mnemonic, newOwnerKeyName string) (*Sphere, error) {
	ctx, span := startSpan(ctx, "RecoverSphere",
		attribute.String("sphere.identity", identity),
		attribute.String("key.name", newOwnerKeyName))
	leave, err := n.enter()
	if err != nil {
		return nil, finish(span, err)
	}
	defer leave()

	h, err := n.Spheres.Recover(ctx, identity, mnemonic, newOwnerKeyName)
	if err != nil {
		return nil, finish(span, err)
	}
	return n.wrap(h), finish(span, nil)
}

// ReplicateSphere pulls a sphere version from the configured gateways.
func (n *Noosphere) ReplicateSphere(ctx context.Context, identity, version string) (*Sphere, error) {
	ctx, span := startSpan(ctx, "ReplicateSphere",
		attribute.String("sphere.identity", identity),
		attribute.String("sphere.version", version))
	leave, err := n.enter()
	if err != nil {
		return nil, finish(span, err)
	}
	defer leave()

	h, err := n.replicate(ctx, identity, version)
	if err != nil {
		return nil, finish(span, err)
	}
	return n.wrap(h), finish(span, nil)
}

func (n *Noosphere) replicate(ctx context.Context, identity, version string) (*sphere.Sphere, error) {
	v, err := cid.Decode(version)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q: %w", storage.ErrInvalidCID, version, err)
	}
	return n.Spheres.Replicate(ctx, identity, v)
}

// ResolveSphere looks up the sphere published for domain. A published
// version is replicated from the gateways; otherwise the sphere must
// already be local.
func (n *Noosphere) ResolveSphere(ctx context.Context, domain string) (*Sphere, error) {
	ctx, span := startSpan(ctx, "ResolveSphere", attribute.String("sphere.domain", domain))
	leave, err := n.enter()
	if err != nil {
		return nil, finish(span, err)
	}
	defer leave()

	rec, err := names.ResolveWithResolver(ctx, domain, n.dns)
	if err != nil {
		return nil, finish(span, err)
	}
	span.SetAttributes(attribute.String("sphere.identity", rec.Identity))

	var h *sphere.Sphere
	if rec.Version.Defined() {
		h, err = n.Spheres.Replicate(ctx, rec.Identity, rec.Version)
	} else {
		h, err = n.Spheres.Open(ctx, rec.Identity)
	}
	if err != nil {
		return nil, finish(span, err)
	}
	n.logger.Debug("sphere resolved", "domain", domain, "sphere", rec.Identity)
	return n.wrap(h), finish(span, nil)
}
