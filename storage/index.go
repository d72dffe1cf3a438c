package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"go.etcd.io/bbolt"
)

var (
	bucketSpheres  = []byte("spheres")
	bucketVersions = []byte("versions")
)

// SphereRecord is the index entry for one sphere.
type SphereRecord struct {
	Identity  string    // sphere did:key
	Owner     string    // did:key authorized to sign new versions
	OwnerKey  string    // local key name holding Owner; empty if not held here
	Version   string    // CID of the latest sphere memo
	Lamport   uint32    // Lamport order of Version
	UpdatedAt time.Time // wall clock of the last tip change
}

// Tip parses the record's version CID.
func (r *SphereRecord) Tip() (cid.Cid, error) {
	return cid.Decode(r.Version)
}

// VersionEntry is one step in a sphere's history.
type VersionEntry struct {
	Lamport uint32
	Version cid.Cid
}

// SphereIndex wraps a bbolt database that maps sphere identities to their
// latest version and keeps every version ever committed, keyed by Lamport
// order. Moving the tip is the commit point of a save.
type SphereIndex struct {
	mu     sync.RWMutex
	db     *bbolt.DB
	closed bool
}

// OpenSphereIndex opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenSphereIndex(dbPath string) (*SphereIndex, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrIOFailure, err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt db: %w", ErrIOFailure, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketSpheres, bucketVersions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("index: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create buckets: %w", ErrIOFailure, err)
	}

	return &SphereIndex{db: db}, nil
}

// Close closes the underlying database. Later calls return ErrIndexClosed.
func (s *SphereIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SphereIndex) view(fn func(tx *bbolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrIndexClosed
	}
	return s.db.View(fn)
}

func (s *SphereIndex) update(fn func(tx *bbolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrIndexClosed
	}
	return s.db.Update(fn)
}

// versionKey encodes identity || 0x00 || lamport (big-endian) for sorted scans.
func versionKey(identity string, lamport uint32) []byte {
	k := make([]byte, 0, len(identity)+5)
	k = append(k, identity...)
	k = append(k, 0)
	return binary.BigEndian.AppendUint32(k, lamport)
}

// encodeGob serializes a value using gob encoding.
func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeGob deserializes gob-encoded data into a value.
func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func putRecord(tx *bbolt.Tx, rec *SphereRecord) error {
	data, err := encodeGob(rec)
	if err != nil {
		return fmt.Errorf("index: encode record: %w", err)
	}
	if err := tx.Bucket(bucketSpheres).Put([]byte(rec.Identity), data); err != nil {
		return fmt.Errorf("index: put record: %w", err)
	}
	tip, err := rec.Tip()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCID, err)
	}
	if err := tx.Bucket(bucketVersions).Put(versionKey(rec.Identity, rec.Lamport), tip.Bytes()); err != nil {
		return fmt.Errorf("index: put version: %w", err)
	}
	return nil
}

// Register records a new sphere. Returns ErrSphereExists if the identity is
// already registered; concurrent registrations of one identity see exactly
// one success.
func (s *SphereIndex) Register(rec *SphereRecord) error {
	if rec == nil || rec.Identity == "" {
		return fmt.Errorf("index: register: empty record")
	}
	return s.update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketSpheres).Get([]byte(rec.Identity)) != nil {
			return fmt.Errorf("%w: %s", ErrSphereExists, rec.Identity)
		}
		return putRecord(tx, rec)
	})
}

// Get returns the record for identity, or ErrSphereNotFound.
func (s *SphereIndex) Get(identity string) (*SphereRecord, error) {
	var rec SphereRecord
	err := s.view(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSpheres).Get([]byte(identity))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrSphereNotFound, identity)
		}
		if err := decodeGob(data, &rec); err != nil {
			return fmt.Errorf("index: decode record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Advance moves the tip of rec.Identity from prev to rec.Version in a single
// transaction. Returns ErrStaleVersion if the stored tip is no longer prev.
func (s *SphereIndex) Advance(prev cid.Cid, rec *SphereRecord) error {
	return s.update(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSpheres).Get([]byte(rec.Identity))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrSphereNotFound, rec.Identity)
		}
		var current SphereRecord
		if err := decodeGob(data, &current); err != nil {
			return fmt.Errorf("index: decode record: %w", err)
		}
		if current.Version != prev.String() {
			return fmt.Errorf("%w: tip is %s, expected %s", ErrStaleVersion, current.Version, prev)
		}
		return putRecord(tx, rec)
	})
}

// Put stores rec unconditionally, creating or replacing the entry.
// Used when importing a replicated sphere.
func (s *SphereIndex) Put(rec *SphereRecord) error {
	return s.update(func(tx *bbolt.Tx) error {
		return putRecord(tx, rec)
	})
}

// History returns every recorded version of identity, newest first.
func (s *SphereIndex) History(identity string) ([]VersionEntry, error) {
	prefix := append([]byte(identity), 0)

	var entries []VersionEntry
	err := s.view(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketSpheres).Get([]byte(identity)) == nil {
			return fmt.Errorf("%w: %s", ErrSphereNotFound, identity)
		}
		c := tx.Bucket(bucketVersions).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if len(k) != len(prefix)+4 {
				continue
			}
			id, err := cid.Cast(v)
			if err != nil {
				return fmt.Errorf("index: decode version: %w", err)
			}
			entries = append(entries, VersionEntry{
				Lamport: binary.BigEndian.Uint32(k[len(prefix):]),
				Version: id,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// List returns all registered sphere identities in key order.
func (s *SphereIndex) List() ([]string, error) {
	var out []string
	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSpheres).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
