package keys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	privateExt = ".private"
	publicExt  = ".public"
)

// Store keeps named keys under a directory:
//
//	{dir}/{name}.private  sealed mnemonic
//	{dir}/{name}.public   did:key identity, clear text
//
// Key names are unique. Creation claims the private file with O_EXCL, so
// concurrent creators of one name (in this or another process) see exactly
// one success and ErrKeyExists for the rest.
type Store struct {
	// KDF is used when sealing new keys. Existing files carry their own.
	KDF KDFParams

	dir        string
	passphrase string

	mu    sync.Mutex
	cache map[string]*Key
}

// NewStore opens (creating if needed) a key store rooted at dir.
// passphrase seals key files; it may be empty.
func NewStore(dir, passphrase string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty key directory", ErrIO)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return &Store{
		KDF:        DefaultKDFParams,
		dir:        dir,
		passphrase: passphrase,
		cache:      make(map[string]*Key),
	}, nil
}

// CheckKeyName validates a key name: non-empty, [A-Za-z0-9_-] only.
func CheckKeyName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidKeyName)
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("%w: invalid character %q in %q", ErrInvalidKeyName, char, name)
	}
	return nil
}

func (s *Store) privatePath(name string) string {
	return filepath.Join(s.dir, name+privateExt)
}

func (s *Store) publicPath(name string) string {
	return filepath.Join(s.dir, name+publicExt)
}

// CreateKey generates a new key under name and returns its identity.
func (s *Store) CreateKey(name string) (string, error) {
	mnemonic, err := GenerateMnemonic(Mnemonic24Words)
	if err != nil {
		return "", err
	}
	return s.RestoreKey(name, mnemonic)
}

// RestoreKey stores the key derived from mnemonic under name.
func (s *Store) RestoreKey(name, mnemonic string) (string, error) {
	if err := CheckKeyName(name); err != nil {
		return "", err
	}
	key, err := FromMnemonic(mnemonic)
	if err != nil {
		return "", err
	}
	sealed, err := Seal([]byte(mnemonic), s.passphrase, s.KDF)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.privatePath(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %q", ErrKeyExists, name)
		}
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := writeAndClose(f, sealed); err != nil {
		_ = os.Remove(s.privatePath(name))
		return "", err
	}
	if err := os.WriteFile(s.publicPath(name), []byte(key.Identity), 0644); err != nil {
		_ = os.Remove(s.privatePath(name))
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}

	key.Name = name
	s.cache[name] = key
	return key.Identity, nil
}

func writeAndClose(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// HasKey reports whether a key named name exists.
func (s *Store) HasKey(name string) (bool, error) {
	if err := CheckKeyName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(s.privatePath(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %w", ErrIO, err)
}

// RequireKey loads the key named name, unsealing it on first use.
// Returns ErrKeyNotFound if there is no such key.
func (s *Store) RequireKey(name string) (*Key, error) {
	if err := CheckKeyName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.cache[name]; ok {
		return key, nil
	}

	sealed, err := os.ReadFile(s.privatePath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, name)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	mnemonic, err := Unseal(sealed, s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("keys: unseal %q: %w", name, err)
	}
	key, err := FromMnemonic(string(mnemonic))
	if err != nil {
		return nil, err
	}

	key.Name = name
	s.cache[name] = key
	return key, nil
}

// Identity returns the public identity of a stored key without unsealing it.
func (s *Store) Identity(name string) (string, error) {
	if err := CheckKeyName(name); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.publicPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", ErrKeyNotFound, name)
		}
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ListKeys returns all key names, sorted.
func (s *Store) ListKeys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), privateExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), privateExt)
		if CheckKeyName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
