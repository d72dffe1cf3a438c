package keys

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// testKDF keeps Argon2id cheap in tests.
var testKDF = KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1}

func newTestStore(t *testing.T, passphrase string) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "keys"), passphrase)
	require.NoError(t, err)
	s.KDF = testKDF
	return s
}

// --- Mnemonic tests ---

func TestGenerateMnemonic_WordCounts(t *testing.T) {
	m12, err := GenerateMnemonic(Mnemonic12Words)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m12), 12)
	assert.True(t, ValidateMnemonic(m12))

	m24, err := GenerateMnemonic(Mnemonic24Words)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m24), 24)
	assert.True(t, ValidateMnemonic(m24))
}

func TestGenerateMnemonic_InvalidEntropy(t *testing.T) {
	_, err := GenerateMnemonic(64)
	assert.ErrorIs(t, err, ErrInvalidEntropy)
}

func TestSeedFromMnemonic_Invalid(t *testing.T) {
	_, err := SeedFromMnemonic("foo bar baz")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
}

// --- Key derivation tests ---

func TestFromMnemonic_Deterministic(t *testing.T) {
	k1, err := FromMnemonic(testMnemonic)
	require.NoError(t, err)
	k2, err := FromMnemonic(testMnemonic)
	require.NoError(t, err)

	assert.Equal(t, k1.Identity, k2.Identity)
	assert.True(t, strings.HasPrefix(k1.Identity, "did:key:z"), "identity %q", k1.Identity)
}

func TestGenerate_Unique(t *testing.T) {
	k1, m1, err := Generate()
	require.NoError(t, err)
	k2, m2, err := Generate()
	require.NoError(t, err)

	assert.NotEqual(t, m1, m2)
	assert.NotEqual(t, k1.Identity, k2.Identity)
	assert.Len(t, strings.Fields(m1), 24)

	restored, err := FromMnemonic(m1)
	require.NoError(t, err)
	assert.Equal(t, k1.Identity, restored.Identity)
}

func TestParseIdentity_RoundTrip(t *testing.T) {
	k, err := FromMnemonic(testMnemonic)
	require.NoError(t, err)

	pub, err := ParseIdentity(k.Identity)
	require.NoError(t, err)
	assert.Equal(t, k.PublicKey().Compressed(), pub.Compressed())
	assert.Equal(t, k.Identity, IdentityFromPublicKey(pub))
}

func TestParseIdentity_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		identity string
	}{
		{"empty", ""},
		{"no prefix", "doesnotexist"},
		{"other method", "did:web:example.com"},
		{"bad multibase", "did:key:!!!"},
		{"wrong base", "did:key:f00"},
		{"wrong codec", "did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIdentity(tt.identity)
			assert.ErrorIs(t, err, ErrInvalidIdentity)
		})
	}
}

func TestSignVerify(t *testing.T) {
	k, err := FromMnemonic(testMnemonic)
	require.NoError(t, err)

	msg := []byte("bafy-version")
	sig, err := k.Sign(msg)
	require.NoError(t, err)

	assert.NoError(t, Verify(k.Identity, msg, sig))
	assert.ErrorIs(t, Verify(k.Identity, []byte("other"), sig), ErrInvalidSignature)
	assert.ErrorIs(t, Verify(k.Identity, msg, []byte{0x01, 0x02}), ErrInvalidSignature)

	other, _, err := Generate()
	require.NoError(t, err)
	assert.ErrorIs(t, Verify(other.Identity, msg, sig), ErrInvalidSignature)
}

// --- Seal tests ---

func TestSealUnseal(t *testing.T) {
	secret := []byte(testMnemonic)

	sealed, err := Seal(secret, "hunter2", testKDF)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "abandon")

	got, err := Unseal(sealed, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestUnseal_WrongPassphrase(t *testing.T) {
	sealed, err := Seal([]byte("secret"), "right", testKDF)
	require.NoError(t, err)

	_, err = Unseal(sealed, "wrong")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestUnseal_Malformed(t *testing.T) {
	_, err := Unseal([]byte{sealVersion, 0, 0}, "")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	sealed, err := Seal([]byte("secret"), "", testKDF)
	require.NoError(t, err)
	sealed[0] = 9
	_, err = Unseal(sealed, "")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSeal_Empty(t *testing.T) {
	_, err := Seal(nil, "", testKDF)
	assert.Error(t, err)
}

// --- Store tests ---

func TestCheckKeyName(t *testing.T) {
	assert.NoError(t, CheckKeyName("bob"))
	assert.NoError(t, CheckKeyName("Bob_2-x"))
	assert.ErrorIs(t, CheckKeyName(""), ErrInvalidKeyName)
	assert.ErrorIs(t, CheckKeyName("../etc"), ErrInvalidKeyName)
	assert.ErrorIs(t, CheckKeyName("a b"), ErrInvalidKeyName)
}

func TestStore_CreateAndRequire(t *testing.T) {
	s := newTestStore(t, "pw")

	identity, err := s.CreateKey("bob")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(identity, DIDKeyPrefix))

	has, err := s.HasKey("bob")
	require.NoError(t, err)
	assert.True(t, has)

	pubIdentity, err := s.Identity("bob")
	require.NoError(t, err)
	assert.Equal(t, identity, pubIdentity)

	// A second store over the same directory must unseal from disk.
	s2, err := NewStore(s.dir, "pw")
	require.NoError(t, err)
	key, err := s2.RequireKey("bob")
	require.NoError(t, err)
	assert.Equal(t, identity, key.Identity)
	assert.Equal(t, "bob", key.Name)
}

func TestStore_CreateDuplicate(t *testing.T) {
	s := newTestStore(t, "")

	_, err := s.CreateKey("bob")
	require.NoError(t, err)

	_, err = s.CreateKey("bob")
	assert.ErrorIs(t, err, ErrKeyExists)
}

func TestStore_RequireMissing(t *testing.T) {
	s := newTestStore(t, "")

	_, err := s.RequireKey("nobody")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = s.Identity("nobody")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	has, err := s.HasKey("nobody")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStore_WrongPassphrase(t *testing.T) {
	s := newTestStore(t, "right")
	_, err := s.CreateKey("bob")
	require.NoError(t, err)

	s2, err := NewStore(s.dir, "wrong")
	require.NoError(t, err)
	_, err = s2.RequireKey("bob")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestStore_RestoreKey(t *testing.T) {
	s := newTestStore(t, "")

	want, err := FromMnemonic(testMnemonic)
	require.NoError(t, err)

	identity, err := s.RestoreKey("alice", testMnemonic)
	require.NoError(t, err)
	assert.Equal(t, want.Identity, identity)

	_, err = s.RestoreKey("carol", "not a mnemonic")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
	has, err := s.HasKey("carol")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStore_ListKeys(t *testing.T) {
	s := newTestStore(t, "")

	names, err := s.ListKeys()
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, name := range []string{"zed", "bob", "alice"} {
		_, err := s.CreateKey(name)
		require.NoError(t, err)
	}
	// Stray files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "notes.txt"), []byte("x"), 0600))

	names, err = s.ListKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "zed"}, names)
}

func TestStore_ConcurrentCreateSameName(t *testing.T) {
	s := newTestStore(t, "")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateKey("shared")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrKeyExists)
	}
	assert.Equal(t, 1, succeeded)
}

func TestStore_ConcurrentCreateDistinctNames(t *testing.T) {
	s := newTestStore(t, "")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateKey(fmt.Sprintf("key-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	names, err := s.ListKeys()
	require.NoError(t, err)
	assert.Len(t, names, 4)
}
