package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// Encryption format sizes.
	SaltLen     = 16
	NonceLen    = 12
	ChecksumLen = 4
	KeyLen      = 32

	sealVersion   = 1
	sealHeaderLen = 1 + 4 + 4 + 1 // version || time || memory || threads
)

// KDFParams are the Argon2id parameters used to seal key files.
// They are written into each sealed blob, so files sealed with one set of
// parameters stay readable after the defaults change.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams are the Argon2id costs for newly sealed keys.
var DefaultKDFParams = KDFParams{
	Time:    3,
	Memory:  64 * 1024, // 64 MB
	Threads: 4,
}

// Seal encrypts secret with Argon2id + AES-256-GCM.
//
// Output format: version(1B) || time(4B) || memory(4B) || threads(1B) ||
// salt(16B) || nonce(12B) || AES-GCM(argon2id(passphrase,salt), nonce, secret||checksum)
//
// The checksum is SHA256(secret)[:4] for verifying correct decryption.
func Seal(secret []byte, passphrase string, params KDFParams) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("keys: nothing to seal")
	}

	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keys: failed to generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt, params)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keys: failed to generate nonce: %w", err)
	}

	secretHash := sha256.Sum256(secret)
	plaintext := make([]byte, 0, len(secret)+ChecksumLen)
	plaintext = append(plaintext, secret...)
	plaintext = append(plaintext, secretHash[:ChecksumLen]...)

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	result := make([]byte, sealHeaderLen, sealHeaderLen+SaltLen+NonceLen+len(ciphertext))
	result[0] = sealVersion
	binary.BigEndian.PutUint32(result[1:5], params.Time)
	binary.BigEndian.PutUint32(result[5:9], params.Memory)
	result[9] = params.Threads
	result = append(result, salt...)
	result = append(result, nonce...)
	result = append(result, ciphertext...)

	return result, nil
}

// Unseal reverses Seal. Returns ErrDecryptionFailed for a wrong passphrase
// or a malformed blob and ErrChecksumMismatch if the checksum fails.
func Unseal(sealed []byte, passphrase string) ([]byte, error) {
	if len(sealed) < sealHeaderLen+SaltLen+NonceLen+ChecksumLen || sealed[0] != sealVersion {
		return nil, ErrDecryptionFailed
	}

	params := KDFParams{
		Time:    binary.BigEndian.Uint32(sealed[1:5]),
		Memory:  binary.BigEndian.Uint32(sealed[5:9]),
		Threads: sealed[9],
	}
	body := sealed[sealHeaderLen:]
	salt := body[:SaltLen]
	nonce := body[SaltLen : SaltLen+NonceLen]
	ciphertext := body[SaltLen+NonceLen:]

	gcm, err := newGCM(passphrase, salt, params)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil || len(plaintext) < ChecksumLen {
		return nil, ErrDecryptionFailed
	}

	secret := plaintext[:len(plaintext)-ChecksumLen]
	stored := plaintext[len(plaintext)-ChecksumLen:]
	expected := sha256.Sum256(secret)
	if subtle.ConstantTimeCompare(stored, expected[:ChecksumLen]) != 1 {
		return nil, ErrChecksumMismatch
	}

	return secret, nil
}

func newGCM(passphrase string, salt []byte, params KDFParams) (cipher.AEAD, error) {
	if params.Time == 0 || params.Memory == 0 || params.Threads == 0 {
		return nil, fmt.Errorf("keys: invalid KDF parameters %+v", params)
	}

	derived := argon2.IDKey([]byte(passphrase), salt, params.Time, params.Memory, params.Threads, KeyLen)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("keys: AES cipher creation failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keys: GCM creation failed: %w", err)
	}
	return gcm, nil
}
