package keys

import "errors"

var (
	// ErrInvalidMnemonic indicates the mnemonic fails BIP39 validation.
	ErrInvalidMnemonic = errors.New("keys: invalid BIP39 mnemonic")

	// ErrInvalidEntropy indicates entropy bits is not 128 or 256.
	ErrInvalidEntropy = errors.New("keys: entropy bits must be 128 or 256")

	// ErrDerivationFailed indicates BIP32 key derivation failed.
	ErrDerivationFailed = errors.New("keys: key derivation failed")

	// ErrInvalidKeyName indicates a key name is empty or contains unsupported characters.
	ErrInvalidKeyName = errors.New("keys: invalid key name")

	// ErrKeyExists indicates the key name is already taken.
	ErrKeyExists = errors.New("keys: key already exists")

	// ErrKeyNotFound indicates no key is stored under the given name.
	ErrKeyNotFound = errors.New("keys: key not found")

	// ErrDecryptionFailed indicates wrong passphrase or corrupted key file.
	ErrDecryptionFailed = errors.New("keys: key decryption failed (wrong passphrase or corrupted data)")

	// ErrChecksumMismatch indicates the sealed secret checksum did not verify.
	ErrChecksumMismatch = errors.New("keys: sealed secret checksum mismatch")

	// ErrInvalidIdentity indicates an identity string is not a supported did:key.
	ErrInvalidIdentity = errors.New("keys: invalid identity")

	// ErrInvalidSignature indicates a signature failed to parse or verify.
	ErrInvalidSignature = errors.New("keys: invalid signature")

	// ErrIO indicates a key file read/write error.
	ErrIO = errors.New("keys: I/O failure")
)
