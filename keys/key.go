package keys

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"

	bip32 "github.com/bsv-blockchain/go-sdk/compat/bip32"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	chaincfg "github.com/bsv-blockchain/go-sdk/transaction/chaincfg"
	"github.com/multiformats/go-multibase"
)

const (
	// BIP44 path constants.
	PurposeBIP44    = 44
	CoinTypeSphere  = 1564
	DefaultAccount  = 0
	ExternalChain   = 0
	SigningKeyIndex = 0

	// BIP32 hardened offset.
	Hardened = 0x80000000

	// DIDKeyPrefix is the method prefix of every identity this package emits.
	DIDKeyPrefix = "did:key:"
)

// secp256k1-pub multicodec (0xe7) as an unsigned varint.
var secp256k1Multicodec = []byte{0xe7, 0x01}

// Key is a signing key pair with its did:key identity.
// The private half never leaves this package except through Sign.
type Key struct {
	Name     string // empty for keys not held in a Store
	Identity string // did:key of the public key

	priv *ec.PrivateKey
	pub  *ec.PublicKey
}

// Generate creates a fresh key from a new 24-word mnemonic and returns both.
func Generate() (*Key, string, error) {
	mnemonic, err := GenerateMnemonic(Mnemonic24Words)
	if err != nil {
		return nil, "", err
	}
	key, err := FromMnemonic(mnemonic)
	if err != nil {
		return nil, "", err
	}
	return key, mnemonic, nil
}

// FromMnemonic derives the signing key for a mnemonic.
//
//	Path: m/44'/1564'/0'/0/0
func FromMnemonic(mnemonic string) (*Key, error) {
	seed, err := SeedFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}

	master, err := bip32.NewMaster(seed, &chaincfg.MainNet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}

	current := master
	for depth, idx := range []uint32{
		PurposeBIP44 + Hardened,
		CoinTypeSphere + Hardened,
		DefaultAccount + Hardened,
		ExternalChain,
		SigningKeyIndex,
	} {
		current, err = current.Child(idx)
		if err != nil {
			return nil, fmt.Errorf("%w: depth %d: %w", ErrDerivationFailed, depth, err)
		}
	}

	priv, err := current.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to extract EC private key: %w", ErrDerivationFailed, err)
	}
	pub := priv.PubKey()
	if pub == nil {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrDerivationFailed)
	}

	return &Key{
		Identity: IdentityFromPublicKey(pub),
		priv:     priv,
		pub:      pub,
	}, nil
}

// PublicKey returns the public half of the key.
func (k *Key) PublicKey() *ec.PublicKey {
	return k.pub
}

// Sign returns a DER-encoded ECDSA signature over SHA256(msg).
func (k *Key) Sign(msg []byte) ([]byte, error) {
	hash := sha256.Sum256(msg)
	sig, err := k.priv.Sign(hash[:])
	if err != nil {
		return nil, fmt.Errorf("keys: sign: %w", err)
	}
	return sig.Serialize(), nil
}

// IdentityFromPublicKey encodes a public key as a did:key string.
func IdentityFromPublicKey(pub *ec.PublicKey) string {
	raw := make([]byte, 0, len(secp256k1Multicodec)+33)
	raw = append(raw, secp256k1Multicodec...)
	raw = append(raw, pub.Compressed()...)

	// Base58BTC is always a supported encoding.
	encoded, _ := multibase.Encode(multibase.Base58BTC, raw)
	return DIDKeyPrefix + encoded
}

// ParseIdentity decodes a did:key string back into a public key.
func ParseIdentity(identity string) (*ec.PublicKey, error) {
	if !strings.HasPrefix(identity, DIDKeyPrefix) {
		return nil, fmt.Errorf("%w: %q is not a did:key", ErrInvalidIdentity, identity)
	}

	enc, raw, err := multibase.Decode(strings.TrimPrefix(identity, DIDKeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}
	if enc != multibase.Base58BTC {
		return nil, fmt.Errorf("%w: unexpected multibase encoding", ErrInvalidIdentity)
	}
	if !bytes.HasPrefix(raw, secp256k1Multicodec) {
		return nil, fmt.Errorf("%w: unsupported key type", ErrInvalidIdentity)
	}

	pub, err := ec.PublicKeyFromBytes(raw[len(secp256k1Multicodec):])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}
	return pub, nil
}

// Verify checks a DER signature produced by Sign against identity.
func Verify(identity string, msg, signature []byte) error {
	pub, err := ParseIdentity(identity)
	if err != nil {
		return err
	}

	sig, err := ec.ParseDERSignature(signature)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	hash := sha256.Sum256(msg)
	if !sig.Verify(hash[:], pub) {
		return ErrInvalidSignature
	}
	return nil
}
