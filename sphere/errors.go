package sphere

import "errors"

var (
	// ErrInvalidSlug indicates an empty or malformed content slug.
	ErrInvalidSlug = errors.New("sphere: invalid slug")

	// ErrContentNotFound indicates no content entry exists for a slug.
	ErrContentNotFound = errors.New("sphere: content not found")

	// ErrSphereNotFound indicates the sphere identity is not known locally.
	ErrSphereNotFound = errors.New("sphere: sphere not found")

	// ErrReadOnly indicates a mutation on a historical (read-only) view.
	ErrReadOnly = errors.New("sphere: sphere view is read-only")

	// ErrUnauthorized indicates a signer that is neither the sphere nor its owner.
	ErrUnauthorized = errors.New("sphere: signer is not authorized")

	// ErrInvalidMemo indicates a memo block that cannot be decoded or is malformed.
	ErrInvalidMemo = errors.New("sphere: invalid memo")

	// ErrMnemonicMismatch indicates a recovery phrase that does not derive the sphere key.
	ErrMnemonicMismatch = errors.New("sphere: mnemonic does not match sphere identity")
)
