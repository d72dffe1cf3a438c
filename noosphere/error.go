package noosphere

import (
	"context"
	"errors"
	"net"

	"github.com/bitfsorg/libnoosphere-go/config"
	"github.com/bitfsorg/libnoosphere-go/keys"
	"github.com/bitfsorg/libnoosphere-go/names"
	"github.com/bitfsorg/libnoosphere-go/sphere"
	"github.com/bitfsorg/libnoosphere-go/storage"
)

// Code classifies an Error.
type Code int

const (
	CodeOther                Code = 1
	CodeNetworkOffline       Code = 2
	CodeMissingConfiguration Code = 4
	CodeInvalidAuthorization Code = 5
	CodeNotFound             Code = 6
	CodeAlreadyExists        Code = 7
	CodeStorage              Code = 8
)

var codeNames = map[Code]string{
	CodeOther:                "other",
	CodeNetworkOffline:       "network offline",
	CodeMissingConfiguration: "missing configuration",
	CodeInvalidAuthorization: "invalid authorization",
	CodeNotFound:             "not found",
	CodeAlreadyExists:        "already exists",
	CodeStorage:              "storage",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

var (
	// ErrClosed indicates a call on a closed Noosphere.
	ErrClosed = errors.New("noosphere: closed")

	// ErrMissingPath indicates an empty global or sphere storage path.
	ErrMissingPath = errors.New("noosphere: storage path is required")
)

// Error is the uniform error returned by every Noosphere operation.
// Message is always non-empty.
type Error struct {
	Code    Code
	Message string

	err error
}

func (e *Error) Error() string { return e.Message }

// Unwrap exposes the underlying package error to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.err }

// CodeOf returns the code of err, CodeOther for foreign errors, or 0 for nil.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return classify(err)
}

// normalize converts any package error into *Error. nil stays nil.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	msg := err.Error()
	if msg == "" {
		msg = "unknown error"
	}
	return &Error{Code: classify(err), Message: msg, err: err}
}

func classify(err error) Code {
	switch {
	case errors.Is(err, ErrClosed),
		errors.Is(err, sphere.ErrSphereNotFound):
		return CodeOther

	case errors.Is(err, ErrMissingPath),
		errors.Is(err, config.ErrInvalidConfigLine),
		errors.Is(err, config.ErrEmptyGlobalDir),
		errors.Is(err, config.ErrEmptySphereDir),
		errors.Is(err, config.ErrInvalidGateway),
		errors.Is(err, config.ErrInvalidNameServer),
		errors.Is(err, config.ErrInvalidLogLevel),
		errors.Is(err, config.ErrInvalidChunkSize):
		return CodeMissingConfiguration

	case errors.Is(err, names.ErrNoRecord):
		return CodeNotFound

	case errors.Is(err, names.ErrDNSLookupFailed),
		errors.Is(err, names.ErrDNSSECValidationFailed):
		return CodeNetworkOffline

	case errors.Is(err, sphere.ErrUnauthorized),
		errors.Is(err, sphere.ErrMnemonicMismatch),
		errors.Is(err, keys.ErrInvalidSignature),
		errors.Is(err, keys.ErrDecryptionFailed),
		errors.Is(err, keys.ErrChecksumMismatch):
		return CodeInvalidAuthorization

	case errors.Is(err, keys.ErrKeyNotFound),
		errors.Is(err, sphere.ErrContentNotFound),
		errors.Is(err, storage.ErrNotFound):
		return CodeNotFound

	case errors.Is(err, keys.ErrKeyExists),
		errors.Is(err, storage.ErrSphereExists):
		return CodeAlreadyExists

	case errors.Is(err, keys.ErrIO),
		errors.Is(err, storage.ErrIOFailure),
		errors.Is(err, storage.ErrCIDMismatch),
		errors.Is(err, storage.ErrIndexClosed),
		errors.Is(err, storage.ErrStaleVersion),
		errors.Is(err, storage.ErrLocked),
		errors.Is(err, storage.ErrBlockTooLarge):
		return CodeStorage
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CodeNetworkOffline
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeNetworkOffline
	}
	return CodeOther
}
