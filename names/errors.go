package names

import "errors"

var (
	// ErrDNSLookupFailed indicates a DNS TXT lookup failed.
	ErrDNSLookupFailed = errors.New("names: DNS lookup failed")

	// ErrDNSSECValidationFailed indicates the upstream resolver did not
	// authenticate the response.
	ErrDNSSECValidationFailed = errors.New("names: DNSSEC validation failed")

	// ErrNoRecord indicates no sphere record was published for the domain.
	ErrNoRecord = errors.New("names: no sphere record")

	// ErrInvalidRecord indicates a malformed sphere TXT record.
	ErrInvalidRecord = errors.New("names: invalid sphere record")

	// ErrEmptyDomain indicates an empty domain name.
	ErrEmptyDomain = errors.New("names: empty domain")
)
