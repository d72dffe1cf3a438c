// Package names resolves domain names to published spheres.
//
// A domain publishes a sphere with a TXT record at _sphere.{domain}:
//
//	sphere=did:key:zQ3s... version=bafyrei...
//
// The version field is optional; without it only the identity is known.
package names

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/bitfsorg/libnoosphere-go/keys"
	"github.com/ipfs/go-cid"
)

// RecordPrefix is the label prepended to a domain for the TXT lookup.
const RecordPrefix = "_sphere."

// DNSResolver defines the interface for DNS TXT lookups.
type DNSResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DefaultDNSResolver is the system resolver from the net package.
var DefaultDNSResolver DNSResolver = net.DefaultResolver

// Record is a published sphere pointer.
type Record struct {
	Identity string  // sphere did:key
	Version  cid.Cid // cid.Undef when not published
}

// String formats the record as TXT record text.
func (r Record) String() string {
	if !r.Version.Defined() {
		return "sphere=" + r.Identity
	}
	return "sphere=" + r.Identity + " version=" + r.Version.String()
}

// ParseRecord parses TXT record text. Unknown fields are ignored.
func ParseRecord(txt string) (*Record, error) {
	var rec Record
	for _, field := range strings.Fields(txt) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "sphere":
			if _, err := keys.ParseIdentity(value); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
			}
			rec.Identity = value
		case "version":
			v, err := cid.Decode(value)
			if err != nil {
				return nil, fmt.Errorf("%w: version: %w", ErrInvalidRecord, err)
			}
			rec.Version = v
		}
	}
	if rec.Identity == "" {
		return nil, fmt.Errorf("%w: no sphere= field", ErrInvalidRecord)
	}
	return &rec, nil
}

// Resolve looks up the sphere published for domain with the system resolver.
func Resolve(ctx context.Context, domain string) (*Record, error) {
	return ResolveWithResolver(ctx, domain, DefaultDNSResolver)
}

// ResolveWithResolver looks up _sphere.{domain} TXT records and returns the
// first one carrying a valid sphere= field.
func ResolveWithResolver(ctx context.Context, domain string, resolver DNSResolver) (*Record, error) {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if domain == "" {
		return nil, ErrEmptyDomain
	}

	name := RecordPrefix + domain
	txts, err := resolver.LookupTXT(ctx, name)
	var dnsErr *net.DNSError
	switch {
	case err == nil:
	case errors.Is(err, ErrNoRecord):
		return nil, err
	case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
		return nil, fmt.Errorf("%w: %s: %w", ErrNoRecord, name, err)
	default:
		return nil, fmt.Errorf("%w: TXT lookup for %s: %w", ErrDNSLookupFailed, name, err)
	}

	var lastErr error
	for _, txt := range txts {
		txt = strings.TrimSpace(txt)
		if !strings.HasPrefix(txt, "sphere=") {
			continue
		}
		rec, err := ParseRecord(txt)
		if err != nil {
			lastErr = err
			continue
		}
		return rec, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %s", ErrNoRecord, name)
}
