package sphere

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Well-known header names.
const (
	HeaderContentType   = "Content-Type"
	HeaderAuthor        = "Author"
	HeaderSignature     = "Signature"
	HeaderVersion       = "Version"
	HeaderLamportOrder  = "Lamport-Order"
	HeaderTitle         = "Title"
	HeaderFileExtension = "File-Extension"
	HeaderProof         = "Proof"
	HeaderOwner         = "Owner"
)

// Well-known content types.
const (
	ContentTypeSubtext = "text/subtext"
	ContentTypeSphere  = "application/vnd.noosphere.sphere"
	ContentTypeBytes   = "raw/bytes"
)

// ProtocolVersion is written to the Version header of every sphere memo.
const ProtocolVersion = "0.1.0"

// Header is a single name/value pair.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered, multi-valued header list. Names compare
// case-insensitively; insertion order and original casing are preserved.
type Headers []Header

// Values returns every value for name in insertion order.
// The result is empty, never nil, when the header is absent.
func (h Headers) Values(name string) []string {
	out := []string{}
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr.Value)
		}
	}
	return out
}

// First returns the first value for name.
func (h Headers) First(name string) (string, bool) {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

// Names returns the distinct header names in first-seen order.
func (h Headers) Names() []string {
	out := []string{}
	seen := make(map[string]bool, len(h))
	for _, hdr := range h {
		key := strings.ToLower(hdr.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, hdr.Name)
	}
	return out
}

// Add appends a header, keeping any existing values for the same name.
func (h *Headers) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Del removes every header named name.
func (h *Headers) Del(name string) {
	out := (*h)[:0]
	for _, hdr := range *h {
		if !strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr)
		}
	}
	*h = out
}

// Set replaces the first header named name in place and drops any others.
// The header is appended when absent.
func (h *Headers) Set(name, value string) {
	found := false
	out := (*h)[:0]
	for _, hdr := range *h {
		if !strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr)
			continue
		}
		if !found {
			out = append(out, Header{Name: name, Value: value})
			found = true
		}
	}
	if !found {
		out = append(out, Header{Name: name, Value: value})
	}
	*h = out
}

// Clone returns an independent copy.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// MarshalJSON encodes headers as [[name, value], ...].
func (h Headers) MarshalJSON() ([]byte, error) {
	pairs := make([][2]string, len(h))
	for i, hdr := range h {
		pairs[i] = [2]string{hdr.Name, hdr.Value}
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON decodes the [[name, value], ...] form.
func (h *Headers) UnmarshalJSON(data []byte) error {
	var pairs [][]string
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("%w: headers: %w", ErrInvalidMemo, err)
	}
	out := make(Headers, 0, len(pairs))
	for _, p := range pairs {
		if len(p) != 2 {
			return fmt.Errorf("%w: header entry has %d elements", ErrInvalidMemo, len(p))
		}
		out = append(out, Header{Name: p[0], Value: p[1]})
	}
	*h = out
	return nil
}
