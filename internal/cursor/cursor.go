// Package cursor encodes the pagination state of a collection query.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ErrInvalid is returned for cursors that cannot be decoded or belong to
// another query.
var ErrInvalid = errors.New("invalid page cursor")

// Cursor represents the state needed to resume a query
type Cursor struct {
	// Offset is the position of the first entry of the next page.
	Offset int
	// LastID is the id of the last entry returned.
	LastID string
	// Fingerprint identifies the query the cursor was issued for.
	Fingerprint uint64
}

type wire struct {
	Offset      int    `json:"o"`
	LastID      string `json:"l,omitempty"`
	Fingerprint string `json:"f"`
}

// Fingerprint hashes the canonical parts of a query. The parts are
// separated so ("ab", "c") and ("a", "bc") differ.
func Fingerprint(parts ...string) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// Encode encodes a cursor into a base64url JSON string
func Encode(c *Cursor) (string, error) {
	if c == nil {
		return "", fmt.Errorf("cursor cannot be nil")
	}
	if c.Offset < 0 {
		return "", fmt.Errorf("cursor offset cannot be negative")
	}

	jsonBytes, err := json.Marshal(wire{
		Offset:      c.Offset,
		LastID:      c.LastID,
		Fingerprint: strconv.FormatUint(c.Fingerprint, 16),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(jsonBytes), nil
}

// Decode decodes a string produced by Encode.
func Decode(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalid)
	}

	jsonBytes, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var w wire
	if err := json.Unmarshal(jsonBytes, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if w.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrInvalid)
	}
	fp, err := strconv.ParseUint(w.Fingerprint, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad fingerprint", ErrInvalid)
	}

	return &Cursor{Offset: w.Offset, LastID: w.LastID, Fingerprint: fp}, nil
}

// Resume decodes encoded and checks that it was issued for the query with
// the given fingerprint.
func Resume(encoded string, fingerprint uint64) (*Cursor, error) {
	c, err := Decode(encoded)
	if err != nil {
		return nil, err
	}
	if c.Fingerprint != fingerprint {
		return nil, fmt.Errorf("%w: issued for a different query", ErrInvalid)
	}
	return c, nil
}
