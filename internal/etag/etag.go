// Package etag computes entity tags for single-entry responses.
package etag

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nlstn/go-optimade/internal/entry"
)

// VersionField is the attribute whose value identifies a revision of an
// entry when present.
const VersionField = "last_modified"

// Generate creates a weak ETag for an entry. Entries with a last_modified
// attribute are tagged by id and that value; others by their whole
// rendered form. Returns an empty string for nil.
func Generate(e *entry.Entry) string {
	if e == nil {
		return ""
	}

	var source []byte
	if v, ok := e.Attributes[VersionField]; ok && v.Kind() == entry.KindString {
		source = []byte(e.ID + "\x00" + v.Text())
	} else {
		data, err := json.Marshal(e)
		if err != nil {
			return ""
		}
		source = data
	}

	hash := sha256.Sum256(source)
	return fmt.Sprintf("W/\"%s\"", hex.EncodeToString(hash[:]))
}

// Parse extracts the ETag value from a quoted ETag string
// Handles both strong ("value") and weak (W/"value") ETags
func Parse(etagHeader string) string {
	etagHeader = strings.TrimSpace(etagHeader)
	etagHeader = strings.TrimPrefix(etagHeader, "W/")

	if len(etagHeader) >= 2 && etagHeader[0] == '"' && etagHeader[len(etagHeader)-1] == '"' {
		return etagHeader[1 : len(etagHeader)-1]
	}
	return etagHeader
}

// NoneMatch reports whether a response should be sent for an
// If-None-Match header. It is false when the header lists currentETag or
// is "*", which calls for 304 Not Modified.
func NoneMatch(ifNoneMatch string, currentETag string) bool {
	if ifNoneMatch == "" || currentETag == "" {
		return true
	}
	if strings.TrimSpace(ifNoneMatch) == "*" {
		return false
	}

	current := Parse(currentETag)
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if Parse(candidate) == current {
			return false
		}
	}
	return true
}
