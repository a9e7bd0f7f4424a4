package storage

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// NormalizeContent canonicalizes content before hashing: leading/trailing
// whitespace is trimmed and internal runs of whitespace collapse to a single
// space. Case is preserved so that deliberately different casing is not
// treated as a duplicate.
func NormalizeContent(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// ContentHash returns the hex-encoded SHA-256 of the normalized content.
// It is a pure function: identical content always yields identical hashes.
func ContentHash(content string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(NormalizeContent(content))))
}
