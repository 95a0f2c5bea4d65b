package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// ScopedKey digests parts into a cache key under prefix, e.g. "idem:<hex>".
// Parts are NUL separated so ("ab","c") and ("a","bc") never collide.
func ScopedKey(prefix string, parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))
}
