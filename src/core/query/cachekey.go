package query

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Normalize lowercases the question and collapses runs of whitespace so that
// trivially reworded submissions share a cache entry.
func Normalize(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

// CacheKey derives the cache identity of a question. The fingerprint folds in
// the retrieval parameters so a config change invalidates old entries.
func CacheKey(question, fingerprint string) string {
	sum := md5.Sum([]byte(Normalize(question) + "|" + fingerprint))
	return hex.EncodeToString(sum[:])
}
