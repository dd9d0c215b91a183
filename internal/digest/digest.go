// Package digest implements content fingerprinting for file bytes and
// directory structure. Digests are the cache-key currency of the engine:
// they appear both as first-class product values and inside node keys for
// filesystem-dependent computations.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Digest is a 256-bit content fingerprint. The zero value is not a valid
// digest of any content and can be used as a sentinel.
type Digest [sha256.Size]byte

// OfBytes returns the digest of a byte slice.
func OfBytes(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// OfString returns the digest of a string.
func OfString(s string) Digest {
	return OfBytes([]byte(s))
}

// Entry is one named child inside a directory digest computation.
type Entry struct {
	Name   string
	Digest Digest
}

// OfEntries returns a digest over a set of named child digests. Entries are
// sorted by name first so the result is independent of listing order.
func OfEntries(entries []Entry) Digest {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	h := sha256.New()
	for _, e := range sorted {
		fmt.Fprintf(h, "%s\x00", e.Name)
		h.Write(e.Digest[:])
	}
	var d Digest
	h.Sum(d[:0])
	return d
}

// String returns the lowercase hex form of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 12 hex characters, for logging.
func (d Digest) Short() string {
	return d.String()[:12]
}

// IsZero reports whether the digest is the zero sentinel.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// CacheKey implements the subject keying contract so a Digest can be used
// directly as a rule subject.
func (d Digest) CacheKey() string {
	return "digest:" + d.String()
}
