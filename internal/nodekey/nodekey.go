// Package nodekey defines the identity of one memoized computation: a rule
// plus the concrete subject it runs against, optionally scoped to a session
// run. Two equal keys always address the same (possibly still pending)
// result; that equality is the engine's central memoization invariant.
package nodekey

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Keyer is implemented by subject values that control their own canonical
// cache identity. Subjects that do not implement it fall back to a
// deterministic Go-syntax rendering, which is adequate for value types but
// not for pointers; engine-facing subject types should implement Keyer.
type Keyer interface {
	CacheKey() string
}

// Key uniquely identifies a unit of cacheable computation. The zero value
// is not a valid key. Keys are comparable and usable as map keys.
type Key struct {
	// Rule is the producing rule's name.
	Rule string

	// Subject is the canonical fingerprint of the concrete subject value.
	Subject string

	// RunID is empty for cacheable rules; for uncacheable rules it carries
	// the session run id so the node is recomputed per session.
	RunID string
}

// New builds the key for a rule invocation.
func New(rule string, subject any, runID string) Key {
	return Key{Rule: rule, Subject: SubjectKey(subject), RunID: runID}
}

// SubjectKey returns the canonical fingerprint for a subject value.
func SubjectKey(subject any) string {
	if subject == nil {
		return "nil"
	}
	if k, ok := subject.(Keyer); ok {
		return k.CacheKey()
	}
	return fmt.Sprintf("%T:%#v", subject, subject)
}

func (k Key) String() string {
	if k.RunID == "" {
		return fmt.Sprintf("%s@%s", k.Rule, k.Subject)
	}
	return fmt.Sprintf("%s@%s/run=%s", k.Rule, k.Subject, k.RunID)
}

// Hash returns a 64-bit fingerprint of the key, used for shard selection in
// the node table.
func (k Key) Hash() uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(k.Rule)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(k.Subject)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(k.RunID)
	return h.Sum64()
}
