// Package resolver fingerprints canonical project qualifications and
// flags generated versions whose recorded fingerprint no longer
// matches. Staleness is re-derived on read; nothing is pushed on
// write.
package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/draftline/autorun/pkg/core"
)

// ComputeHash returns a deterministic, order-independent fingerprint
// of the qualification fields. Any change to a field (or its removal)
// changes the hash.
func ComputeHash(q core.Qualifications) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Length-prefixed pairs keep the encoding injective: a value
	// containing "=" or "\n" cannot imitate another key set.
	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%d:%s=%d:%s\n", len(k), k, len(q[k]), q[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsStale reports whether the version was generated against a
// different qualification state than the current one. Versions with no
// recorded hash are never flagged.
func IsStale(v *core.DocumentVersion, currentHash string) bool {
	if v == nil || v.DependsOnResolverHash == "" {
		return false
	}
	return v.DependsOnResolverHash != currentHash
}

// ChangedFields lists the qualification fields that differ between the
// version's recorded snapshot and the current qualifications, sorted
// for stable reason strings. An empty snapshot yields no fields.
func ChangedFields(v *core.DocumentVersion, current core.Qualifications) []string {
	if v == nil || len(v.QualSnapshot) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var fields []string
	for k, old := range v.QualSnapshot {
		if current[k] != old {
			fields = append(fields, k)
			seen[k] = true
		}
	}
	for k := range current {
		if _, ok := v.QualSnapshot[k]; !ok && !seen[k] {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}
