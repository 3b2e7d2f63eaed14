// Package sanitize normalizes documents for storage: the store's key syntax
// forbids "$" and ".", and null is not representable without a sentinel.
// Both passes are total and idempotent.
package sanitize

import "strings"

// Document applies both passes in place and returns the same map for
// chaining. The passes touch disjoint aspects (values vs keys), so their
// order does not matter.
func Document(doc map[string]any) map[string]any {
	ReplaceNulls(doc)
	FixKeys(doc)
	return doc
}

// ReplaceNulls rewrites every null scalar in the tree to the literal string
// "None". Non-null scalars and the tree structure are untouched.
func ReplaceNulls(v any) {
	switch v := v.(type) {
	case map[string]any:
		for k, e := range v {
			if e == nil {
				v[k] = "None"
			} else {
				ReplaceNulls(e)
			}
		}
	case []any:
		for i, e := range v {
			if e == nil {
				v[i] = "None"
			} else {
				ReplaceNulls(e)
			}
		}
	}
}

// FixKeys rewrites storage-incompatible map keys anywhere in the tree: a
// leading "$" becomes "dollar_", and every "." or "-" becomes "_". Values
// move to the rewritten key unchanged.
func FixKeys(v any) {
	switch v := v.(type) {
	case map[string]any:
		for k, e := range v {
			if fixed := fixKey(k); fixed != k {
				delete(v, k)
				v[fixed] = e
			}
			FixKeys(e)
		}
	case []any:
		for _, e := range v {
			FixKeys(e)
		}
	}
}

var keyReplacer = strings.NewReplacer(".", "_", "-", "_")

func fixKey(k string) string {
	if strings.HasPrefix(k, "$") {
		k = "dollar_" + k[1:]
	}
	return keyReplacer.Replace(k)
}
