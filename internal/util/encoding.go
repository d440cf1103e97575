package util

import "golang.org/x/text/unicode/norm"

// Normalize canonicalizes externally supplied identifiers (user ids, crew
// ids) to NFKC so visually identical strings key the same directory records.
func Normalize(s string) string {
	return norm.NFKC.String(s)
}
