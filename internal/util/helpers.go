package util

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode/utf8"
)

// Fingerprint returns a short stable digest of s, used to spot re-uploads of
// identical content.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:12])
}

// TruncateRunes cuts s to at most n runes without splitting a UTF-8 sequence.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n])
}
