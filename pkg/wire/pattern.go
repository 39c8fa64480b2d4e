package wire

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPattern is returned for malformed subscription patterns.
var ErrInvalidPattern = errors.New("invalid routing pattern")

// Pattern wildcards. A star matches exactly one word, a hash matches zero or
// more words.
const (
	WildcardWord  = "*"
	WildcardWords = "#"
)

// ValidatePattern checks that every word of a pattern is non-empty and that
// wildcards stand alone as words.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	for _, w := range strings.Split(pattern, ".") {
		if w == "" {
			return fmt.Errorf("%w: %q has an empty word", ErrInvalidPattern, pattern)
		}
		if w != WildcardWord && w != WildcardWords && strings.ContainsAny(w, "*#") {
			return fmt.Errorf("%w: %q mixes wildcards and text", ErrInvalidPattern, pattern)
		}
	}
	return nil
}

// MatchRoute reports whether a routing key matches a subscription pattern.
func MatchRoute(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case WildcardWords:
			rest := pattern[1:]
			if len(rest) == 0 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if matchWords(rest, key[i:]) {
					return true
				}
			}
			return false
		case WildcardWord:
			if len(key) == 0 {
				return false
			}
		default:
			if len(key) == 0 || key[0] != pattern[0] {
				return false
			}
		}
		pattern, key = pattern[1:], key[1:]
	}
	return len(key) == 0
}
