package value

import "unicode/utf8"

// MaxStringLen is the maximum number of code points a String may hold
// (spec.md §3: "size-bounded (default cap ≈ 16 Mi code units)"). A package
// variable rather than a constant so an embedding host can override the cap
// at startup (internal/maincmd.Config) without recompiling.
var MaxStringLen = 16 * 1024 * 1024

// String is MiniScript's immutable text type.
type String string

func (String) Kind() Kind       { return KindString }
func (s String) Truth() bool    { return len(s) > 0 }
func (s String) String() string { return string(s) }

// Len returns the number of Unicode code points in s (not bytes).
func (s String) Len() int {
	return utf8.RuneCountInString(string(s))
}

// Runes returns the code points of s as a slice, useful for indexing and
// slicing since MiniScript indexes strings by code point, not byte offset.
func (s String) Runes() []rune {
	return []rune(s)
}

// CheckLen returns a LimitExceededError if n exceeds MaxStringLen.
func CheckLen(n int) error {
	if n > MaxStringLen {
		return NewError(LimitExceededError, "string exceeds maximum length of %d", MaxStringLen)
	}
	return nil
}
