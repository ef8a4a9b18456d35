// Package fuzzy implements name normalization and similarity scoring for
// duplicate detection.
package fuzzy

import (
	"strings"
	"unicode"
)

// Normalize lowercases s, strips everything but letters and spaces, and
// collapses runs of whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Levenshtein computes the edit distance between a and b over runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity returns 1 - distance/maxlen over the normalized forms, in
// [0, 1]. Two empty names are not similar; that would make every blank
// record a duplicate of every other.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" && nb == "" {
		return 0
	}
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(Levenshtein(na, nb))/float64(longest)
}

// LastDigits returns the trailing n digits of s, or all of them when fewer
// than n exist.
func LastDigits(s string, n int) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
