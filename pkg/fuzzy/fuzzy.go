package fuzzy

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopWords are ignored when comparing titles token by token
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "for": true,
	"to": true, "at": true, "in": true, "on": true, "with": true, "&": true,
}

// LevenshteinDistance calculates the edit distance between two strings
// This measures how many single-character edits (insertions, deletions, or substitutions)
// are required to change one string into another
func LevenshteinDistance(s1, s2 string) int {
	r1 := []rune(Normalize(s1))
	r2 := []rune(Normalize(s2))
	m := len(r1)
	n := len(r2)

	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	// Two rolling rows are enough
	prev := make([]int, n+1)
	curr := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}

// Similarity scores how alike two titles are, from 0 (unrelated) to 1 (same).
// Comparison is case and accent insensitive. A title contained word-wise in the other
// scores 1, so "Book Club" and "Laurel Parent Book Club" are treated as the same event.
func Similarity(a, b string) float64 {
	na := Normalize(a)
	nb := Normalize(b)
	if na == "" || nb == "" {
		if na == nb {
			return 1
		}
		return 0
	}
	if na == nb {
		return 1
	}
	if containsPhrase(na, nb) || containsPhrase(nb, na) {
		return 1
	}

	maxLen := len([]rune(na))
	if l := len([]rune(nb)); l > maxLen {
		maxLen = l
	}
	ratio := 1 - float64(LevenshteinDistance(na, nb))/float64(maxLen)

	if overlap := tokenOverlap(na, nb); overlap > ratio {
		return overlap
	}
	return ratio
}

// FuzzyMatch reports whether two titles are at least threshold similar
func FuzzyMatch(a, b string, threshold float64) bool {
	return Similarity(a, b) >= threshold
}

// Normalize lowercases, strips accents and punctuation, and collapses whitespace
func Normalize(s string) string {
	s = removeAccents(strings.ToLower(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Helper functions

// tokenOverlap is the share of significant words of the shorter title found in the other
func tokenOverlap(na, nb string) float64 {
	ta := significantTokens(na)
	tb := significantTokens(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(ta) > len(tb) {
		ta, tb = tb, ta
	}
	set := make(map[string]bool, len(tb))
	for _, t := range tb {
		set[t] = true
	}
	shared := 0
	for _, t := range ta {
		if set[t] {
			shared++
		}
	}
	return float64(shared) / float64(len(ta))
}

func significantTokens(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		if stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// containsPhrase checks if text contains query on word boundaries
func containsPhrase(text, query string) bool {
	return strings.Contains(" "+text+" ", " "+query+" ")
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}

// removeAccents removes diacritical marks from a string
func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}
