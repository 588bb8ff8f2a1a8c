package fuzzy

import "testing"

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"Book Fair", "book fair", 0},
		{"Café", "cafe", 0},
	}

	for _, tt := range tests {
		if got := LevenshteinDistance(tt.a, tt.b); got != tt.expected {
			t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  PTA   Meeting!! ":      "pta meeting",
		"Fête de l'école":         "fete de l ecole",
		"Picture Day - Grade 3/4": "picture day grade 3 4",
		"":                        "",
	}

	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		atLeast float64
		below   float64
	}{
		{name: "identical", a: "PTA meeting", b: "PTA meeting", atLeast: 1},
		{name: "case only", a: "pta MEETING", b: "PTA meeting", atLeast: 1},
		{name: "contained title", a: "Book Club", b: "Laurel Parent Book Club", atLeast: 1},
		{name: "typo", a: "Picture Day", b: "Pictre Day", atLeast: 0.85},
		{name: "shared words", a: "Spring Field Trip", b: "Field Trip to the Zoo", atLeast: 0.6},
		{name: "unrelated", a: "Spirit Day", b: "Parent Teacher Conferences", below: 0.4},
		{name: "partial word is not containment", a: "Art", b: "Smart Start", below: 1},
		{name: "empty", a: "", b: "Book Fair", below: 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if tt.atLeast > 0 && got < tt.atLeast {
				t.Errorf("Similarity(%q, %q) = %.2f, want >= %.2f", tt.a, tt.b, got, tt.atLeast)
			}
			if tt.below > 0 && got >= tt.below {
				t.Errorf("Similarity(%q, %q) = %.2f, want < %.2f", tt.a, tt.b, got, tt.below)
			}
			if rev := Similarity(tt.b, tt.a); rev != got {
				t.Errorf("Similarity is not symmetric: %.2f vs %.2f", got, rev)
			}
		})
	}
}

func TestFuzzyMatchThresholdBoundary(t *testing.T) {
	score := Similarity("Picture Day", "Pictre Day")
	if !FuzzyMatch("Picture Day", "Pictre Day", score) {
		t.Error("FuzzyMatch should accept a score equal to the threshold")
	}
	if FuzzyMatch("Picture Day", "Pictre Day", score+0.01) {
		t.Error("FuzzyMatch should reject a score just below the threshold")
	}
}
