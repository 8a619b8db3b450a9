package titlematch

import (
	"strings"

	"github.com/xrash/smetrics"
)

// DefaultThreshold is the score the scrapers accept as "same title"
const DefaultThreshold = 0.65

const (
	scoreExact       = 1.0
	scoreContains    = 0.95
	scoreWordSeq     = 0.90
	jaroBoost        = 0.7
	jaroPrefixLength = 4
)

// Similarity scores candidate against canonical in [0,1]. Exact matches after
// normalization score 1, containment 0.95, a contiguous word run 0.90, and
// anything else falls back to Jaro-Winkler.
func Similarity(candidate, canonical string) float64 {
	a := NormalizeTitle(candidate)
	b := NormalizeTitle(canonical)

	if a == b {
		return scoreExact
	}
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(a, b) {
		return scoreContains
	}
	if containsWordRun(strings.Fields(a), strings.Fields(b)) {
		return scoreWordSeq
	}
	return smetrics.JaroWinkler(a, b, jaroBoost, jaroPrefixLength)
}

// IsMatch reports whether Similarity(candidate, canonical) reaches threshold
func IsMatch(candidate, canonical string, threshold float64) bool {
	return Similarity(candidate, canonical) >= threshold
}

// BestMatch returns the index of the candidate scoring highest against
// canonical, or -1 when none reaches threshold. Earlier candidates win ties.
func BestMatch(candidates []string, canonical string, threshold float64) (int, float64) {
	best, bestScore := -1, 0.0
	for i, c := range candidates {
		score := Similarity(c, canonical)
		if score >= threshold && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

func containsWordRun(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, w := range needle {
			if haystack[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}
