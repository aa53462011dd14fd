package scoring

import (
	"math"
	"strings"
)

const (
	bleuMaxN    = 4
	bleuEpsilon = 0.1
)

// BLEU computes sentence-level BLEU-4 of candidate against a single
// reference with uniform weights. N-gram orders with no matches get
// epsilon added to the numerator so short answers do not collapse to 0.
func BLEU(reference, candidate []string) float64 {
	if len(reference) == 0 || len(candidate) == 0 {
		return 0
	}

	var logSum float64
	for n := 1; n <= bleuMaxN; n++ {
		refCounts := ngramCounts(reference, n)
		candCounts := ngramCounts(candidate, n)

		var matched int
		for g, c := range candCounts {
			matched += min(c, refCounts[g])
		}
		denom := max(1, len(candidate)-n+1)
		p := float64(matched) / float64(denom)
		if matched == 0 {
			p = bleuEpsilon / float64(denom)
		}
		logSum += math.Log(p) / bleuMaxN
	}

	return clamp01(brevityPenalty(len(reference), len(candidate)) * math.Exp(logSum))
}

func brevityPenalty(refLen, candLen int) float64 {
	if candLen > refLen {
		return 1
	}
	return math.Exp(1 - float64(refLen)/float64(candLen))
}

func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], "\x00")]++
	}
	return counts
}
