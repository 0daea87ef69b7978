package receipt

import "strings"

// tokenAccept is the minimum per-token substring overlap for two tokens to
// count as a match.
const tokenAccept = 0.5

// Similarity scores how well two product names describe the same product.
// Each token of a is greedily paired with its best unmatched token of b; a
// pair counts when their longest common substring covers more than half of
// the shorter token. The summed pair scores are normalized by the average
// token count, so 1.0 means identical token sets and extra tokens on either
// side dilute the score symmetrically.
func Similarity(a, b string) float64 {
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	matched := make(map[int]bool, len(tokensB))
	var weight float64
	for _, ta := range tokensA {
		bestScore := 0.0
		bestIndex := -1
		runesA := []rune(ta)
		for i, tb := range tokensB {
			if matched[i] {
				continue
			}
			runesB := []rune(tb)
			shorter := len(runesA)
			if len(runesB) < shorter {
				shorter = len(runesB)
			}
			if shorter == 0 {
				continue
			}
			score := float64(longestCommonSubstring(runesA, runesB)) / float64(shorter)
			if score > bestScore {
				bestScore = score
				bestIndex = i
			}
		}
		if bestScore > tokenAccept && bestIndex != -1 {
			weight += bestScore
			matched[bestIndex] = true
		}
	}

	return weight / (float64(len(tokensA)+len(tokensB)) / 2)
}

func longestCommonSubstring(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	longest := 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > longest {
					longest = curr[j]
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return longest
}
