package receipt

import (
	"context"
	"math"

	"github.com/shelfwatch/shelfwatch/internal/utils"
	"github.com/shelfwatch/shelfwatch/pkg/brands"
)

// DefaultCandidateAccept is the minimum similarity for a candidate that does
// not match the receipt price exactly.
const DefaultCandidateAccept = 0.3

// PriceBoundary widens a unit price into the whole-euro window the product
// search filters on.
func PriceBoundary(price float64) (from, to int) {
	return int(math.Floor(price)), int(math.Ceil(price))
}

// Matcher resolves sanitized receipt lines against a storefront's product
// search.
type Matcher struct {
	Searcher brands.Searcher
	Dict     *Dictionary

	// CandidateAccept overrides DefaultCandidateAccept.
	CandidateAccept float64
}

func NewMatcher(searcher brands.Searcher, dict *Dictionary) *Matcher {
	return &Matcher{Searcher: searcher, Dict: dict, CandidateAccept: DefaultCandidateAccept}
}

// MatchLine finds the catalog product behind one receipt line. Candidates
// whose price equals the unit price exactly compete on similarity alone and
// the best one wins; when no candidate hits the exact price, the best
// similar-enough candidate inside the price window is taken instead. A nil
// result means the line could not be matched confidently.
func (m *Matcher) MatchLine(ctx context.Context, item LineItem) (*brands.SearchCandidate, error) {
	query := Sanitize(item.Name, m.Dict)
	if query == "" {
		return nil, nil
	}

	from, to := PriceBoundary(item.Price)
	candidates, err := m.Searcher.SearchByName(ctx, query, from, to)
	if err != nil {
		return nil, err
	}

	cents := func(v float64) int64 { return int64(math.Round(v * 100)) }

	var best *brands.SearchCandidate
	bestScore := -1.0
	exact := false
	for i := range candidates {
		c := &candidates[i]
		score := Similarity(query, Sanitize(c.BrandName+" "+c.Title, m.Dict))

		if cents(c.Price) == cents(item.Price) {
			if !exact || score > bestScore {
				best, bestScore, exact = c, score, true
			}
			continue
		}
		if !exact && score >= m.CandidateAccept && score > bestScore {
			best, bestScore = c, score
		}
	}

	if best == nil {
		utils.Log.Debugf("receipt: no match for %q (%.2f)", query, item.Price)
	}
	return best, nil
}

// MatchItems runs MatchLine over a parsed receipt and shapes the hits into
// inventory items. Matching is best effort: unmatched lines are skipped, and
// so is a line whose product search failed.
func (m *Matcher) MatchItems(ctx context.Context, lines []LineItem) ([]Item, error) {
	items := []Item{}
	for _, line := range lines {
		candidate, err := m.MatchLine(ctx, line)
		if err != nil {
			utils.Log.Warnf("receipt: matching %q: %v", line.Name, err)
			continue
		}
		if candidate == nil {
			continue
		}
		items = append(items, Item{
			Name:     candidate.BrandName + " " + candidate.Title,
			Quantity: line.Quantity,
			Code:     candidate.Code,
			Type:     "article",
		})
	}
	return items, nil
}
