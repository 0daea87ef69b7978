package receipt

import (
	_ "embed"
	"encoding/json"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

//go:embed dictionary.json
var dictionaryJSON []byte

// DefaultCorrectAccept is the normalized edit distance up to which a
// dictionary word replaces a receipt token.
const DefaultCorrectAccept = 0.3

// Dictionary holds the known product and brand words that receipt tokens
// are corrected against.
type Dictionary struct {
	// Accept overrides DefaultCorrectAccept.
	Accept float64

	words []string
	set   map[string]struct{}
}

// LoadDictionary builds the dictionary from the embedded word list.
func LoadDictionary() (*Dictionary, error) {
	var words []string
	if err := json.Unmarshal(dictionaryJSON, &words); err != nil {
		return nil, err
	}
	return NewDictionary(words), nil
}

func NewDictionary(words []string) *Dictionary {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return &Dictionary{Accept: DefaultCorrectAccept, words: words, set: set}
}

// Contains reports whether the word is known verbatim.
func (d *Dictionary) Contains(word string) bool {
	_, ok := d.set[word]
	return ok
}

// Correct replaces token with its closest dictionary word when the
// normalized edit distance is small enough, otherwise returns token as-is.
func (d *Dictionary) Correct(token string) string {
	if d.Contains(token) {
		return token
	}

	best := ""
	bestDist := 1.0
	tokenLen := utf8.RuneCountInString(token)
	for _, word := range d.words {
		wordLen := utf8.RuneCountInString(word)
		longer := tokenLen
		if wordLen > longer {
			longer = wordLen
		}
		if longer == 0 {
			continue
		}
		dist := float64(levenshtein.ComputeDistance(token, word)) / float64(longer)
		if dist < bestDist {
			bestDist = dist
			best = word
		}
	}

	if best != "" && bestDist < d.Accept {
		return best
	}
	return token
}
