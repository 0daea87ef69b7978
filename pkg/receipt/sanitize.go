package receipt

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Receipt printers squeeze names into one column: casing marks lost word
// boundaries ("BaleaShampoo"), digits glue to words, and units hang on.
var (
	lowerUpperRe  = regexp.MustCompile(`([a-zäöüß])([A-ZÄÖÜ])`)
	letterDigitRe = regexp.MustCompile(`(?i)([a-zäöüß])(\d)`)
	digitLetterRe = regexp.MustCompile(`(?i)(\d)([a-zäöüß])`)
	charsetRe     = regexp.MustCompile(`(?i)[^a-z0-9äöüß ]+`)
	unitRe        = regexp.MustCompile(`(?i)\b\d+(g|kg|ml|l)\b`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// Sanitize normalizes a raw receipt product name into lowercase search
// tokens, dropping noise tokens and correcting the rest against the
// dictionary.
func Sanitize(raw string, dict *Dictionary) string {
	s := lowerUpperRe.ReplaceAllString(raw, "$1 $2")
	s = letterDigitRe.ReplaceAllString(s, "$1 $2")
	// Units must go before the digit-letter split tears "250ml" apart.
	s = unitRe.ReplaceAllString(s, "")
	s = digitLetterRe.ReplaceAllString(s, "$1 $2")
	s = charsetRe.ReplaceAllString(s, " ")
	s = strings.ToLower(strings.TrimSpace(spaceRe.ReplaceAllString(s, " ")))

	var out []string
	for _, token := range strings.Fields(s) {
		// Short fragments are printer noise unless the dictionary knows
		// them ("öl").
		if utf8.RuneCountInString(token) <= 2 && !dict.Contains(token) {
			continue
		}
		out = append(out, dict.Correct(token))
	}
	return strings.Join(out, " ")
}
