// Package mapping proposes source-to-target field mappings and scores them.
package mapping

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Tokenize splits a column header into lowercase word tokens. It breaks on
// separators and on camelCase/acronym boundaries ("SerialNo" → serial, no).
func Tokenize(s string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(strings.TrimSpace(s))
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if i > 0 && len(cur) > 0 {
			prev := runes[i-1]
			lowerToUpper := unicode.IsUpper(r) && unicode.IsLower(prev)
			acronymEnd := unicode.IsUpper(r) && unicode.IsUpper(prev) &&
				i+1 < len(runes) && unicode.IsLower(runes[i+1])
			letterDigit := unicode.IsDigit(r) != unicode.IsDigit(prev)
			if lowerToUpper || acronymEnd || letterDigit {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return tokens
}

// NormalizeField turns a header into a canonical snake_case form with each
// token singularized, so "Serial Numbers" and "serialNumber" agree.
func NormalizeField(s string) string {
	tokens := Tokenize(s)
	for i, t := range tokens {
		// Short tokens are abbreviations ("s", "ids", "qty"); leave them alone.
		if len(t) > 3 {
			tokens[i] = inflection.Singular(t)
		}
	}
	return strings.Join(tokens, "_")
}

// aliases maps common inventory header spellings to canonical target names.
var aliases = map[string]string{
	"pn":            "part_number",
	"p_n":           "part_number",
	"part":          "part_number",
	"part_no":       "part_number",
	"part_num":      "part_number",
	"partnumber":    "part_number",
	"sku":           "part_number",
	"mpn":           "part_number",
	"item_no":       "part_number",
	"item_number":   "part_number",
	"sn":            "serial_number",
	"s_n":           "serial_number",
	"serial":        "serial_number",
	"serial_no":     "serial_number",
	"serial_num":    "serial_number",
	"serialnumber":  "serial_number",
	"qty":           "quantity",
	"quantity":      "quantity",
	"count":         "quantity",
	"qty_on_hand":   "quantity",
	"on_hand":       "quantity",
	"desc":          "description",
	"item_desc":     "description",
	"loc":           "location",
	"bin":           "location",
	"unit_cost":     "unit_price",
	"price":         "unit_price",
	"supplier":      "vendor",
	"manufacturer":  "vendor",
	"mfr":           "vendor",
	"purchase_date": "received_at",
	"received":      "received_at",
}

// canonical returns the alias target for a normalized name, or the name itself.
func canonical(normalized string) string {
	if a, ok := aliases[normalized]; ok {
		return a
	}
	return normalized
}

// NameSimilarity scores how likely two field names denote the same thing,
// from 0 (unrelated) to 1 (equivalent).
func NameSimilarity(a, b string) float64 {
	na, nb := NormalizeField(a), NormalizeField(b)
	if na == "" || nb == "" {
		return 0
	}
	ca, cb := canonical(na), canonical(nb)
	if ca == cb {
		return 1
	}

	flatA := strings.ReplaceAll(ca, "_", "")
	flatB := strings.ReplaceAll(cb, "_", "")
	if flatA == flatB {
		return 0.95
	}

	edit := levenshteinSimilarity(flatA, flatB)
	overlap := tokenOverlap(strings.Split(ca, "_"), strings.Split(cb, "_"))

	score := 0.6*edit + 0.4*overlap
	if overlap > score {
		score = overlap * 0.9
	}
	return score
}

// tokenOverlap is the Jaccard index of two token sets.
func tokenOverlap(a, b []string) float64 {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// levenshteinSimilarity is 1 − distance/maxLen.
func levenshteinSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for i := range prev {
		prev[i] = i
	}
	for j := 1; j <= len(b); j++ {
		curr[0] = j
		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[i] = min(prev[i]+1, curr[i-1]+1, prev[i-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}

// BestTarget returns the schema field name most similar to a source header and
// its similarity. An empty name means nothing scored above zero.
func BestTarget(sourceField string, targets []string) (string, float64) {
	best, bestScore := "", 0.0
	for _, t := range targets {
		if s := NameSimilarity(sourceField, t); s > bestScore {
			best, bestScore = t, s
		}
	}
	return best, bestScore
}
