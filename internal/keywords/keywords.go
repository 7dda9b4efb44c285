// Package keywords implements frequency-based keyword extraction over
// free-form reading notes and highlights.
package keywords

import (
	"sort"
	"strings"
	"unicode"
)

// Function words filtered out before counting, English and Korean.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "must": {}, "shall": {}, "can": {},
	"need": {}, "dare": {}, "ought": {}, "used": {}, "to": {}, "of": {},
	"in": {}, "for": {}, "on": {}, "with": {}, "at": {}, "by": {}, "from": {},
	"as": {}, "into": {}, "through": {}, "during": {}, "before": {},
	"after": {}, "above": {}, "below": {}, "between": {}, "under": {},
	"and": {}, "but": {}, "or": {}, "nor": {}, "so": {}, "yet": {},
	"both": {}, "either": {}, "neither": {}, "not": {}, "only": {},
	"own": {}, "same": {}, "than": {}, "too": {}, "very": {}, "just": {},
	"이": {}, "그": {}, "저": {}, "것": {}, "수": {}, "등": {}, "더": {},
	"때": {}, "년": {}, "월": {}, "일": {}, "위": {}, "중": {}, "내": {},
	"를": {}, "을": {}, "에": {}, "의": {}, "가": {}, "와": {}, "과": {},
	"도": {}, "로": {}, "으로": {}, "만": {}, "이다": {}, "있다": {},
	"하다": {}, "되다": {}, "않다": {},
}

// Extract returns the topN most frequent tokens in text, lower-cased,
// punctuation-stripped, with stop words and tokens of length <= 2 removed.
// Ties keep first-encountered order, so results are deterministic.
func Extract(text string, topN int) []string {
	if topN <= 0 || strings.TrimSpace(text) == "" {
		return nil
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return r
		default:
			return -1
		}
	}, text)

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, word := range strings.Fields(cleaned) {
		if tokenLen(word) <= 2 {
			continue
		}
		if _, skip := stopWords[word]; skip {
			continue
		}
		if _, seen := counts[word]; !seen {
			order = append(order, word)
		}
		counts[word]++
	}
	if len(order) == 0 {
		return nil
	}

	rank := make(map[string]int, len(order))
	for i, word := range order {
		rank[word] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return rank[order[i]] < rank[order[j]]
	})

	if len(order) > topN {
		order = order[:topN]
	}
	return order
}

// tokenLen counts runes, not bytes, so Korean tokens are measured in
// characters.
func tokenLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
