package graph

import (
	"sort"
	"strings"
	"unicode"
)

// UncategorizedTopic is the topic assigned when extraction finds no usable
// keywords.
const UncategorizedTopic = "uncategorized"

// topicKeywords is how many keywords make up a topic label.
const topicKeywords = 3

// stopwords are common words ignored by topic extraction.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "if": {},
	"then": {}, "else": {}, "when": {}, "at": {}, "by": {}, "for": {},
	"with": {}, "about": {}, "against": {}, "between": {}, "into": {},
	"through": {}, "during": {}, "before": {}, "after": {}, "above": {},
	"below": {}, "to": {}, "from": {}, "up": {}, "down": {}, "in": {},
	"out": {}, "on": {}, "off": {}, "over": {}, "under": {}, "again": {},
	"further": {}, "once": {}, "here": {}, "there": {}, "all": {},
	"any": {}, "both": {}, "each": {}, "few": {}, "more": {}, "most": {},
	"other": {}, "some": {}, "such": {}, "no": {}, "nor": {}, "not": {},
	"only": {}, "own": {}, "same": {}, "so": {}, "than": {}, "too": {},
	"very": {}, "can": {}, "will": {}, "just": {}, "should": {}, "now": {},
	"i": {}, "me": {}, "my": {}, "we": {}, "our": {}, "you": {},
	"your": {}, "he": {}, "him": {}, "his": {}, "she": {}, "her": {},
	"it": {}, "its": {}, "they": {}, "them": {}, "their": {}, "what": {},
	"which": {}, "who": {}, "whom": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "am": {}, "is": {}, "are": {}, "was": {},
	"were": {}, "be": {}, "been": {}, "being": {}, "have": {}, "has": {},
	"had": {}, "having": {}, "do": {}, "does": {}, "did": {}, "doing": {},
	"would": {}, "could": {}, "like": {}, "how": {}, "why": {},
	"please": {}, "also": {}, "of": {}, "as": {}, "ok": {}, "okay": {},
	"yes": {}, "yeah": {}, "thanks": {}, "thank": {}, "hi": {},
	"hello": {}, "hey": {},
}

// ExtractTopic derives a short topic label from a memory's text by picking
// the most frequent non-stopword terms. It returns UncategorizedTopic when
// the text yields no keywords.
func ExtractTopic(text string) string {
	counts := make(map[string]int)
	var order []string

	for _, word := range splitWords(text) {
		word = strings.ToLower(word)
		if len(word) < 3 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}

	if len(order) == 0 {
		return UncategorizedTopic
	}

	// Stable sort keeps first-occurrence order among equal counts.
	sort.SliceStable(order, func(a, b int) bool {
		return counts[order[a]] > counts[order[b]]
	})

	if len(order) > topicKeywords {
		order = order[:topicKeywords]
	}
	return strings.Join(order, ", ")
}

// splitWords splits text on anything that is not a letter or digit.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
