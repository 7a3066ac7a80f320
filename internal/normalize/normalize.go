// Package normalize reduces free-form questions to order-independent feature
// sets so that semantically equivalent phrasings collapse to the same
// signature. Volatile substrings (dates, numbers, identifiers) are masked
// before tokenization; matching and learning never see raw literals.
package normalize

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Sentinel tokens injected for identifier-shaped substrings. They survive
// normalization in upper case so they can act as trigger words themselves.
const (
	SentinelCreatorID = "IDCREATOR"
	SentinelVideoID   = "IDVIDEO"
)

// FeatureSet is the normalized word set of one question. Two questions with
// equal feature sets carry the same intent.
type FeatureSet map[string]struct{}

func (f FeatureSet) Contains(word string) bool {
	_, ok := f[word]
	return ok
}

// Words returns the members in sorted order, for stable hashing and logging.
func (f FeatureSet) Words() []string {
	words := make([]string, 0, len(f))
	for word := range f {
		words = append(words, word)
	}
	sort.Strings(words)
	return words
}

// IntersectionSize counts words present in both sets.
func (f FeatureSet) IntersectionSize(other FeatureSet) int {
	small, large := f, other
	if len(large) < len(small) {
		small, large = large, small
	}
	count := 0
	for word := range small {
		if _, ok := large[word]; ok {
			count++
		}
	}
	return count
}

func FromWords(words []string) FeatureSet {
	set := make(FeatureSet, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

var (
	hex32Pattern      = regexp.MustCompile(`[a-f0-9]{32}`)
	uuidPattern       = regexp.MustCompile(`[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`)
	isoDatePattern    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	spokenDatePattern = regexp.MustCompile(`\d{1,2}\s+\p{L}+\s+\d{4}`)
	smallIntPattern   = regexp.MustCompile(`\b\d{1,4}\b`)
)

var punctuationReplacer = strings.NewReplacer(
	"?", " ", ".", " ", ",", " ", "!", " ", ";", " ", ":", " ",
	"(", " ", ")", " ", "[", " ", "]", " ", "{", " ", "}", " ",
	`"`, " ", "'", " ", "«", " ", "»", " ",
)

// stopWords is a small closed set; mostly Russian function words, matching
// the question corpus the engine was built for.
var stopWords = map[string]struct{}{
	"и": {}, "в": {}, "с": {}, "по": {}, "за": {}, "у": {}, "о": {},
	"от": {}, "есть": {}, "всего": {}, "x": {}, "id": {}, "для": {}, "на": {},
}

// Question produces the FeatureSet for a raw question. The result is fully
// deterministic: no randomness, no external state. A question made only of
// stop-words, literals and punctuation normalizes to the empty set.
func Question(question string) FeatureSet {
	text := strings.ToLower(question)
	text = punctuationReplacer.Replace(text)

	// Identifier shapes first: a 32-hex id must be masked before the date
	// and number passes can chew on its digits.
	text = hex32Pattern.ReplaceAllString(text, " "+SentinelCreatorID+" ")
	text = uuidPattern.ReplaceAllString(text, " "+SentinelVideoID+" ")

	text = isoDatePattern.ReplaceAllString(text, " ")
	text = spokenDatePattern.ReplaceAllString(text, " ")
	text = smallIntPattern.ReplaceAllString(text, " ")

	set := FeatureSet{}
	for _, word := range strings.Fields(text) {
		if _, ok := stopWords[word]; ok {
			continue
		}
		if utf8.RuneCountInString(word) < 2 {
			continue
		}
		set[word] = struct{}{}
	}
	return set
}
