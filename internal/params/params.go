// Package params extracts typed parameter values from raw question text and
// substitutes them into SQL templates. Extraction never fails: a category
// that does not appear in the question simply yields no key.
package params

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Placeholder keys produced by Extract. Values are SQL-literal-ready:
// dates and identifiers come back single-quoted, numbers bare.
const (
	KeyDate      = "{DATE}"
	KeyNumber    = "{NUMBER}"
	KeyID        = "{ID}"
	KeyCreatorID = "{CREATOR_ID}"
	KeyVideoID   = "{VIDEO_ID}"
)

// monthNames maps localized (Russian genitive) month names to month numbers.
var monthNames = map[string]int{
	"января": 1, "февраля": 2, "марта": 3, "апреля": 4,
	"мая": 5, "июня": 6, "июля": 7, "августа": 8,
	"сентября": 9, "октября": 10, "ноября": 11, "декабря": 12,
}

var (
	spokenDatePattern = regexp.MustCompile(`(\d{1,2})\s+(\p{L}+)\s+(\d{4})`)
	isoDatePattern    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	integerPattern    = regexp.MustCompile(`\b\d+\b`)
	hex32Pattern      = regexp.MustCompile(`\b[a-f0-9]{32}\b`)
	uuidPattern       = regexp.MustCompile(`[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`)
	creatorIDPattern  = regexp.MustCompile(`креатор\p{L}*\s+([a-f0-9]{32})`)
	videoIDPattern    = regexp.MustCompile(`видео\s+([a-f0-9-]{36})`)
	placeholderToken  = regexp.MustCompile(`\{[A-Z][A-Z0-9_]*\}`)
)

// Extract pulls every recognizable parameter out of the question. Rules are
// evaluated independently; first match wins within each category.
func Extract(question string) map[string]string {
	found := map[string]string{}
	lower := strings.ToLower(question)

	if date, ok := extractDate(lower); ok {
		found[KeyDate] = date
	}

	numbers := integerPattern.FindAllString(lower, -1)
	if len(numbers) > 0 {
		found[KeyNumber] = numbers[0]
		for i, number := range numbers {
			found[fmt.Sprintf("{NUMBER%d}", i+1)] = number
		}
	}

	if match := hex32Pattern.FindString(lower); match != "" {
		found[KeyID] = quote(match)
	}
	if match := creatorIDPattern.FindStringSubmatch(lower); match != nil {
		found[KeyCreatorID] = quote(match[1])
	}
	if match := videoIDPattern.FindStringSubmatch(lower); match != nil {
		if uuidPattern.MatchString(match[1]) {
			found[KeyVideoID] = quote(match[1])
		}
	}

	return found
}

func extractDate(lower string) (string, bool) {
	if match := spokenDatePattern.FindStringSubmatch(lower); match != nil {
		if month, ok := monthNames[match[2]]; ok {
			day, err := strconv.Atoi(match[1])
			if err == nil && day >= 1 && day <= 31 {
				return quote(fmt.Sprintf("%s-%02d-%02d", match[3], month, day)), true
			}
		}
	}
	if match := isoDatePattern.FindString(lower); match != "" {
		return quote(match), true
	}
	return "", false
}

// Fill substitutes extracted values into a template. Placeholders without a
// matching value are left untouched; the caller decides whether a partially
// filled statement is acceptable.
func Fill(template string, values map[string]string) string {
	sql := template
	for placeholder, value := range values {
		sql = strings.ReplaceAll(sql, placeholder, value)
	}
	return sql
}

// FillFromQuestion is the common composition: extract from the question, then
// substitute into the template.
func FillFromQuestion(template, question string) string {
	return Fill(template, Extract(question))
}

// HasPlaceholders reports whether any typed placeholder remains unresolved.
func HasPlaceholders(sql string) bool {
	return placeholderToken.MatchString(sql)
}

func quote(value string) string {
	return "'" + value + "'"
}
