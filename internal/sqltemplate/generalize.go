// Package sqltemplate turns concrete SQL statements into reusable templates
// and analyzes the difference between a generated statement and its user
// correction. It treats SQL as text; there is no parser behind it.
package sqltemplate

import (
	"fmt"
	"regexp"
)

var (
	timestampLiteral = regexp.MustCompile(`'\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}'`)
	dateLiteral      = regexp.MustCompile(`'\d{4}-\d{2}-\d{2}'`)
	stringLiteral    = regexp.MustCompile(`'[^']*'`)
	integerLiteral   = regexp.MustCompile(`\b\d+\b`)
)

// Generalize replaces literal values with typed placeholders, producing a
// template reusable across questions that differ only in their literals.
// The pass order is fixed: timestamps before dates before arbitrary strings,
// so an earlier replacement is never re-matched by a later, looser pattern.
// The transform is lossy by design.
func Generalize(sql string) string {
	template := timestampLiteral.ReplaceAllString(sql, "{TIMESTAMP}")
	template = dateLiteral.ReplaceAllString(template, "{DATE}")
	template = stringLiteral.ReplaceAllString(template, "{VALUE}")
	template = integerLiteral.ReplaceAllString(template, "{NUMBER}")
	return template
}

// ExtractLiterals pulls the literal values out of a concrete statement, keyed
// by the placeholder Generalize would put in their place. Together with
// Generalize it forms an approximate inverse: filling the template with the
// extracted literals reproduces a structurally equivalent statement as long
// as each literal class occurs once.
func ExtractLiterals(sql string) map[string]string {
	values := map[string]string{}
	remaining := sql

	if match := timestampLiteral.FindString(remaining); match != "" {
		values["{TIMESTAMP}"] = match
		remaining = timestampLiteral.ReplaceAllString(remaining, " ")
	}
	if match := dateLiteral.FindString(remaining); match != "" {
		values["{DATE}"] = match
		remaining = dateLiteral.ReplaceAllString(remaining, " ")
	}
	if match := stringLiteral.FindString(remaining); match != "" {
		values["{VALUE}"] = match
		remaining = stringLiteral.ReplaceAllString(remaining, " ")
	}
	numbers := integerLiteral.FindAllString(remaining, -1)
	if len(numbers) > 0 {
		values["{NUMBER}"] = numbers[0]
		for i, number := range numbers {
			values[fmt.Sprintf("{NUMBER%d}", i+1)] = number
		}
	}
	return values
}
