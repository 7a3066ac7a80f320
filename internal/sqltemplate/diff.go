package sqltemplate

import (
	"regexp"
	"strings"
)

// Correction types recorded in the diff summary. Telemetry only: nothing in
// the learning flow branches on these values.
const (
	CorrectionFormatting  = "formatting"
	CorrectionWhereAdd    = "where_addition"
	CorrectionWhereChange = "where_correction"
	CorrectionSelect      = "select_fields"
	CorrectionAggregation = "aggregation"
	CorrectionOther       = "other"
)

// structuralKeywords are checked for presence changes between the generated
// and corrected statements.
var structuralKeywords = []string{"JOIN", "GROUP BY", "ORDER BY", "HAVING", "LIMIT"}

var aggregateFunctions = []string{"COUNT", "SUM", "AVG", "MAX", "MIN"}

var (
	whereClausePattern = regexp.MustCompile(`(?is)\bWHERE\s+(.+?)(?:\s+(?:GROUP BY|ORDER BY|LIMIT)\b|$)`)
	selectListPattern  = regexp.MustCompile(`(?is)\bSELECT\s+(.+?)\s+FROM\b`)
	conditionSplitter  = regexp.MustCompile(`(?i)\s+AND\s+|\s+OR\s+`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
	maskedHexLiteral   = regexp.MustCompile(`'[A-F0-9]{32}'`)
)

// Summary describes how a corrected statement differs from the generated one.
type Summary struct {
	SameStructure     bool     `json:"same_structure"`
	CorrectionType    string   `json:"correction_type"`
	StructuralChanges []string `json:"structural_changes,omitempty"`
	ConditionsAdded   []string `json:"conditions_added,omitempty"`
	ConditionsRemoved []string `json:"conditions_removed,omitempty"`
	FieldsChanged     []string `json:"fields_changed,omitempty"`
	Confidence        float64  `json:"confidence"`
}

// Diff compares a generated statement against its correction. Comparison runs
// over normalized text (upper-cased, literals masked) so that two statements
// differing only in literal values or formatting count as the same structure.
func Diff(generatedSQL, correctedSQL string) Summary {
	generatedNorm := normalizeForDiff(generatedSQL)
	correctedNorm := normalizeForDiff(correctedSQL)

	summary := Summary{
		SameStructure: generatedNorm == correctedNorm,
		Confidence:    correctionConfidence(generatedNorm, correctedNorm),
	}

	for _, keyword := range structuralKeywords {
		if strings.Contains(generatedNorm, keyword) != strings.Contains(correctedNorm, keyword) {
			summary.StructuralChanges = append(summary.StructuralChanges, keyword)
		}
	}

	generatedConds := whereConditions(generatedNorm)
	correctedConds := whereConditions(correctedNorm)
	summary.ConditionsAdded = difference(correctedConds, generatedConds)
	summary.ConditionsRemoved = difference(generatedConds, correctedConds)

	generatedFields := selectFields(generatedNorm)
	correctedFields := selectFields(correctedNorm)
	if !equalStrings(generatedFields, correctedFields) {
		summary.FieldsChanged = difference(correctedFields, generatedFields)
	}

	summary.CorrectionType = classify(summary, generatedNorm, correctedNorm)
	return summary
}

func classify(summary Summary, generatedNorm, correctedNorm string) string {
	if summary.SameStructure {
		return CorrectionFormatting
	}
	if len(summary.StructuralChanges) > 0 {
		keyword := strings.ToLower(summary.StructuralChanges[0])
		return "structural_" + strings.ReplaceAll(keyword, " ", "_")
	}
	if len(summary.ConditionsAdded) > 0 && len(summary.ConditionsRemoved) == 0 {
		return CorrectionWhereAdd
	}
	if len(summary.ConditionsAdded) > 0 || len(summary.ConditionsRemoved) > 0 {
		return CorrectionWhereChange
	}
	if len(summary.FieldsChanged) > 0 {
		return CorrectionSelect
	}
	for _, fn := range aggregateFunctions {
		if strings.Contains(generatedNorm, fn+"(") != strings.Contains(correctedNorm, fn+"(") {
			return CorrectionAggregation
		}
	}
	return CorrectionOther
}

func normalizeForDiff(sql string) string {
	normalized := strings.ToUpper(strings.TrimSpace(sql))
	normalized = whitespaceRun.ReplaceAllString(normalized, " ")
	normalized = timestampLiteral.ReplaceAllString(normalized, "{TIMESTAMP}")
	normalized = dateLiteral.ReplaceAllString(normalized, "{DATE}")
	normalized = maskedHexLiteral.ReplaceAllString(normalized, "{ID}")
	normalized = integerLiteral.ReplaceAllString(normalized, "{NUMBER}")
	return normalized
}

func whereConditions(normalizedSQL string) []string {
	match := whereClausePattern.FindStringSubmatch(normalizedSQL)
	if match == nil {
		return nil
	}
	parts := conditionSplitter.Split(match[1], -1)
	conditions := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			conditions = append(conditions, trimmed)
		}
	}
	return conditions
}

func selectFields(normalizedSQL string) []string {
	match := selectListPattern.FindStringSubmatch(normalizedSQL)
	if match == nil {
		return nil
	}
	parts := strings.Split(match[1], ",")
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			fields = append(fields, trimmed)
		}
	}
	return fields
}

// correctionConfidence scores how substantial a correction is: the further
// the corrected statement drifts from the generated one, the more confident
// we are that the correction carried signal. Token-level longest common
// subsequence over the normalized statements.
func correctionConfidence(generatedNorm, correctedNorm string) float64 {
	a := strings.Fields(generatedNorm)
	b := strings.Fields(correctedNorm)
	if len(a) == 0 && len(b) == 0 {
		return 0.1
	}
	similarity := 2 * float64(lcsLength(a, b)) / float64(len(a)+len(b))
	confidence := 1 - similarity
	if confidence < 0.1 {
		return 0.1
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func lcsLength(a, b []string) int {
	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				current[j] = previous[j-1] + 1
			} else if previous[j] >= current[j-1] {
				current[j] = previous[j]
			} else {
				current[j] = current[j-1]
			}
		}
		previous, current = current, previous
	}
	return previous[len(b)]
}

func difference(a, b []string) []string {
	present := make(map[string]struct{}, len(b))
	for _, item := range b {
		present[item] = struct{}{}
	}
	var missing []string
	for _, item := range a {
		if _, ok := present[item]; !ok {
			missing = append(missing, item)
		}
	}
	return missing
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
