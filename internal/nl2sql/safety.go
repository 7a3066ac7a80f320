package nl2sql

import (
	"fmt"
	"strings"
)

var forbiddenStatements = []string{
	"DROP ", "DELETE ", "UPDATE ", "INSERT ",
	"ALTER ", "TRUNCATE ", "CREATE ", "GRANT ",
	"REVOKE ", "EXECUTE ", "DECLARE ", "CURSOR ",
	"BEGIN ", "COMMIT ", "ROLLBACK ",
}

// ValidateReadOnly rejects anything that is not a plain read. The filter is
// deliberately blunt: a false positive costs one rejected translation, a
// false negative mutates the database.
func ValidateReadOnly(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return fmt.Errorf("empty SQL statement")
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("statement must start with SELECT or WITH")
	}
	for _, keyword := range forbiddenStatements {
		if strings.Contains(upper, keyword) {
			return fmt.Errorf("forbidden keyword %q", strings.TrimSpace(keyword))
		}
	}
	return nil
}

// ScoreConfidence rates a generated statement on cheap structural signals.
// It never reaches 1.0: a generated query always needs validation.
func ScoreConfidence(sql string) float64 {
	confidence := 0.5
	upper := strings.ToUpper(sql)

	if strings.Contains(upper, "SELECT") && strings.Contains(upper, "FROM") {
		confidence += 0.2
	}
	if len(sql) > 20 && len(sql) < 500 {
		confidence += 0.1
	}
	if strings.Contains(upper, "WHERE") {
		confidence += 0.1
	}
	if strings.Contains(sql, "{") && strings.Contains(sql, "}") {
		confidence += 0.1
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}
