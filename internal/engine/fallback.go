package engine

import "strings"

// FallbackSQL produces a safe default query from coarse keyword intent. It is
// the terminal step of resolution and never fails: anything unrecognized
// degrades to a bounded row sample.
func FallbackSQL(question string) string {
	lower := strings.ToLower(question)

	if containsAny(lower, "сколько", "количество", "число") {
		if strings.Contains(lower, "снимк") || strings.Contains(lower, "снапшот") {
			return "SELECT COUNT(*) FROM video_snapshots"
		}
		return "SELECT COUNT(*) FROM videos"
	}

	if containsAny(lower, "сумма", "суммарн", "итого") {
		switch {
		case strings.Contains(lower, "просмотр"):
			return "SELECT SUM(views_count) FROM videos"
		case strings.Contains(lower, "лайк"):
			return "SELECT SUM(likes_count) FROM videos"
		case strings.Contains(lower, "комментар"):
			return "SELECT SUM(comments_count) FROM videos"
		}
	}

	return "SELECT * FROM videos LIMIT 10"
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
