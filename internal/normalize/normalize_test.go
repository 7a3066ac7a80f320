package normalize

import (
	"reflect"
	"testing"
)

func TestQuestionStripsPunctuationAndCase(t *testing.T) {
	a := Question("Сколько всего видео в системе?")
	b := Question("сколько всего видео в системе")
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("feature sets differ: %v vs %v", a.Words(), b.Words())
	}
	if !a.Contains("видео") || !a.Contains("сколько") || !a.Contains("системе") {
		t.Fatalf("unexpected feature set: %v", a.Words())
	}
	// "всего" and "в" are stop-words.
	if a.Contains("всего") || a.Contains("в") {
		t.Fatalf("stop-words leaked: %v", a.Words())
	}
}

func TestQuestionMasksIdentifiers(t *testing.T) {
	set := Question("статистика креатора a1b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6")
	if !set.Contains(SentinelCreatorID) {
		t.Fatalf("expected %s sentinel, got %v", SentinelCreatorID, set.Words())
	}
	if set.Contains("a1b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6") {
		t.Fatal("raw identifier survived normalization")
	}

	set = Question("просмотры видео 01234567-89ab-cdef-0123-456789abcdef")
	if !set.Contains(SentinelVideoID) {
		t.Fatalf("expected %s sentinel, got %v", SentinelVideoID, set.Words())
	}
}

func TestQuestionDropsDatesAndNumbers(t *testing.T) {
	for _, question := range []string{
		"сколько видео вышло 2025-11-28",
		"сколько видео вышло 28 ноября 2025",
		"сколько видео вышло вчера 15",
	} {
		set := Question(question)
		for word := range set {
			if word == "2025" || word == "28" || word == "15" || word == "ноября" {
				t.Fatalf("volatile token %q survived in %q", word, question)
			}
		}
		if !set.Contains("видео") {
			t.Fatalf("stable token missing for %q: %v", question, set.Words())
		}
	}
}

func TestQuestionEmptyForDegenerateInput(t *testing.T) {
	for _, question := range []string{"", "?!...", "в и с 42", "2025-01-01"} {
		if set := Question(question); len(set) != 0 {
			t.Fatalf("Question(%q) = %v, want empty", question, set.Words())
		}
	}
}

func TestQuestionDeterministic(t *testing.T) {
	const q = "Топ 10 видео по просмотрам за 28 ноября 2025?"
	first := Question(q)
	for i := 0; i < 5; i++ {
		if !reflect.DeepEqual(Question(q), first) {
			t.Fatal("normalization is not deterministic")
		}
	}
}

func TestIntersectionSize(t *testing.T) {
	a := FromWords([]string{"видео", "просмотры", "топ"})
	b := FromWords([]string{"видео", "лайки"})
	if got := a.IntersectionSize(b); got != 1 {
		t.Fatalf("IntersectionSize = %d", got)
	}
	if got := b.IntersectionSize(a); got != 1 {
		t.Fatalf("IntersectionSize (reversed) = %d", got)
	}
}
