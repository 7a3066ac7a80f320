package schema

import (
	"strings"
	"testing"
)

func TestDescribeStableOrderAndAliases(t *testing.T) {
	s := Schema{Tables: []Table{
		{
			Name: "videos",
			Columns: []Column{
				{Name: "id", DataType: "uuid"},
				{Name: "creator_id", DataType: "character varying"},
				{Name: "views_count", DataType: "integer", Nullable: true},
			},
		},
		{
			Name: "creators",
			Columns: []Column{
				{Name: "id", DataType: "character varying"},
			},
		},
	}}

	text := s.Describe()
	if !strings.HasPrefix(text, "Table creators:") {
		t.Fatalf("tables not sorted:\n%s", text)
	}
	if !strings.Contains(text, "creator_id (character varying, not null)") {
		t.Fatalf("column line missing:\n%s", text)
	}
	if !strings.Contains(text, "views_count (integer, nullable)") {
		t.Fatalf("nullability missing:\n%s", text)
	}
	if !strings.Contains(text, "креатор, идентификатор") {
		t.Fatalf("russian alias missing:\n%s", text)
	}
	if !strings.Contains(text, "просмотры, количество") {
		t.Fatalf("counter alias missing:\n%s", text)
	}

	if again := s.Describe(); again != text {
		t.Fatal("description must be deterministic")
	}
}

func TestDescribeEmptySchema(t *testing.T) {
	if got := (Schema{}).Describe(); got != "" {
		t.Fatalf("empty schema produced %q", got)
	}
}
