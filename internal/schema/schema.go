// Package schema models the analytics database structure and renders it as
// the textual description fed into generator prompts.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

type Schema struct {
	Tables []Table `json:"tables"`
}

// Russian aliases appended to column descriptions so the generator can map
// Russian question words onto English column names.
var aliasSuffixes = []struct {
	suffix string
	alias  string
}{
	{"_id", "идентификатор"},
	{"_at", "дата и время"},
	{"_date", "дата"},
	{"_count", "количество"},
	{"_name", "название"},
	{"_type", "тип"},
}

var aliasWords = map[string]string{
	"video":    "видео",
	"creator":  "креатор",
	"views":    "просмотры",
	"likes":    "лайки",
	"comments": "комментарии",
	"reports":  "репорты",
	"delta":    "изменение",
	"title":    "название",
	"status":   "статус",
}

// Describe renders the schema in the prompt format: one block per table,
// one line per column with type, nullability and a Russian hint when one
// applies. Tables come out in name order so the text is stable.
func (s Schema) Describe() string {
	tables := append([]Table(nil), s.Tables...)
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	var b strings.Builder
	for i, table := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Table %s:\n", table.Name)
		for _, column := range table.Columns {
			nullability := "not null"
			if column.Nullable {
				nullability = "nullable"
			}
			fmt.Fprintf(&b, "  - %s (%s, %s)", column.Name, column.DataType, nullability)
			if alias := aliasFor(column.Name); alias != "" {
				fmt.Fprintf(&b, " — %s", alias)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func aliasFor(columnName string) string {
	var parts []string
	for _, word := range strings.Split(strings.TrimSuffix(suffixTrimmed(columnName), "_"), "_") {
		if alias, ok := aliasWords[word]; ok {
			parts = append(parts, alias)
		}
	}
	for _, entry := range aliasSuffixes {
		if strings.HasSuffix(columnName, entry.suffix) {
			parts = append(parts, entry.alias)
		}
	}
	return strings.Join(parts, ", ")
}

func suffixTrimmed(columnName string) string {
	for _, entry := range aliasSuffixes {
		if strings.HasSuffix(columnName, entry.suffix) {
			return strings.TrimSuffix(columnName, entry.suffix)
		}
	}
	return columnName
}
