package main

import (
	"encoding/json"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. Numeric columns are right aligned.
type column struct {
	Title   string
	Numeric bool
}

func columns(titles ...string) []column {
	cols := make([]column, len(titles))
	for i, title := range titles {
		cols[i] = column{Title: title}
	}
	return cols
}

// numeric marks the named column as right aligned.
func numeric(cols []column, title string) []column {
	for i := range cols {
		if cols[i].Title == title {
			cols[i].Numeric = true
		}
	}
	return cols
}

// renderTable lays rows out under cols. Short rows are padded and extra
// cells are dropped.
func renderTable(cols []column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, col := range cols {
		header[i] = col.Title
		align := text.AlignLeft
		if col.Numeric {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

// writeJSON encodes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
