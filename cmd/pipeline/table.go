package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"shorts_pipeline/internal/domain"
	"shorts_pipeline/internal/storage/sqldb"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    60,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func renderSummary(stats *domain.BatchStats) string {
	headers := []string{"Task", "Status", "Posts", "Selected", "Outcome", "Failed stage", "Duration", "Error"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft}

	rows := make([][]string, 0, len(stats.Tasks))
	for _, r := range stats.Tasks {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		rows = append(rows, []string{
			r.Name,
			string(r.Status),
			fmt.Sprint(r.Posts),
			fmt.Sprint(r.Selected),
			r.Outcome.String(),
			string(r.FailedStage),
			r.Duration.Round(time.Millisecond).String(),
			errText,
		})
	}

	return fmt.Sprintf("%s\n%d succeeded, %d failed in %s",
		renderTable(headers, rows, aligns),
		stats.Succeeded, stats.Failed, stats.Duration.Round(time.Millisecond))
}

// renderRows lays out store rows with their columns sorted by name.
func renderRows(rows []sqldb.Row) string {
	if len(rows) == 0 {
		return "no rows"
	}

	columnSet := make(map[string]struct{})
	for _, row := range rows {
		for col := range row {
			columnSet[col] = struct{}{}
		}
	}
	headers := make([]string, 0, len(columnSet))
	for col := range columnSet {
		headers = append(headers, col)
	}
	sort.Strings(headers)

	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		line := make([]string, len(headers))
		for i, col := range headers {
			line[i] = formatValue(row[col])
		}
		out = append(out, line)
	}
	return renderTable(headers, out, nil)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
