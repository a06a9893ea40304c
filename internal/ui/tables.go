package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"kpisync/internal/audit"
	"kpisync/internal/report"
)

const maxCellWidth = 60

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// RenderRunReport prints one line per report followed by the pass totals.
func RenderRunReport(w io.Writer, rep *report.RunReport, useColor bool) {
	table := newTable(w, "#", "Report", "Status", "Stage", "Rows", "Duration", "Error")

	for i, o := range rep.Outcomes {
		status := string(o.Status)
		if useColor {
			switch o.Status {
			case report.StatusSucceeded:
				status = color.GreenString(status)
			case report.StatusFailed:
				status = color.RedString(status)
			}
		}

		rows := ""
		if o.Status == report.StatusSucceeded {
			rows = strconv.Itoa(o.RowCount)
		}

		table.Append([]string{
			strconv.Itoa(i + 1),
			o.Name,
			status,
			string(o.Stage),
			rows,
			FormatDuration(o.Duration),
			truncate(o.ErrorDetail(), maxCellWidth),
		})
	}
	table.Render()

	failed := len(rep.Failed())
	summary := fmt.Sprintf("%d succeeded, %d failed", rep.Succeeded(), failed)
	if useColor && failed > 0 {
		summary = color.New(color.FgRed, color.Bold).Sprint(summary)
	}
	fmt.Fprintf(w, "\n%s in %s (run %s)\n", summary, FormatDuration(rep.Duration), rep.RunID)
	if rep.Container.URL != "" {
		fmt.Fprintf(w, "Spreadsheet: %s\n", rep.Container.URL)
	}
}

// RenderResultSet prints up to maxRows rows of rs; maxRows <= 0 prints all.
func RenderResultSet(w io.Writer, title string, rs *report.ResultSet, maxRows int) {
	if title != "" {
		fmt.Fprintf(w, "\n%s (%d rows)\n", ColorBold(title), rs.RowCount())
	}
	if len(rs.Columns) == 0 {
		fmt.Fprintln(w, ColorDim("  (no columns)"))
		return
	}

	table := newTable(w, rs.Columns...)
	shown := rs.RowCount()
	if maxRows > 0 && shown > maxRows {
		shown = maxRows
	}
	for _, row := range rs.Rows[:shown] {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = truncate(FormatValue(v), maxCellWidth)
		}
		table.Append(cells)
	}
	table.Render()

	if rest := rs.RowCount() - shown; rest > 0 {
		fmt.Fprintln(w, ColorDim(fmt.Sprintf("  ... %d more rows", rest)))
	}
}

// RenderCatalog lists each report with the parameters its template needs.
func RenderCatalog(w io.Writer, catalog *report.Catalog) {
	table := newTable(w, "#", "Report", "Parameters")
	for i, def := range catalog.Definitions() {
		table.Append([]string{
			strconv.Itoa(i + 1),
			def.Name,
			strings.Join(report.Placeholders(def.Template), ", "),
		})
	}
	table.Render()
}

// RenderAuditResults prints one line per data quality check.
func RenderAuditResults(w io.Writer, results []audit.Result, useColor bool) {
	table := newTable(w, "Check", "Status", "Details")
	for _, r := range results {
		status := string(r.Status)
		if useColor {
			if r.Status == audit.StatusPass {
				status = color.GreenString(status)
			} else {
				status = color.RedString(status)
			}
		}
		table.Append([]string{r.Check, status, r.Details})
	}
	table.Render()
}

// FormatValue renders a warehouse cell for the terminal. NULL is empty.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
