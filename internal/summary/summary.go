package summary

import (
	"context"
	"fmt"
	"html/template"
	"io"

	"kpisync/internal/report"
	apperrors "kpisync/pkg/errors"
)

// Metrics holds the aggregated KPIs of one scope.
type Metrics struct {
	Segment                 string
	ConversionRate          float64
	SuccessfulContactsCount int64
	TotalContacts           int64
}

// Summary is the overall KPI line plus one line per customer segment.
type Summary struct {
	Overall  Metrics
	Segments []Metrics
}

// Query returns the summary statement for <project>.<dataset>.customer_kpis.
// Each row repeats the overall columns followed by one segment.
func Query(projectID, dataset string) string {
	table := fmt.Sprintf("`%s.%s.customer_kpis`", projectID, dataset)
	return fmt.Sprintf(`WITH overall AS (
  SELECT
    SAFE_DIVIDE(SUM(successful_contacts_count), SUM(total_contacts)) AS conversion_rate,
    SUM(successful_contacts_count) AS successful_contacts_count,
    SUM(total_contacts) AS total_contacts
  FROM %[1]s
), by_segment AS (
  SELECT customer_segment,
         SAFE_DIVIDE(SUM(successful_contacts_count), SUM(total_contacts)) AS segment_conversion_rate,
         SUM(successful_contacts_count) AS segment_successful_contacts_count
  FROM %[1]s
  GROUP BY customer_segment
)
SELECT * FROM overall, by_segment
ORDER BY by_segment.customer_segment`, table)
}

// Compute runs the summary query and folds its rows.
func Compute(ctx context.Context, source report.DataSource, projectID, dataset string) (*Summary, error) {
	rs, err := source.Execute(ctx, Query(projectID, dataset))
	if err != nil {
		return nil, err
	}
	return FromResultSet(rs)
}

// FromResultSet reads overall metrics from the first row and one segment per
// row. NULL aggregates read as zero.
func FromResultSet(rs *report.ResultSet) (*Summary, error) {
	s := &Summary{}
	if rs.RowCount() == 0 {
		return s, nil
	}

	for i, row := range rs.Rows {
		if len(row) < 6 {
			return nil, apperrors.New(apperrors.ErrCodeInvalidResults,
				fmt.Sprintf("summary row %d has %d columns, want 6", i, len(row)))
		}
		if i == 0 {
			s.Overall = Metrics{
				ConversionRate:          toFloat(row[0]),
				SuccessfulContactsCount: toInt(row[1]),
				TotalContacts:           toInt(row[2]),
			}
		}
		seg := ""
		if row[3] != nil {
			seg = fmt.Sprint(row[3])
		}
		s.Segments = append(s.Segments, Metrics{
			Segment:                 seg,
			ConversionRate:          toFloat(row[4]),
			SuccessfulContactsCount: toInt(row[5]),
		})
	}
	return s, nil
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func toInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

var htmlTemplate = template.Must(template.New("summary").Funcs(template.FuncMap{
	"rate": func(f float64) string { return fmt.Sprintf("%.4f", f) },
}).Parse(`<h3>Bank Marketing - Daily Summary</h3>
<p>Key metrics computed by the KPI models:</p>
<ul>
{{- if .Segments}}
<li><b>conversion_rate</b>: {{rate .Overall.ConversionRate}}</li>
<li><b>successful_contacts_count</b>: {{.Overall.SuccessfulContactsCount}}</li>
<li><b>total_contacts</b>: {{.Overall.TotalContacts}}</li>
{{- end}}
</ul>
<h4>By segment</h4>
<table border='1' cellpadding='4' cellspacing='0'>
<tr><th>customer_segment</th><th>conversion_rate</th><th>successful_contacts_count</th></tr>
{{- range .Segments}}
<tr><td>{{.Segment}}</td><td>{{rate .ConversionRate}}</td><td>{{.SuccessfulContactsCount}}</td></tr>
{{- end}}
</table>
`))

// RenderHTML writes the summary as an HTML fragment. Segment names are escaped.
func RenderHTML(w io.Writer, s *Summary) error {
	return htmlTemplate.Execute(w, s)
}
