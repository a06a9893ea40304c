package audit

import (
	"context"
	"fmt"
	"time"

	"kpisync/internal/observability"
	"kpisync/internal/report"
	apperrors "kpisync/pkg/errors"
)

// Store runs parameterized statements against the warehouse.
type Store interface {
	Query(ctx context.Context, query string, params map[string]interface{}) (*report.ResultSet, error)
}

// Status of one check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Check counts offending rows; zero means the check passes.
type Check struct {
	Name string
	// Label prefixes the count in the recorded details, e.g. "nulls=0".
	Label string
	Query string
}

// Result is the recorded outcome of one check.
type Result struct {
	Check   string
	Status  Status
	Count   int64
	Details string
}

// Config names the audited table and the table receiving audit rows.
type Config struct {
	ProjectID string
	// Dataset holds customer_kpis.
	Dataset      string
	AuditDataset string
	AuditTable   string
}

// Auditor runs data quality checks and records each result.
type Auditor struct {
	store  Store
	config Config
	logger *observability.Logger
	now    func() time.Time
}

// NewAuditor creates an auditor.
func NewAuditor(store Store, config Config, logger *observability.Logger) *Auditor {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Auditor{store: store, config: config, logger: logger, now: time.Now}
}

func (a *Auditor) kpiTable() string {
	return fmt.Sprintf("`%s.%s.customer_kpis`", a.config.ProjectID, a.config.Dataset)
}

func (a *Auditor) auditTable() string {
	return fmt.Sprintf("`%s.%s.%s`", a.config.ProjectID, a.config.AuditDataset, a.config.AuditTable)
}

// Checks returns the checks run against customer_kpis, in order.
func (a *Auditor) Checks() []Check {
	table := a.kpiTable()
	return []Check{
		{
			Name:  "customer_id_not_null",
			Label: "nulls",
			Query: fmt.Sprintf("SELECT COUNT(1) AS null_count FROM %s WHERE customer_id IS NULL", table),
		},
		{
			Name:  "conversion_rate_range",
			Label: "out_of_range",
			Query: fmt.Sprintf("SELECT COUNT(1) AS out_of_range FROM %s WHERE conversion_rate < 0 OR conversion_rate > 1 OR conversion_rate IS NULL", table),
		},
		{
			Name:  "successful_contacts_count_non_negative",
			Label: "negatives",
			Query: fmt.Sprintf("SELECT COUNT(1) AS negatives FROM %s WHERE successful_contacts_count < 0 OR successful_contacts_count IS NULL", table),
		},
	}
}

// EnsureTable creates the audit dataset and table when missing.
func (a *Auditor) EnsureTable(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS `%s.%s`", a.config.ProjectID, a.config.AuditDataset),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  audit_timestamp TIMESTAMP,
  check_name STRING,
  status STRING,
  details STRING
)`, a.auditTable()),
	}

	for _, stmt := range statements {
		if _, err := a.store.Query(ctx, stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

// Run ensures the audit table, evaluates every check and records each result.
// It stops at the first warehouse error.
func (a *Auditor) Run(ctx context.Context) ([]Result, error) {
	if err := a.EnsureTable(ctx); err != nil {
		return nil, err
	}

	var results []Result
	for _, check := range a.Checks() {
		count, err := a.count(ctx, check)
		if err != nil {
			return results, err
		}

		res := Result{
			Check:   check.Name,
			Status:  StatusPass,
			Count:   count,
			Details: fmt.Sprintf("%s=%d", check.Label, count),
		}
		if count != 0 {
			res.Status = StatusFail
		}

		if err := a.record(ctx, res); err != nil {
			return results, err
		}
		a.logger.InfoWithFields("audit check recorded", map[string]interface{}{
			"check":   res.Check,
			"status":  string(res.Status),
			"details": res.Details,
		})
		results = append(results, res)
	}
	return results, nil
}

func (a *Auditor) count(ctx context.Context, check Check) (int64, error) {
	rs, err := a.store.Query(ctx, check.Query, nil)
	if err != nil {
		return 0, err
	}
	if rs.RowCount() == 0 || len(rs.Rows[0]) == 0 {
		return 0, apperrors.New(apperrors.ErrCodeNoResults, fmt.Sprintf("check %s returned no rows", check.Name)).
			WithContext("check", check.Name)
	}

	switch v := rs.Rows[0][0].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, apperrors.New(apperrors.ErrCodeInvalidResults, fmt.Sprintf("check %s returned %T, want a count", check.Name, v)).
			WithContext("check", check.Name)
	}
}

func (a *Auditor) record(ctx context.Context, res Result) error {
	stmt := fmt.Sprintf(`INSERT INTO %s
  (audit_timestamp, check_name, status, details)
VALUES
  (@ts, @check_name, @status, @details)`, a.auditTable())

	_, err := a.store.Query(ctx, stmt, map[string]interface{}{
		"ts":         a.now().UTC(),
		"check_name": res.Check,
		"status":     string(res.Status),
		"details":    res.Details,
	})
	return err
}

// Failed reports whether any result is FAIL.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}
