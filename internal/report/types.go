package report

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	apperrors "kpisync/pkg/errors"
)

// ResultSet is a rectangular query result: ordered columns and rows aligned
// positionally with them.
type ResultSet struct {
	Columns []string
	Rows    [][]interface{}
}

// RowCount returns the number of data rows, excluding the header.
func (rs *ResultSet) RowCount() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Validate checks that column names are unique and every row has exactly
// one value per column.
func (rs *ResultSet) Validate() error {
	if rs == nil {
		return apperrors.New(apperrors.ErrCodeInvalidResults, "nil result set")
	}

	seen := make(map[string]struct{}, len(rs.Columns))
	for _, col := range rs.Columns {
		if _, dup := seen[col]; dup {
			return apperrors.New(apperrors.ErrCodeInvalidResults, fmt.Sprintf("duplicate column %q", col)).
				WithContext("column", col)
		}
		seen[col] = struct{}{}
	}

	for i, row := range rs.Rows {
		if len(row) != len(rs.Columns) {
			return apperrors.New(apperrors.ErrCodeInvalidResults,
				fmt.Sprintf("row %d has %d values, want %d", i, len(row), len(rs.Columns))).
				WithContext("row", i)
		}
	}
	return nil
}

// Status is the terminal state of one report in a pass.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Stage is the step a report was in when it finished.
type Stage string

const (
	StagePending      Stage = "PENDING"
	StageSubstituting Stage = "SUBSTITUTING"
	StageExecuting    Stage = "EXECUTING"
	StageWriting      Stage = "WRITING"
	StageDone         Stage = "DONE"
)

// Outcome records how one report fared during a pass.
type Outcome struct {
	Name     string
	Status   Status
	Stage    Stage
	RowCount int
	Err      error
	Duration time.Duration
}

// ErrorDetail is the one-line error description, empty on success.
func (o Outcome) ErrorDetail() string {
	return apperrors.Detail(o.Err)
}

// ErrorCode is the error classification, empty on success.
func (o Outcome) ErrorCode() apperrors.ErrorCode {
	if o.Err == nil {
		return ""
	}
	return apperrors.GetErrorCode(o.Err)
}

// RunReport is the result of one pass, one outcome per report in catalog order.
type RunReport struct {
	RunID     string
	Container Container
	StartedAt time.Time
	Duration  time.Duration
	Outcomes  []Outcome
}

// Succeeded counts reports that were written.
func (r *RunReport) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusSucceeded {
			n++
		}
	}
	return n
}

// Failed returns the failed outcomes in catalog order.
func (r *RunReport) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// HasFailures reports whether any report failed.
func (r *RunReport) HasFailures() bool {
	return len(r.Failed()) > 0
}

// Err aggregates every per-report failure, or returns nil.
func (r *RunReport) Err() error {
	var result *multierror.Error
	for _, o := range r.Failed() {
		result = multierror.Append(result, fmt.Errorf("%s: %s", o.Name, o.ErrorDetail()))
	}
	return result.ErrorOrNil()
}
