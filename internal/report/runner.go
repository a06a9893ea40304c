package report

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kpisync/internal/observability"
	apperrors "kpisync/pkg/errors"
)

// DataSource executes a fully substituted query and returns its rows.
type DataSource interface {
	Execute(ctx context.Context, query string) (*ResultSet, error)
}

// Container identifies a resolved destination spreadsheet.
type Container struct {
	ID   string
	Name string
	URL  string
}

// Sink resolves containers and replaces named sheets inside them.
type Sink interface {
	ResolveContainer(ctx context.Context, name string) (Container, error)
	WriteSheet(ctx context.Context, container Container, sheetName string, rs *ResultSet) error
}

// Options are the per-pass inputs of RunAll.
type Options struct {
	Container  string
	Parameters map[string]string
}

// Runner executes every report of a catalog and writes each result to the sink.
type Runner struct {
	Source DataSource
	Sink   Sink
	Logger *observability.Logger
	// Parallelism bounds the number of reports in flight. Values below 2 run
	// reports one at a time in catalog order.
	Parallelism int
}

// RunAll performs one pass. The returned error is non-nil only when the
// container cannot be resolved, in which case no query is executed. Per-report
// failures are recorded in the RunReport.
func (r *Runner) RunAll(ctx context.Context, catalog *Catalog, opts Options) (*RunReport, error) {
	logger := r.Logger
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Outcomes:  make([]Outcome, catalog.Len()),
	}
	logger = logger.WithFields(map[string]interface{}{
		"run_id":    report.RunID,
		"container": opts.Container,
	})
	logger.InfoWithFields("starting report pass", map[string]interface{}{"reports": catalog.Len()})

	container, err := r.Sink.ResolveContainer(ctx, opts.Container)
	if err != nil {
		err = ensureCode(err, apperrors.ErrCodeContainerResolution, func(cause error) error {
			return apperrors.ContainerResolutionError(opts.Container, cause)
		})
		logger.WithError(err).Error("container resolution failed")
		return nil, err
	}
	report.Container = container

	defs := catalog.Definitions()
	if r.Parallelism > 1 {
		g := new(errgroup.Group)
		g.SetLimit(r.Parallelism)
		for i, def := range defs {
			i, def := i, def
			g.Go(func() error {
				report.Outcomes[i] = r.runOne(ctx, logger, container, def, opts.Parameters)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, def := range defs {
			report.Outcomes[i] = r.runOne(ctx, logger, container, def, opts.Parameters)
		}
	}

	report.Duration = time.Since(report.StartedAt)
	logger.InfoWithFields("report pass finished", map[string]interface{}{
		"succeeded": report.Succeeded(),
		"failed":    len(report.Failed()),
		"duration":  report.Duration.String(),
	})
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, logger *observability.Logger, container Container, def Definition, params map[string]string) Outcome {
	start := time.Now()
	outcome := Outcome{Name: def.Name, Status: StatusPending, Stage: StagePending}
	logger = logger.WithField("report", def.Name)

	fail := func(stage Stage, err error) Outcome {
		outcome.Status = StatusFailed
		outcome.Stage = stage
		outcome.Err = err
		outcome.Duration = time.Since(start)
		logger.WithError(err).WarnWithFields("report failed", map[string]interface{}{
			"stage": string(stage),
			"code":  string(apperrors.GetErrorCode(err)),
		})
		return outcome
	}

	outcome.Stage = StageSubstituting
	query, err := Substitute(def, params)
	if err != nil {
		return fail(StageSubstituting, err)
	}

	outcome.Stage = StageExecuting
	if ctxErr := ctx.Err(); ctxErr != nil {
		cancelled := apperrors.Wrap(ctxErr, apperrors.ErrCodeCancelled, "pass cancelled before execution")
		return fail(StageExecuting, apperrors.QueryExecutionError(query, cancelled))
	}
	logger.Debug("executing query")
	var rs *ResultSet
	err = apperrors.Safely("query execution", func() error {
		var execErr error
		rs, execErr = r.Source.Execute(ctx, query)
		return execErr
	})
	if err == nil {
		err = rs.Validate()
	}
	if err != nil {
		return fail(StageExecuting, ensureCode(err, apperrors.ErrCodeQueryExecution, func(cause error) error {
			return apperrors.QueryExecutionError(query, cause)
		}))
	}

	outcome.Stage = StageWriting
	err = apperrors.Safely("sheet write", func() error {
		return r.Sink.WriteSheet(ctx, container, def.Name, rs)
	})
	if err != nil {
		return fail(StageWriting, ensureCode(err, apperrors.ErrCodeSinkWrite, func(cause error) error {
			return apperrors.SinkWriteError(def.Name, cause)
		}))
	}

	outcome.Status = StatusSucceeded
	outcome.Stage = StageDone
	outcome.RowCount = rs.RowCount()
	outcome.Duration = time.Since(start)
	logger.InfoWithFields("report written", map[string]interface{}{"rows": outcome.RowCount})
	return outcome
}

// ensureCode keeps err when it already carries code and wraps it otherwise,
// so every failure stage reports its own error kind.
func ensureCode(err error, code apperrors.ErrorCode, wrap func(error) error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == code {
		return err
	}
	return wrap(err)
}
