package bigquery

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"sort"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"kpisync/internal/report"
	apperrors "kpisync/pkg/errors"
)

const jobIDPrefix = "kpisync"

// Config holds BigQuery connection configuration
type Config struct {
	ProjectID       string
	Location        string
	CredentialsFile string
	// CredentialsJSON is a service account key, used when CredentialsFile is empty.
	CredentialsJSON []byte
	Timeout         time.Duration
}

// rowIterator is the part of *bigquery.RowIterator the service reads.
type rowIterator interface {
	Next(dst interface{}) error
	schema() bigquery.Schema
}

// backend issues jobs. The live implementation wraps *bigquery.Client.
type backend interface {
	read(ctx context.Context, query string, params []bigquery.QueryParameter) (rowIterator, error)
	load(ctx context.Context, dataset, table string, src bigquery.LoadSource) (int64, error)
	close() error
}

// Service runs queries and load jobs against one BigQuery project
type Service struct {
	config  Config
	backend backend
}

// NewService creates a new BigQuery service. Call Connect before use.
func NewService(config Config) *Service {
	return &Service{config: config}
}

// ValidateConfig validates the BigQuery configuration
func (s *Service) ValidateConfig() error {
	if s.config.ProjectID == "" {
		return apperrors.ConfigError("BigQuery project is required", "warehouse.project")
	}
	return nil
}

// Connect creates the BigQuery client
func (s *Service) Connect(ctx context.Context) error {
	if s.backend != nil {
		return nil
	}
	if err := s.ValidateConfig(); err != nil {
		return err
	}

	var opts []option.ClientOption
	if s.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.config.CredentialsFile))
	} else if len(s.config.CredentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(s.config.CredentialsJSON))
	}

	client, err := bigquery.NewClient(ctx, s.config.ProjectID, opts...)
	if err != nil {
		return apperrors.ConnectionError("Failed to create BigQuery client", err).
			WithContext("project", s.config.ProjectID)
	}
	client.Location = s.config.Location

	s.backend = &clientBackend{client: client, project: s.config.ProjectID}
	return nil
}

// Close releases the client
func (s *Service) Close() error {
	if s.backend == nil {
		return nil
	}
	err := s.backend.close()
	s.backend = nil
	return err
}

// TableID returns the fully qualified `project.dataset.table` name.
func (s *Service) TableID(dataset, table string) string {
	return fmt.Sprintf("%s.%s.%s", s.config.ProjectID, dataset, table)
}

// Execute runs a query and collects every row. It satisfies report.DataSource.
func (s *Service) Execute(ctx context.Context, query string) (*report.ResultSet, error) {
	return s.Query(ctx, query, nil)
}

// Query runs a query with named parameters (@name) and collects every row.
func (s *Service) Query(ctx context.Context, query string, params map[string]interface{}) (*report.ResultSet, error) {
	if s.backend == nil {
		return nil, apperrors.New(apperrors.ErrCodeConnectionFailed, "Not connected to BigQuery").
			WithSuggestions("Call Connect() before executing queries")
	}

	ctx, cancel := s.getContext(ctx)
	defer cancel()

	it, err := s.backend.read(ctx, query, queryParameters(params))
	if err != nil {
		return nil, apperrors.QueryExecutionError(query, err)
	}

	rs := &report.ResultSet{}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apperrors.QueryExecutionError(query, err)
		}

		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = normalizeValue(v)
		}
		rs.Rows = append(rs.Rows, values)
	}

	for _, field := range it.schema() {
		rs.Columns = append(rs.Columns, field.Name)
	}
	return rs, nil
}

// LoadCSV replaces dataset.table with the rows of a comma separated stream
// whose first line is a header. The schema is autodetected. It returns the
// number of rows loaded.
func (s *Service) LoadCSV(ctx context.Context, dataset, table string, r io.Reader) (int64, error) {
	if s.backend == nil {
		return 0, apperrors.New(apperrors.ErrCodeConnectionFailed, "Not connected to BigQuery")
	}

	src := bigquery.NewReaderSource(r)
	src.SourceFormat = bigquery.CSV
	src.SkipLeadingRows = 1
	src.AutoDetect = true

	rows, err := s.backend.load(ctx, dataset, table, src)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeLoadFailed, fmt.Sprintf("failed to load %s", s.TableID(dataset, table))).
			WithContext("table", s.TableID(dataset, table))
	}
	return rows, nil
}

// getContext returns a context with the configured timeout
func (s *Service) getContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout > 0 {
		return context.WithTimeout(parent, s.config.Timeout)
	}
	return context.WithCancel(parent)
}

// queryParameters orders parameters by name so job configs are stable.
func queryParameters(params map[string]interface{}) []bigquery.QueryParameter {
	if len(params) == 0 {
		return nil
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]bigquery.QueryParameter, len(names))
	for i, name := range names {
		out[i] = bigquery.QueryParameter{Name: name, Value: params[name]}
	}
	return out
}

// normalizeValue maps BigQuery values onto plain scalars for the sinks.
func normalizeValue(v bigquery.Value) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case *big.Rat:
		f, _ := val.Float64()
		return f
	case time.Time:
		return val.UTC()
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	case []bigquery.Value, map[string]bigquery.Value:
		return fmt.Sprint(val)
	default:
		return val
	}
}

type clientBackend struct {
	client  *bigquery.Client
	project string
}

type clientRows struct {
	it *bigquery.RowIterator
}

func (r clientRows) Next(dst interface{}) error { return r.it.Next(dst) }

func (r clientRows) schema() bigquery.Schema { return r.it.Schema }

func (b *clientBackend) read(ctx context.Context, query string, params []bigquery.QueryParameter) (rowIterator, error) {
	q := b.client.Query(query)
	q.Parameters = params
	q.JobIDConfig = bigquery.JobIDConfig{
		JobID:          jobIDPrefix,
		AddJobIDSuffix: true,
		Location:       b.client.Location,
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	return clientRows{it: it}, nil
}

func (b *clientBackend) load(ctx context.Context, dataset, table string, src bigquery.LoadSource) (int64, error) {
	loader := b.client.DatasetInProject(b.project, dataset).Table(table).LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.JobIDConfig = bigquery.JobIDConfig{
		JobID:          jobIDPrefix + "-load",
		AddJobIDSuffix: true,
		Location:       b.client.Location,
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return 0, err
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, err
	}
	if err := status.Err(); err != nil {
		return 0, err
	}

	if status.Statistics == nil {
		return 0, nil
	}
	if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
		return stats.OutputRows, nil
	}
	return 0, nil
}

func (b *clientBackend) close() error {
	return b.client.Close()
}
