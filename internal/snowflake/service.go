package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sf "github.com/snowflakedb/gosnowflake"

	"kpisync/internal/report"
	"kpisync/pkg/errors"
)

// Service runs report queries against Snowflake
type Service struct {
	db        *sql.DB
	config    Config
	connected bool
}

// Config holds Snowflake connection configuration
type Config struct {
	Account   string
	Username  string
	Password  string
	Database  string
	Schema    string
	Warehouse string
	Role      string
	Timeout   time.Duration
}

// NewService creates a new Snowflake service
func NewService(config Config) *Service {
	return &Service{config: config}
}

// ValidateConfig validates the Snowflake configuration
func ValidateConfig(config Config) error {
	switch {
	case config.Account == "":
		return fmt.Errorf("account is required")
	case config.Username == "":
		return fmt.Errorf("username is required")
	case config.Password == "":
		return fmt.Errorf("password is required")
	case config.Warehouse == "":
		return fmt.Errorf("warehouse is required")
	}
	return nil
}

// DSN builds the driver connection string
func (s *Service) DSN() (string, error) {
	return sf.DSN(&sf.Config{
		Account:   s.config.Account,
		User:      s.config.Username,
		Password:  s.config.Password,
		Database:  s.config.Database,
		Schema:    s.config.Schema,
		Warehouse: s.config.Warehouse,
		Role:      s.config.Role,
	})
}

// Connect establishes a connection to Snowflake
func (s *Service) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}
	if err := ValidateConfig(s.config); err != nil {
		return errors.ConfigError(err.Error(), "warehouse.snowflake")
	}

	dsn, err := s.DSN()
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("invalid Snowflake configuration: %v", err), "warehouse.snowflake")
	}

	return errors.RetryWithBackoff(ctx, func(ctx context.Context) error {
		db, err := sql.Open("snowflake", dsn)
		if err != nil {
			return errors.ConnectionError("Failed to open Snowflake connection", err).
				WithContext("account", s.config.Account).
				WithContext("warehouse", s.config.Warehouse)
		}

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(10 * time.Minute)

		pingCtx, cancel := s.getContext(ctx)
		defer cancel()

		if err := db.PingContext(pingCtx); err != nil {
			db.Close()

			if strings.Contains(err.Error(), "authentication") {
				return errors.New(errors.ErrCodeAuthenticationFailed, "Authentication failed").
					WithContext("user", s.config.Username).
					WithSuggestions(
						"Verify your username and password",
						"Check if your account is locked",
					)
			}

			return errors.ConnectionError("Failed to connect to Snowflake", err).
				WithContext("account", s.config.Account).
				AsRecoverable()
		}

		s.db = db
		s.connected = true
		return nil
	})
}

// Close closes the database connection
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	s.connected = false
	return nil
}

// Execute runs a query and collects every row. It satisfies report.DataSource.
func (s *Service) Execute(ctx context.Context, query string) (*report.ResultSet, error) {
	if !s.connected {
		return nil, errors.New(errors.ErrCodeConnectionFailed, "Not connected to database").
			WithSuggestions("Call Connect() before executing queries")
	}

	ctx, cancel := s.getContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.QueryExecutionError(query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.QueryExecutionError(query, err)
	}

	rs := &report.ResultSet{Columns: cols}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		valuePtrs := make([]interface{}, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, errors.QueryExecutionError(query, err)
		}

		for i, v := range values {
			// Drivers hand back text columns as raw bytes
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.QueryExecutionError(query, err)
	}

	return rs, nil
}

// TestConnection tests the database connection
func (s *Service) TestConnection(ctx context.Context) error {
	if !s.connected {
		if err := s.Connect(ctx); err != nil {
			return err
		}
	}

	pingCtx, cancel := s.getContext(ctx)
	defer cancel()

	return s.db.PingContext(pingCtx)
}

func (s *Service) getContext(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := s.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}
