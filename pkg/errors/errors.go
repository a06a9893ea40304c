package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "KPIS1001"
	ErrCodeConnectionTimeout    ErrorCode = "KPIS1002"
	ErrCodeAuthenticationFailed ErrorCode = "KPIS1003"
	ErrCodeNetworkUnavailable   ErrorCode = "KPIS1004"
	ErrCodeDownloadFailed       ErrorCode = "KPIS1005"
	ErrCodeContainerResolution  ErrorCode = "KPIS1006"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound      ErrorCode = "KPIS2001"
	ErrCodeConfigInvalid       ErrorCode = "KPIS2002"
	ErrCodeConfigMissing       ErrorCode = "KPIS2003"
	ErrCodeInvalidCatalog      ErrorCode = "KPIS2004"
	ErrCodeDuplicateReportName ErrorCode = "KPIS2005"

	// Query errors (4xxx)
	ErrCodeSQLPermission     ErrorCode = "KPIS4002"
	ErrCodeSQLTimeout        ErrorCode = "KPIS4003"
	ErrCodeSQLObjectNotFound ErrorCode = "KPIS4005"
	ErrCodeQueryExecution    ErrorCode = "KPIS4006"
	ErrCodeLoadFailed        ErrorCode = "KPIS4007"
	ErrCodeNoResults         ErrorCode = "KPIS4008"

	// Sink errors (5xxx)
	ErrCodeFileNotFound   ErrorCode = "KPIS5001"
	ErrCodeFileCorrupted  ErrorCode = "KPIS5003"
	ErrCodeSinkWrite      ErrorCode = "KPIS5006"
	ErrCodeInvalidResults ErrorCode = "KPIS5007"

	// Validation errors (6xxx)
	ErrCodeValidationFailed ErrorCode = "KPIS6001"
	ErrCodeInvalidInput     ErrorCode = "KPIS6002"
	ErrCodeRequiredField    ErrorCode = "KPIS6003"
	ErrCodeAuditFailed      ErrorCode = "KPIS6004"
	ErrCodeMissingParameter ErrorCode = "KPIS6005"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "KPIS9001"
	ErrCodeTimeout            ErrorCode = "KPIS9002"
	ErrCodeResourceExhausted  ErrorCode = "KPIS9003"
	ErrCodeServiceUnavailable ErrorCode = "KPIS9004"
	ErrCodeCancelled          ErrorCode = "KPIS9008"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // Whole pass aborted
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed, but the pass continues
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
	SeverityInfo     ErrorSeverity = "INFO"     // Informational, not an error
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Detail is the single-line form used in run reports and sheet cells.
func (e *AppError) Detail() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, firstLine(e.Cause.Error()))
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Context:     make(map[string]interface{}),
		Stack:       captureStack(),
		Timestamp:   time.Now(),
		Recoverable: false,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// Keep the context of a wrapped AppError
	if ae, ok := err.(*AppError); ok {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

// captureStack captures the current stack trace
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Report pipeline errors

// DuplicateReportName is raised while building a catalog, before anything runs.
func DuplicateReportName(name string) *AppError {
	return New(ErrCodeDuplicateReportName, fmt.Sprintf("duplicate report name %q", name)).
		WithContext("report", name).
		WithSeverity(SeverityCritical).
		WithSuggestions("Report names double as sheet names and must be unique")
}

// MissingParameter reports a template placeholder with no value.
func MissingParameter(placeholder, reportName string) *AppError {
	return New(ErrCodeMissingParameter, fmt.Sprintf("missing parameter {%s} for report %q", placeholder, reportName)).
		WithContext("placeholder", placeholder).
		WithContext("report", reportName).
		WithSuggestions(fmt.Sprintf("Add %q under 'parameters' in the configuration", placeholder))
}

// QueryExecutionError wraps any data source failure. The code is always
// ErrCodeQueryExecution and the cause is kept as-is; a recognised cause only
// adds a "hint" context entry and suggestions.
func QueryExecutionError(query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeQueryExecution, "query execution failed").
		WithContext("query", truncateString(query, 200))

	msg := strings.ToLower(cause.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "access denied"):
		_ = err.WithContext("hint", string(ErrCodeSQLPermission)).WithSuggestions(
			"Check the service account has the BigQuery Data Viewer and Job User roles",
			"Verify the project and dataset names",
		)
	case strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist"):
		_ = err.WithContext("hint", string(ErrCodeSQLObjectNotFound)).WithSuggestions(
			"Verify the referenced tables exist",
			"Check for renamed columns in the report query",
		)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		_ = err.WithContext("hint", string(ErrCodeSQLTimeout)).AsRecoverable()
	}

	return err
}

// SinkWriteError reports a failed sheet write.
func SinkWriteError(sheetName string, cause error) *AppError {
	return Wrap(cause, ErrCodeSinkWrite, fmt.Sprintf("failed to write sheet %q", sheetName)).
		WithContext("sheet", sheetName)
}

// ContainerResolutionError aborts a whole pass.
func ContainerResolutionError(container string, cause error) *AppError {
	return Wrap(cause, ErrCodeContainerResolution, fmt.Sprintf("failed to resolve spreadsheet %q", container)).
		WithContext("container", container).
		WithSeverity(SeverityCritical).
		WithSuggestions(
			"Check the spreadsheet credentials",
			"Verify the Sheets and Drive APIs are enabled for the project",
		)
}

// ConnectionError creates a connection-related error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSeverity(SeverityError).
		WithSuggestions(
			"Check your network connection",
			"Verify the warehouse endpoint is accessible",
		)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'kpisync init' to create a configuration",
		)
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning)
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Detail returns the one-line description of any error.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Detail()
	}
	return firstLine(err.Error())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
