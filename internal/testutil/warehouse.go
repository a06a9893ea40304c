package testutil

import (
	"context"
	"io"
	"strings"
	"sync"

	"kpisync/internal/report"
)

type rule struct {
	contains string
	result   *report.ResultSet
	err      error
}

// Warehouse is a scripted data source. Each query is answered by the first
// rule whose substring it contains, else by Fallback, else with an empty
// result.
type Warehouse struct {
	// Fallback answers queries no rule matched.
	Fallback func(query string) *report.ResultSet

	mu      sync.Mutex
	rules   []rule
	queries []string
	params  []map[string]interface{}
	loads   map[string]string
	closed  bool
}

// NewWarehouse creates an empty scripted warehouse.
func NewWarehouse() *Warehouse {
	return &Warehouse{loads: make(map[string]string)}
}

// On answers queries containing substr with rs.
func (w *Warehouse) On(substr string, rs *report.ResultSet) *Warehouse {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rules = append(w.rules, rule{contains: substr, result: rs})
	return w
}

// Fail answers queries containing substr with err.
func (w *Warehouse) Fail(substr string, err error) *Warehouse {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rules = append(w.rules, rule{contains: substr, err: err})
	return w
}

func (w *Warehouse) Execute(ctx context.Context, query string) (*report.ResultSet, error) {
	return w.Query(ctx, query, nil)
}

func (w *Warehouse) Query(_ context.Context, query string, params map[string]interface{}) (*report.ResultSet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queries = append(w.queries, query)
	w.params = append(w.params, params)

	for _, r := range w.rules {
		if strings.Contains(query, r.contains) {
			return r.result, r.err
		}
	}
	if w.Fallback != nil {
		return w.Fallback(query), nil
	}
	return &report.ResultSet{}, nil
}

// LoadCSV records the CSV body under "dataset.table" and returns its data row count.
func (w *Warehouse) LoadCSV(_ context.Context, dataset, table string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.loads[dataset+"."+table] = string(data)

	lines := strings.Count(string(data), "\n")
	if lines == 0 {
		return 0, nil
	}
	return int64(lines - 1), nil
}

func (w *Warehouse) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// Queries returns every statement received, in order.
func (w *Warehouse) Queries() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.queries...)
}

// Params returns the parameters of the i-th statement.
func (w *Warehouse) Params(i int) map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.params[i]
}

// Loaded returns the CSV loaded into dataset.table.
func (w *Warehouse) Loaded(dataset, table string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.loads[dataset+"."+table]
	return data, ok
}

func (w *Warehouse) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Rows builds a result set from columns and rows.
func Rows(columns []string, rows ...[]interface{}) *report.ResultSet {
	return &report.ResultSet{Columns: columns, Rows: rows}
}

// Count is a one-cell result holding n.
func Count(n int64) *report.ResultSet {
	return Rows([]string{"n"}, []interface{}{n})
}
