package report

import (
	"context"
	"sync"
)

// MemorySink keeps written sheets in memory. It backs dry runs and tests.
type MemorySink struct {
	mu         sync.Mutex
	containers map[string]map[string]*ResultSet
	order      map[string][]string
	created    int
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		containers: make(map[string]map[string]*ResultSet),
		order:      make(map[string][]string),
	}
}

func (m *MemorySink) ResolveContainer(_ context.Context, name string) (Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.containers[name]; !ok {
		m.containers[name] = make(map[string]*ResultSet)
		m.created++
	}
	return Container{ID: name, Name: name}, nil
}

// WriteSheet stores a copy of rs, replacing any previous contents.
func (m *MemorySink) WriteSheet(_ context.Context, container Container, sheetName string, rs *ResultSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sheets, ok := m.containers[container.ID]
	if !ok {
		sheets = make(map[string]*ResultSet)
		m.containers[container.ID] = sheets
	}
	if _, exists := sheets[sheetName]; !exists {
		m.order[container.ID] = append(m.order[container.ID], sheetName)
	}
	sheets[sheetName] = copyResultSet(rs)
	return nil
}

// Sheet returns the stored contents of one sheet.
func (m *MemorySink) Sheet(container, sheetName string) (*ResultSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, ok := m.containers[container][sheetName]
	return rs, ok
}

// SheetNames lists sheets of a container in first-write order.
func (m *MemorySink) SheetNames(container string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.order[container]...)
}

// Created counts containers created since the sink was made.
func (m *MemorySink) Created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

func copyResultSet(rs *ResultSet) *ResultSet {
	out := &ResultSet{
		Columns: append([]string(nil), rs.Columns...),
		Rows:    make([][]interface{}, len(rs.Rows)),
	}
	for i, row := range rs.Rows {
		out.Rows[i] = append([]interface{}(nil), row...)
	}
	return out
}
