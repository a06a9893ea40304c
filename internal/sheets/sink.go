package sheets

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/sheets/v4"

	"kpisync/internal/observability"
	"kpisync/internal/report"
	apperrors "kpisync/pkg/errors"
)

// Options tune the sink.
type Options struct {
	// ShareWithAnyone grants writer access to anyone with the link when a
	// spreadsheet is created.
	ShareWithAnyone bool
	// Annotate prepends an "Updated <time> Rows <n>" row above the header.
	Annotate bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Sink writes result sets into Google Sheets. Each sheet write is a single
// batch update, which the API applies atomically.
type Sink struct {
	api     API
	options Options
	logger  *observability.Logger

	mu         sync.Mutex
	containers map[string]report.Container

	idMu     sync.Mutex
	reserved map[string]map[int64]bool
}

// NewSink creates a sink over api.
func NewSink(api API, options Options, logger *observability.Logger) *Sink {
	if options.Now == nil {
		options.Now = time.Now
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Sink{
		api:        api,
		options:    options,
		logger:     logger,
		containers: make(map[string]report.Container),
		reserved:   make(map[string]map[int64]bool),
	}
}

// ResolveContainer opens the spreadsheet called name, creating it when it does
// not exist. Results are cached so each name is created at most once.
func (s *Sink) ResolveContainer(ctx context.Context, name string) (report.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.containers[name]; ok {
		return c, nil
	}

	id, err := s.api.FindSpreadsheet(ctx, name)
	if err != nil {
		return report.Container{}, apperrors.ContainerResolutionError(name, err)
	}

	c := report.Container{ID: id, Name: name, URL: spreadsheetURL(id)}
	if id == "" {
		id, url, err := s.api.CreateSpreadsheet(ctx, name)
		if err != nil {
			return report.Container{}, apperrors.ContainerResolutionError(name, err)
		}
		c = report.Container{ID: id, Name: name, URL: url}
		s.logger.WithFields(map[string]interface{}{"spreadsheet": name, "id": id}).Info("created spreadsheet")

		if s.options.ShareWithAnyone {
			if err := s.api.ShareWithAnyone(ctx, id); err != nil {
				return report.Container{}, apperrors.ContainerResolutionError(name, err)
			}
		}
	}

	s.containers[name] = c
	return c, nil
}

// WriteSheet replaces the contents of sheetName with rs, creating the sheet
// when it is missing.
func (s *Sink) WriteSheet(ctx context.Context, container report.Container, sheetName string, rs *report.ResultSet) error {
	props, err := s.api.SheetProperties(ctx, container.ID)
	if err != nil {
		return apperrors.SinkWriteError(sheetName, err)
	}

	rows := s.buildRows(rs)
	rowCount, colCount := gridSize(rows)

	var requests []*sheets.Request
	existing := findSheet(props, sheetName)
	sheetID := int64(0)

	if existing != nil {
		sheetID = existing.SheetId
		requests = append(requests,
			&sheets.Request{UpdateCells: &sheets.UpdateCellsRequest{
				Range:  gridRange(sheetID),
				Fields: "userEnteredValue",
			}},
			&sheets.Request{UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:         sheetID,
					Title:           sheetName,
					GridProperties:  &sheets.GridProperties{RowCount: rowCount, ColumnCount: colCount},
					ForceSendFields: []string{"SheetId"},
				},
				Fields: "title,gridProperties(rowCount,columnCount)",
			}},
		)
	} else {
		sheetID = s.reserveSheetID(container.ID, props, sheetName)
		requests = append(requests, &sheets.Request{AddSheet: &sheets.AddSheetRequest{
			Properties: &sheets.SheetProperties{
				SheetId:         sheetID,
				Title:           sheetName,
				GridProperties:  &sheets.GridProperties{RowCount: rowCount, ColumnCount: colCount},
				ForceSendFields: []string{"SheetId"},
			},
		}})
	}

	if len(rows) > 0 {
		requests = append(requests, &sheets.Request{UpdateCells: &sheets.UpdateCellsRequest{
			Start: &sheets.GridCoordinate{
				SheetId:         sheetID,
				ForceSendFields: []string{"SheetId", "RowIndex", "ColumnIndex"},
			},
			Rows:   rows,
			Fields: "userEnteredValue",
		}})
	}

	err = s.api.BatchUpdate(ctx, container.ID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests})
	if err != nil {
		return apperrors.SinkWriteError(sheetName, err).WithContext("spreadsheet", container.Name)
	}

	s.logger.WithFields(map[string]interface{}{
		"sheet":   sheetName,
		"rows":    rs.RowCount(),
		"created": existing == nil,
	}).Debug("sheet updated")
	return nil
}

// buildRows lays out the optional annotation, the header and the data rows.
func (s *Sink) buildRows(rs *report.ResultSet) []*sheets.RowData {
	var rows []*sheets.RowData
	if s.options.Annotate {
		rows = append(rows, rowData([]interface{}{
			"Updated", s.options.Now().UTC().Format(time.RFC3339),
			"Rows", rs.RowCount(),
		}))
	}

	if len(rs.Columns) == 0 {
		return rows
	}

	header := make([]interface{}, len(rs.Columns))
	for i, c := range rs.Columns {
		header[i] = c
	}
	rows = append(rows, rowData(header))
	for _, r := range rs.Rows {
		rows = append(rows, rowData(r))
	}
	return rows
}

func gridSize(rows []*sheets.RowData) (int64, int64) {
	rowCount, colCount := int64(len(rows)), int64(0)
	for _, r := range rows {
		if n := int64(len(r.Values)); n > colCount {
			colCount = n
		}
	}
	// A sheet needs at least one cell.
	if rowCount == 0 {
		rowCount = 1
	}
	if colCount == 0 {
		colCount = 1
	}
	return rowCount, colCount
}

// findSheet matches titles case-insensitively, as the Sheets API does when it
// enforces unique sheet names.
func findSheet(props []*sheets.SheetProperties, title string) *sheets.SheetProperties {
	for _, p := range props {
		if strings.EqualFold(p.Title, title) {
			return p
		}
	}
	return nil
}

// reserveSheetID picks the ID for a new sheet. IDs handed out earlier for the
// same spreadsheet stay reserved, so concurrent adds working from the same
// properties snapshot never share one.
func (s *Sink) reserveSheetID(spreadsheetID string, props []*sheets.SheetProperties, title string) int64 {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	taken := s.reserved[spreadsheetID]
	if taken == nil {
		taken = make(map[int64]bool)
		s.reserved[spreadsheetID] = taken
	}
	id := newSheetID(props, taken, title)
	taken[id] = true
	return id
}

// newSheetID derives a stable ID from the title so the add and the write can
// share one batch. IDs of existing sheets and reserved IDs are probed past.
func newSheetID(props []*sheets.SheetProperties, reserved map[int64]bool, title string) int64 {
	used := make(map[int64]bool, len(props)+len(reserved))
	for _, p := range props {
		used[p.SheetId] = true
	}
	for id := range reserved {
		used[id] = true
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(title))
	id := int64(h.Sum32() & 0x7fffffff)
	if id == 0 {
		id = 1
	}
	for used[id] {
		id = id%0x7fffffff + 1
	}
	return id
}

func gridRange(sheetID int64) *sheets.GridRange {
	return &sheets.GridRange{SheetId: sheetID, ForceSendFields: []string{"SheetId"}}
}

func spreadsheetURL(id string) string {
	if id == "" {
		return ""
	}
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s", id)
}
