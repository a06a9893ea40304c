package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/sheets/v4"
)

type fakeSheet struct {
	props sheets.SheetProperties
	cells [][]interface{}
}

type fakeSpreadsheet struct {
	name   string
	shared bool
	sheets []*fakeSheet
}

// fakeAPI keeps spreadsheets in memory and applies batch updates all or
// nothing, like the real service.
type fakeAPI struct {
	mu           sync.Mutex
	spreadsheets map[string]*fakeSpreadsheet
	nextID       int

	findErr   error
	createErr error
	shareErr  error
	batchErr  error

	finds   int
	creates int
	batches int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{spreadsheets: make(map[string]*fakeSpreadsheet)}
}

// addSpreadsheet seeds a spreadsheet with the default 4x4 "Sheet1" (ID 0).
func (f *fakeAPI) addSpreadsheet(name string) string {
	f.nextID++
	id := fmt.Sprintf("ss-%d", f.nextID)
	f.spreadsheets[id] = &fakeSpreadsheet{
		name:   name,
		sheets: []*fakeSheet{newFakeSheet(0, "Sheet1", 4, 4)},
	}
	return id
}

func newFakeSheet(id int64, title string, rows, cols int64) *fakeSheet {
	s := &fakeSheet{props: sheets.SheetProperties{
		SheetId:        id,
		Title:          title,
		GridProperties: &sheets.GridProperties{RowCount: rows, ColumnCount: cols},
	}}
	s.resize(rows, cols)
	return s
}

func (s *fakeSheet) resize(rows, cols int64) {
	grid := make([][]interface{}, rows)
	for r := range grid {
		grid[r] = make([]interface{}, cols)
		if r < len(s.cells) {
			copy(grid[r], s.cells[r])
		}
	}
	s.cells = grid
	s.props.GridProperties = &sheets.GridProperties{RowCount: rows, ColumnCount: cols}
}

func (f *fakeAPI) FindSpreadsheet(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	if f.findErr != nil {
		return "", f.findErr
	}
	for id, ss := range f.spreadsheets {
		if ss.name == name {
			return id, nil
		}
	}
	return "", nil
}

func (f *fakeAPI) CreateSpreadsheet(_ context.Context, name string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", "", f.createErr
	}
	id := f.addSpreadsheet(name)
	return id, "https://docs.google.com/spreadsheets/d/" + id + "/edit", nil
}

func (f *fakeAPI) ShareWithAnyone(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shareErr != nil {
		return f.shareErr
	}
	f.spreadsheets[id].shared = true
	return nil
}

func (f *fakeAPI) SheetProperties(_ context.Context, id string) ([]*sheets.SheetProperties, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ss, ok := f.spreadsheets[id]
	if !ok {
		return nil, fmt.Errorf("spreadsheet %s not found", id)
	}
	var out []*sheets.SheetProperties
	for _, s := range ss.sheets {
		p := s.props
		out = append(out, &p)
	}
	return out, nil
}

func (f *fakeAPI) BatchUpdate(_ context.Context, id string, req *sheets.BatchUpdateSpreadsheetRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	if f.batchErr != nil {
		return f.batchErr
	}
	ss, ok := f.spreadsheets[id]
	if !ok {
		return fmt.Errorf("spreadsheet %s not found", id)
	}

	work := ss.clone()
	for _, r := range req.Requests {
		if err := work.apply(r); err != nil {
			return err
		}
	}
	f.spreadsheets[id] = work
	return nil
}

func (ss *fakeSpreadsheet) clone() *fakeSpreadsheet {
	out := &fakeSpreadsheet{name: ss.name, shared: ss.shared}
	for _, s := range ss.sheets {
		c := &fakeSheet{props: s.props}
		gp := *s.props.GridProperties
		c.props.GridProperties = &gp
		for _, row := range s.cells {
			c.cells = append(c.cells, append([]interface{}(nil), row...))
		}
		out.sheets = append(out.sheets, c)
	}
	return out
}

func (ss *fakeSpreadsheet) byID(id int64) (*fakeSheet, error) {
	for _, s := range ss.sheets {
		if s.props.SheetId == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no sheet with id %d", id)
}

// byTitle ignores case, like the service's sheet name uniqueness check.
func (ss *fakeSpreadsheet) byTitle(title string) *fakeSheet {
	for _, s := range ss.sheets {
		if strings.EqualFold(s.props.Title, title) {
			return s
		}
	}
	return nil
}

func (ss *fakeSpreadsheet) apply(r *sheets.Request) error {
	switch {
	case r.AddSheet != nil:
		p := r.AddSheet.Properties
		if ss.byTitle(p.Title) != nil {
			return fmt.Errorf("a sheet with the name %q already exists", p.Title)
		}
		if _, err := ss.byID(p.SheetId); err == nil {
			return fmt.Errorf("sheet id %d already exists", p.SheetId)
		}
		ss.sheets = append(ss.sheets, newFakeSheet(p.SheetId, p.Title, p.GridProperties.RowCount, p.GridProperties.ColumnCount))

	case r.UpdateSheetProperties != nil:
		p := r.UpdateSheetProperties.Properties
		s, err := ss.byID(p.SheetId)
		if err != nil {
			return err
		}
		if p.Title != "" {
			if other := ss.byTitle(p.Title); other != nil && other != s {
				return fmt.Errorf("a sheet with the name %q already exists", p.Title)
			}
			s.props.Title = p.Title
		}
		s.resize(p.GridProperties.RowCount, p.GridProperties.ColumnCount)

	case r.UpdateCells != nil && r.UpdateCells.Range != nil:
		s, err := ss.byID(r.UpdateCells.Range.SheetId)
		if err != nil {
			return err
		}
		for _, row := range s.cells {
			for c := range row {
				row[c] = nil
			}
		}

	case r.UpdateCells != nil && r.UpdateCells.Start != nil:
		start := r.UpdateCells.Start
		s, err := ss.byID(start.SheetId)
		if err != nil {
			return err
		}
		for i, row := range r.UpdateCells.Rows {
			ri := start.RowIndex + int64(i)
			if ri >= int64(len(s.cells)) {
				return fmt.Errorf("row %d exceeds grid limits", ri)
			}
			for j, cell := range row.Values {
				ci := start.ColumnIndex + int64(j)
				if ci >= int64(len(s.cells[ri])) {
					return fmt.Errorf("column %d exceeds grid limits", ci)
				}
				s.cells[ri][ci] = decode(cell.UserEnteredValue)
			}
		}

	default:
		return fmt.Errorf("unsupported request")
	}
	return nil
}

func decode(v *sheets.ExtendedValue) interface{} {
	switch {
	case v == nil:
		return nil
	case v.StringValue != nil:
		return *v.StringValue
	case v.NumberValue != nil:
		return *v.NumberValue
	case v.BoolValue != nil:
		return *v.BoolValue
	}
	return nil
}

// grid returns a copy of a sheet's cells, or nil when the sheet is missing.
func (f *fakeAPI) grid(spreadsheetID, title string) [][]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.spreadsheets[spreadsheetID].byTitle(title)
	if s == nil {
		return nil
	}
	out := make([][]interface{}, len(s.cells))
	for i, row := range s.cells {
		out[i] = append([]interface{}(nil), row...)
	}
	return out
}

// staleAPI answers SheetProperties with the first snapshot it read, like two
// writers that listed the sheets before either added one.
type staleAPI struct {
	*fakeAPI
	once     sync.Once
	snapshot []*sheets.SheetProperties
	err      error
}

func (s *staleAPI) SheetProperties(ctx context.Context, id string) ([]*sheets.SheetProperties, error) {
	s.once.Do(func() {
		s.snapshot, s.err = s.fakeAPI.SheetProperties(ctx, id)
	})
	return s.snapshot, s.err
}
