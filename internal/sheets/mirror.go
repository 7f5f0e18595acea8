package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Mirror is the external tabular store a table is published to.
type Mirror interface {
	// Fetch returns the published cells for key; a missing destination yields no rows.
	Fetch(ctx context.Context, key string) ([][]string, error)
	// Publish replaces the destination's contents with rows.
	Publish(ctx context.Context, rows [][]string, key string) error
}

// GoogleMirror publishes tables as worksheets of one Google spreadsheet.
type GoogleMirror struct {
	service       *gsheets.Service
	spreadsheetID string
}

// NewGoogleMirror creates a Sheets API client authenticated with a service account file.
func NewGoogleMirror(ctx context.Context, credentialsFile, spreadsheetID string) (*GoogleMirror, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id required")
	}
	service, err := gsheets.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &GoogleMirror{service: service, spreadsheetID: spreadsheetID}, nil
}

func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// sheetID looks up the worksheet titled key.
func (g *GoogleMirror) sheetID(ctx context.Context, key string) (int64, bool, error) {
	ss, err := g.service.Spreadsheets.Get(g.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == key {
			return sh.Properties.SheetId, true, nil
		}
	}
	return 0, false, nil
}

// Fetch implements Mirror.
func (g *GoogleMirror) Fetch(ctx context.Context, key string) ([][]string, error) {
	_, ok, err := g.sheetID(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	resp, err := g.service.Spreadsheets.Values.Get(g.spreadsheetID, quoteTitle(key)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	records := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		record := make([]string, 0, len(row))
		for _, cell := range row {
			if s, ok := cell.(string); ok {
				record = append(record, s)
			} else {
				record = append(record, fmt.Sprintf("%v", cell))
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// Publish implements Mirror: the worksheet is created when missing, cleared,
// then written from A1 with a bold header row.
func (g *GoogleMirror) Publish(ctx context.Context, rows [][]string, key string) error {
	id, ok, err := g.sheetID(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		if id, err = g.addSheet(ctx, key); err != nil {
			return err
		}
	}

	if _, err := g.service.Spreadsheets.Values.Clear(g.spreadsheetID, quoteTitle(key), &gsheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}

	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = make([]interface{}, len(row))
		for j, cell := range row {
			values[i][j] = cell
		}
	}
	_, err = g.service.Spreadsheets.Values.Update(g.spreadsheetID, quoteTitle(key)+"!A1", &gsheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	if len(rows) == 0 {
		return nil
	}
	_, err = g.service.Spreadsheets.BatchUpdate(g.spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			RepeatCell: &gsheets.RepeatCellRequest{
				Range: &gsheets.GridRange{SheetId: id, StartRowIndex: 0, EndRowIndex: 1},
				Cell: &gsheets.CellData{UserEnteredFormat: &gsheets.CellFormat{
					TextFormat:      &gsheets.TextFormat{Bold: true},
					BackgroundColor: &gsheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
				}},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("format header %s: %w", key, err)
	}
	return nil
}

func (g *GoogleMirror) addSheet(ctx context.Context, key string) (int64, error) {
	resp, err := g.service.Spreadsheets.BatchUpdate(g.spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{Properties: &gsheets.SheetProperties{
				Title:          key,
				GridProperties: &gsheets.GridProperties{RowCount: 1000, ColumnCount: 50},
			}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("create worksheet %s: %w", key, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("create worksheet %s: empty reply", key)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

// Memory is an in-process Mirror, used in tests and when no spreadsheet is configured.
type Memory struct {
	mu     sync.Mutex
	tables map[string][][]string
}

// NewMemory returns an empty in-process mirror.
func NewMemory() *Memory {
	return &Memory{tables: map[string][][]string{}}
}

// Fetch implements Mirror.
func (m *Memory) Fetch(_ context.Context, key string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRows(m.tables[key]), nil
}

// Publish implements Mirror.
func (m *Memory) Publish(_ context.Context, rows [][]string, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[key] = copyRows(rows)
	return nil
}

// Keys lists the published destinations.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.tables))
	for k := range m.tables {
		keys = append(keys, k)
	}
	return keys
}

func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
