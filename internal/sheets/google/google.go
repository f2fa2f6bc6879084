package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cashflow/internal/core"
	applog "cashflow/internal/log"
	ports "cashflow/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Ensure interface conformance
var _ ports.TransactionExporter = (*Client)(nil)

// valuesAPI is the subset of the Sheets values service the exporter needs.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error
	Clear(ctx context.Context, spreadsheetID, rng string) error
}

type Config struct {
	SpreadsheetID string
	ExpensesSheet string
	IncomeSheet   string
	// Location renders the date column; nil means time.Local.
	Location *time.Location
}

type Client struct {
	values        valuesAPI
	spreadsheetID string
	sheetNames    map[core.Kind]string
	loc           *time.Location
}

// New creates a Sheets exporter using Service Account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(&serviceValues{svc: svc}, cfg), nil
}

func newClient(values valuesAPI, cfg Config) *Client {
	expenses := strings.TrimSpace(cfg.ExpensesSheet)
	if expenses == "" {
		expenses = "Expenses"
	}
	income := strings.TrimSpace(cfg.IncomeSheet)
	if income == "" {
		income = "Income"
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Client{
		values:        values,
		spreadsheetID: cfg.SpreadsheetID,
		sheetNames: map[core.Kind]string{
			core.KindExpense: expenses,
			core.KindIncome:  income,
		},
		loc: loc,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := loadCredentials()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		applog.FieldComponent, applog.ComponentSheets,
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func loadCredentials() ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (c *Client) sheetName(kind core.Kind) (string, error) {
	name, ok := c.sheetNames[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	return name, nil
}

// Export writes tx to its kind's tab, updating the row whose id column matches
// or appending a new row.
func (c *Client) Export(ctx context.Context, tx core.Transaction) error {
	sheet, err := c.sheetName(tx.Kind)
	if err != nil {
		return err
	}

	ids, err := c.values.Get(ctx, c.spreadsheetID, fmt.Sprintf("%s!A:A", sheet))
	if err != nil {
		return fmt.Errorf("read ids from %s: %w", sheet, err)
	}

	row := findRow(ids, tx.ID)
	if row == 0 {
		if len(ids) == 0 {
			if err := c.values.Update(ctx, c.spreadsheetID, fmt.Sprintf("%s!A1:E1", sheet), [][]any{headerRow()}); err != nil {
				return fmt.Errorf("write header to %s: %w", sheet, err)
			}
			row = 2
		} else {
			row = len(ids) + 1
		}
	}

	rng := fmt.Sprintf("%s!A%d:E%d", sheet, row, row)
	if err := c.values.Update(ctx, c.spreadsheetID, rng, [][]any{c.toRow(tx)}); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Transaction exported",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldTransactionID, tx.ID,
		applog.FieldKind, tx.Kind,
		applog.FieldSheetsRef, rng)
	return nil
}

// ExportAll replaces the content of kind's tab with a header followed by txs.
func (c *Client) ExportAll(ctx context.Context, kind core.Kind, txs []core.Transaction) error {
	sheet, err := c.sheetName(kind)
	if err != nil {
		return err
	}

	if err := c.values.Clear(ctx, c.spreadsheetID, fmt.Sprintf("%s!A:E", sheet)); err != nil {
		return fmt.Errorf("clear %s: %w", sheet, err)
	}

	values := make([][]any, 0, len(txs)+1)
	values = append(values, headerRow())
	for _, tx := range txs {
		values = append(values, c.toRow(tx))
	}
	rng := fmt.Sprintf("%s!A1:E%d", sheet, len(values))
	if err := c.values.Update(ctx, c.spreadsheetID, rng, values); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Tab rewritten",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldKind, kind,
		applog.FieldCount, len(txs),
		applog.FieldSheetsRef, rng)
	return nil
}

func (c *Client) toRow(tx core.Transaction) []any {
	return []any{
		tx.ID,
		tx.Time(c.loc).Format("2006-01-02"),
		tx.MonthBucket,
		tx.Category,
		tx.Amount.Float(),
	}
}

func headerRow() []any {
	row := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		row[i] = h
	}
	return row
}

// findRow returns the 1-based row holding id, or 0. Row 1 is the header.
func findRow(ids [][]any, id string) int {
	for i, row := range ids {
		if i == 0 || len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return 0
}

// serviceValues adapts gsheet.Service to valuesAPI.
type serviceValues struct {
	svc *gsheet.Service
}

func (s *serviceValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *serviceValues) Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	vr := &gsheet.ValueRange{Values: values}
	_, err := s.svc.Spreadsheets.Values.Update(spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *serviceValues) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}
