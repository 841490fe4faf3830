// Package google implements the balance report export against the Google
// Sheets API using service account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "bilancio/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.BalanceExporter = (*Client)(nil)

// New creates a Sheets client with explicit credentials. Exactly one of
// credentialsJSON or credentialsFile must be set.
func New(ctx context.Context, spreadsheetID, sheetName, credentialsFile, credentialsJSON string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Balances"
	}

	var opts []goption.ClientOption
	switch {
	case credentialsJSON != "":
		opts = append(opts, goption.WithCredentialsJSON([]byte(credentialsJSON)))
	case credentialsFile != "":
		opts = append(opts, goption.WithCredentialsFile(credentialsFile))
	default:
		return nil, errors.New("missing Google credentials")
	}
	opts = append(opts, goption.WithScopes(gsheet.SpreadsheetsScope))

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// NewFromEnv creates a Sheets client from GOOGLE_SPREADSHEET_ID,
// GOOGLE_SHEET_NAME, and GOOGLE_CREDENTIALS_FILE / GOOGLE_CREDENTIALS_JSON.
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx,
		strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME")),
		strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_FILE")),
		strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_JSON")))
}

// ExportBalances replaces the report sheet's contents with the given rows.
func (c *Client) ExportBalances(ctx context.Context, userID string, rows []ports.BalanceRow) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	values := [][]any{
		{"User", "Category", "Month", "Opening", "Deposits", "Withdrawals", "Closing"},
	}
	for _, row := range rows {
		b := row.Balance
		values = append(values, []any{
			userID,
			row.CategoryName,
			b.MonthYear,
			b.OpeningBalance.String(),
			b.TotalDeposits.String(),
			b.TotalWithdrawals.String(),
			b.ClosingBalance.String(),
		})
	}

	clearRange := fmt.Sprintf("%s!A:G", c.sheetName)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", c.sheetName, err)
	}

	dataRange := fmt.Sprintf("%s!A1:G%d", c.sheetName, len(values))
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update sheet %s: %w", c.sheetName, err)
	}

	return nil
}
