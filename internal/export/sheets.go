// Package export publishes settlement reports to Google Sheets.
package export

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"conti/internal/services"
)

// SheetsWriter writes settlement reports using the Google Sheets API.
type SheetsWriter struct {
	spreadsheetID string
	sheetName     string
	svc           *sheets.Service
}

// NewSheetsWriter creates a SheetsWriter authenticated with a service account JSON.
func NewSheetsWriter(ctx context.Context, spreadsheetID, sheetName, credentialsJSON string) (*SheetsWriter, error) {
	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(credentialsJSON),
		sheets.SpreadsheetsScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &SheetsWriter{
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		svc:           svc,
	}, nil
}

// WriteReport appends one block per call: a period header, the per-partner
// balances and the suggested transfers.
func (w *SheetsWriter) WriteReport(ctx context.Context, report *services.SettlementReport) error {
	if err := w.ensureSheet(ctx, w.sheetName); err != nil {
		return err
	}

	values := buildReportRows(report)

	_, err := w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		fmt.Sprintf("%s!A1", w.sheetName),
		&sheets.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending settlement report: %w", err)
	}

	return nil
}

// buildReportRows lays the report out as spreadsheet rows.
// Columns: Partner | Paid | Owed | Net, then Transfer | From | To | Amount.
func buildReportRows(report *services.SettlementReport) [][]any {
	data := [][]any{
		{
			"Settlement",
			report.HouseholdID,
			report.From.Format("2006-01-02"),
			report.To.Format("2006-01-02"),
			report.Total.Format(),
		},
		{"Partner", "Paid", "Owed", "Net"},
	}

	for _, b := range report.Balances {
		data = append(data, []any{
			b.PartnerID,
			b.Paid.Format(),
			b.Owed.Format(),
			b.Net.Format(),
		})
	}

	if len(report.Transfers) > 0 {
		data = append(data, []any{"Transfer", "From", "To", "Amount"})
		for i, tr := range report.Transfers {
			data = append(data, []any{
				i + 1,
				tr.FromPartnerID,
				tr.ToPartnerID,
				tr.Amount.Format(),
			})
		}
	}

	return data
}

// ensureSheet creates the named sheet if it does not already exist.
func (w *SheetsWriter) ensureSheet(ctx context.Context, name string) error {
	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting spreadsheet metadata: %w", err)
	}

	for _, s := range spreadsheet.Sheets {
		if s.Properties.Title == name {
			return nil
		}
	}

	_, err = w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: name},
				},
			}},
		},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("creating sheet %s: %w", name, err)
	}

	return nil
}
