package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	ports "cassa/internal/sheets"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const maxSheetTitle = 100

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Cassa"); code prefixes year and month.
	sheetBase string
}

var _ ports.MonthWriter = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SHEET_NAME (default "Cassa").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if base == "" {
		base = "Cassa"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: base}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// WriteMonth writes the report into its own tab ("<year>-<mm> <base> <group>"),
// creating the tab when missing and replacing any earlier export.
func (c *Client) WriteMonth(ctx context.Context, r ports.MonthReport) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if r.Summary.Month < 1 || r.Summary.Month > 12 {
		return "", fmt.Errorf("invalid month: %d", r.Summary.Month)
	}

	title := sheetTitle(c.sheetBase, r.GroupName, r.Summary.Year, r.Summary.Month)
	if err := c.ensureSheet(ctx, title); err != nil {
		return "", err
	}

	rng := fmt.Sprintf("'%s'!A:H", title)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", rng, err)
	}

	rows := monthRows(r)
	target := fmt.Sprintf("'%s'!A1:H%d", title, len(rows))
	vr := &gsheet.ValueRange{Values: rows}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, target, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", target, err)
	}
	return target, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", title, err)
	}
	return nil
}

// sheetTitle returns "<year>-<mm> <base> <group>", trimmed to the Sheets limit.
func sheetTitle(base, group string, year, month int) string {
	parts := []string{fmt.Sprintf("%04d-%02d", year, month)}
	if b := strings.TrimSpace(base); b != "" {
		parts = append(parts, b)
	}
	if g := strings.TrimSpace(group); g != "" {
		parts = append(parts, strings.NewReplacer("'", "", "!", "").Replace(g))
	}
	t := strings.Join(parts, " ")
	if len(t) > maxSheetTitle {
		t = t[:maxSheetTitle]
	}
	return t
}

// monthRows lays the report out as sections separated by a blank row.
// Amounts are plain numbers so the sheet can sum them.
func monthRows(r ports.MonthReport) [][]any {
	s := r.Summary
	rows := [][]any{
		{"Summary", fmt.Sprintf("%04d-%02d", s.Year, s.Month)},
		{"Income", num(s.Income)},
		{"Expected income", num(s.ExpectedIncome)},
		{"Expenses", num(s.Expenses)},
		{"Installments due", num(s.InstallmentsDue)},
		{"Installments paid", num(s.InstallmentsPaid)},
		{"Balance", num(s.Balance())},
		{"Pending tasks", s.PendingTasks},
		{},
		{"Card", "Due date", "Paid", "Amount", "Expenses"},
	}
	for _, b := range s.Cards {
		rows = append(rows, []any{b.CardName, b.DueDate.String(), yesNo(b.Paid), num(b.Amount), num(b.Expenses)})
	}

	rows = append(rows, []any{}, []any{"Installment", "Transaction", "Due", "Amount", "Paid"})
	for _, in := range r.Installments {
		rows = append(rows, []any{
			fmt.Sprintf("%d/%d", in.SequenceNumber, in.TotalInstallments),
			in.TransactionID,
			fmt.Sprintf("%04d-%02d", in.DueYear, in.DueMonth),
			num(in.Amount),
			yesNo(in.Paid),
		})
	}

	rows = append(rows, []any{}, []any{"Date", "Description", "Category", "Amount", "Kind", "Card"})
	for _, e := range r.Income {
		rows = append(rows, []any{e.Date.String(), e.Description, e.Category, num(e.Amount), "income", ""})
	}
	for _, e := range r.Expenses {
		card := ""
		if e.CardName != nil {
			card = *e.CardName
		}
		rows = append(rows, []any{e.Date.String(), e.Description, e.Category, num(e.Amount), "expense", card})
	}
	return rows
}

func num(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
