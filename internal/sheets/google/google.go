package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fundledger/internal/core"
	"fundledger/internal/export"
	ports "fundledger/internal/sheets"
)

var (
	_ ports.OperationWriter = (*Client)(nil)
	_ ports.HeaderWriter    = (*Client)(nil)
)

type Config struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string

	// OAuth user credentials, used instead of the service account when an
	// OAuth client is configured.
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenFile  string

	Location *time.Location
}

func (c Config) usesOAuth() bool {
	return strings.TrimSpace(c.OAuthClientJSON) != "" || strings.TrimSpace(c.OAuthClientFile) != ""
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location
}

// New creates a Sheets client authenticated with OAuth user credentials when
// an OAuth client is configured, with a service account otherwise.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	var opts []goption.ClientOption
	if cfg.usesOAuth() {
		httpClient, err := oauthHTTPClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, goption.WithHTTPClient(httpClient))
	} else {
		creds, err := credentials(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "component", "sheets", "sheet", cfg.SheetName)
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName, cfg.Location), nil
}

// NewWithService wraps an already configured service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string, loc *time.Location) *Client {
	if sheetName == "" {
		sheetName = "Operations"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName, loc: loc}
}

func credentials(cfg Config) ([]byte, error) {
	if js := strings.TrimSpace(cfg.CredentialsJSON); js != "" {
		return []byte(js), nil
	}
	path := strings.TrimSpace(cfg.CredentialsFile)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// EnsureHeader writes the column header into row 1 when it is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A1:G1", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header %s: %w", rng, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	header := make([]any, len(export.Header))
	for i, h := range export.Header {
		header[i] = h
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header %s: %w", rng, err)
	}
	return nil
}

// AppendOperation adds the operation after the last row of the sheet.
func (c *Client) AppendOperation(ctx context.Context, op core.Operation) (string, error) {
	if op.ID <= 0 {
		return "", errors.New("operation has no id")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:G", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{rowValues(op, c.loc)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// rowValues keeps numeric columns numeric so the sheet can sum them.
func rowValues(op core.Operation, loc *time.Location) []any {
	rec := export.Record(op, loc)
	vals := make([]any, len(rec))
	for i, v := range rec {
		vals[i] = v
	}
	vals[0] = op.ID
	vals[2] = op.Amount
	vals[6] = op.CreatedByID
	return vals
}
