// Package sheets appends chat exchanges to a Google Sheets spreadsheet and reads them back.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// DefaultRange is the A1 range rows are appended to and read from.
const DefaultRange = "Sheet1!A:C"

// ErrNotConfigured indicates no spreadsheet ID or credentials were provided.
var ErrNotConfigured = errors.New("google sheets log is not configured")

// Config identifies the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	Range           string
}

// Log is an append-only spreadsheet log.
type Log struct {
	values *sheetsapi.SpreadsheetsValuesService
	id     string
	rng    string
	now    func() time.Time
}

// New connects to the Sheets API. Extra client options override the
// credentials in cfg, which tests use to point at a local endpoint.
func New(ctx context.Context, cfg Config, extra ...option.ClientOption) (*Log, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, fmt.Errorf("%w: set GOOGLE_SHEETS_ID", ErrNotConfigured)
	}

	var opts []option.ClientOption
	if raw := strings.TrimSpace(cfg.CredentialsJSON); raw != "" {
		creds, err := google.CredentialsFromJSON(ctx, []byte(raw), sheetsapi.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("parse GOOGLE_SHEETS_CREDENTIALS: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	} else if len(extra) == 0 {
		return nil, fmt.Errorf("%w: set GOOGLE_SHEETS_CREDENTIALS", ErrNotConfigured)
	}
	opts = append(opts, extra...)

	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	rng := strings.TrimSpace(cfg.Range)
	if rng == "" {
		rng = DefaultRange
	}

	return &Log{
		values: svc.Spreadsheets.Values,
		id:     id,
		rng:    rng,
		now:    time.Now,
	}, nil
}

// Append writes one row: an RFC3339 UTC timestamp followed by values.
func (l *Log) Append(ctx context.Context, values ...string) error {
	row := make([]interface{}, 0, len(values)+1)
	row = append(row, l.now().UTC().Format(time.RFC3339))
	for _, v := range values {
		row = append(row, v)
	}

	_, err := l.values.Append(l.id, l.rng, &sheetsapi.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append sheet row: %w", err)
	}
	return nil
}

// Read returns every row in the log range.
func (l *Log) Read(ctx context.Context) ([][]string, error) {
	resp, err := l.values.Get(l.id, l.rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, 0, len(raw))
		for _, cell := range raw {
			row = append(row, fmt.Sprint(cell))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
