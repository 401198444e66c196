// Package google reads price observations from a Google Sheets range.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"pricedash/internal/log"
	"pricedash/internal/sources"
)

// Config identifies the range to read and the service account to read it
// with. Inline JSON wins over a credentials file.
type Config struct {
	SpreadsheetID   string
	Range           string
	CredentialsJSON string
	CredentialsFile string
}

type Reader struct {
	svc           *gsheet.Service
	spreadsheetID string
	rng           string
	logger        *log.Logger
}

var _ sources.Reader = (*Reader)(nil)

// New creates a reader. Extra client options replace the credential lookup
// entirely, which lets callers point the client at another endpoint.
func New(ctx context.Context, cfg Config, logger *log.Logger, opts ...goption.ClientOption) (*Reader, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSource)

	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(cfg.Range) == "" {
		return nil, errors.New("missing GOOGLE_SHEET_RANGE")
	}

	if len(opts) == 0 {
		creds, err := credentials(cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsReadonlyScope),
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets service created",
		"spreadsheet_id", cfg.SpreadsheetID,
		"range", cfg.Range)

	return &Reader{svc: svc, spreadsheetID: cfg.SpreadsheetID, rng: cfg.Range, logger: logger}, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case cfg.CredentialsFile != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	if path := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_CREDENTIALS_JSON, GOOGLE_CREDENTIALS_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
}

func (r *Reader) Name() string {
	return "sheets:" + r.rng
}

func (r *Reader) Read(ctx context.Context) (sources.Result, error) {
	resp, err := r.svc.Spreadsheets.Values.Get(r.spreadsheetID, r.rng).Context(ctx).Do()
	if err != nil {
		return sources.Result{}, fmt.Errorf("failed to read range %s: %w", r.rng, err)
	}

	values := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		values = append(values, toStrings(row))
	}
	res, err := sources.ParseTable(values)
	if err != nil {
		return sources.Result{}, err
	}
	r.logger.DebugContext(ctx, "Read sheet range",
		"range", r.rng,
		log.FieldRowCount, len(res.Rows),
		"skipped", res.Skipped)
	return res, nil
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}
