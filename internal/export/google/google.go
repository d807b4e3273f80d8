// Package google appends settlement snapshots to a Google Sheets
// spreadsheet. Authentication uses an OAuth client plus a stored token,
// both supplied inline or as files (see cmd/gastos-oauth-init for minting
// the token).
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"gastos/internal/config"
	"gastos/internal/export"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Ensure interface conformance
var _ export.SnapshotWriter = (*Client)(nil)

// NewFromConfig creates a Sheets client from the export section of the
// application config. Requires the spreadsheet id, the sheet name and an
// OAuth client/token pair.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.GoogleSpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(cfg.GoogleSheetName)
	if sheetName == "" {
		sheetName = "Settlements"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// newSheetsService builds a Sheets service from the OAuth client config and
// a previously minted token.
func newSheetsService(ctx context.Context, cfg *config.Config) (*gsheet.Service, error) {
	clientJSON, err := readCredential(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client credentials: %w", err)
	}
	if clientJSON == nil {
		return nil, errors.New("missing OAuth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}

	tokenJSON, err := readCredential(cfg.GoogleOAuthTokenJSON, cfg.GoogleOAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	if tokenJSON == nil {
		return nil, errors.New("missing OAuth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}

	oauthCfg, err := googleauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	slog.InfoContext(ctx, "Creating Google Sheets service",
		"scope", gsheet.SpreadsheetsScope,
		"token_valid", token.Valid())

	service, err := gsheet.NewService(ctx,
		goption.WithHTTPClient(oauthCfg.Client(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// readCredential prefers inline JSON over a file path. Returns nil when
// neither is configured.
func readCredential(inline, file string) ([]byte, error) {
	if inline = strings.TrimSpace(inline); inline != "" {
		return []byte(inline), nil
	}
	if file = strings.TrimSpace(file); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		return data, nil
	}
	return nil, nil
}

// WriteSnapshot appends one row per transfer plus a summary row for the
// snapshot. Rows are append-only; each export run is identified by the
// document version and generation timestamp.
func (c *Client) WriteSnapshot(ctx context.Context, snap export.ProjectSnapshot) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rows := snapshotRows(snap)
	rng := fmt.Sprintf("%s!A:H", c.sheetName)
	vr := &gsheet.ValueRange{Values: rows}

	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append snapshot to sheet %s: %w", c.sheetName, err)
	}

	slog.InfoContext(ctx, "Snapshot written to Google Sheets",
		"slug", snap.Slug,
		"project_id", snap.ProjectID,
		"version", snap.Version,
		"rows", len(rows))

	return nil
}

func snapshotRows(snap export.ProjectSnapshot) [][]any {
	stamp := snap.GeneratedAt.UTC().Format("2006-01-02 15:04:05")
	version := strconv.FormatInt(snap.Version, 10)

	rows := [][]any{{
		stamp,
		snap.Slug,
		snap.ProjectName,
		version,
		"summary",
		snap.Settlement.Total,
		snap.Settlement.Share,
		len(snap.Settlement.Transfers),
	}}
	for _, tr := range snap.Settlement.Transfers {
		rows = append(rows, []any{
			stamp,
			snap.Slug,
			snap.ProjectName,
			version,
			"transfer",
			tr.From,
			tr.To,
			tr.Amount,
		})
	}
	return rows
}
