package sheets

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	apperrors "kpisync/pkg/errors"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

var scopes = []string{sheets.SpreadsheetsScope, drive.DriveScope}

// API is the slice of the Drive and Sheets services the sink relies on.
type API interface {
	// FindSpreadsheet returns the ID of a non-trashed spreadsheet with exactly
	// this name, or "" when there is none.
	FindSpreadsheet(ctx context.Context, name string) (string, error)
	CreateSpreadsheet(ctx context.Context, name string) (id, url string, err error)
	ShareWithAnyone(ctx context.Context, spreadsheetID string) error
	SheetProperties(ctx context.Context, spreadsheetID string) ([]*sheets.SheetProperties, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, req *sheets.BatchUpdateSpreadsheetRequest) error
}

type googleAPI struct {
	driveService  *drive.Service
	sheetsService *sheets.Service
}

// NewGoogleAPI builds the live API. With a service account key the client
// authenticates as that account; without one it uses application default
// credentials.
func NewGoogleAPI(ctx context.Context, serviceAccountJSON []byte) (API, error) {
	var clientOpt option.ClientOption
	if len(serviceAccountJSON) > 0 {
		serviceConfig, err := google.JWTConfigFromJSON(serviceAccountJSON, scopes...)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeAuthenticationFailed, "invalid service account key")
		}
		clientOpt = option.WithHTTPClient(serviceConfig.Client(ctx))
	} else {
		client, err := google.DefaultClient(ctx, scopes...)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeAuthenticationFailed, "no Google credentials found").
				WithSuggestions(
					"Set sheets.credentials_file or GOOGLE_APPLICATION_CREDENTIALS",
					"Store a key with 'kpisync credentials set'",
				)
		}
		clientOpt = option.WithHTTPClient(client)
	}

	driveService, err := drive.NewService(ctx, clientOpt)
	if err != nil {
		return nil, apperrors.ConnectionError("Failed to create Drive client", err)
	}

	sheetsService, err := sheets.NewService(ctx, clientOpt)
	if err != nil {
		return nil, apperrors.ConnectionError("Failed to create Sheets client", err)
	}

	return &googleAPI{driveService: driveService, sheetsService: sheetsService}, nil
}

func (g *googleAPI) FindSpreadsheet(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), spreadsheetMimeType)

	fileList, err := g.driveService.Files.List().
		Q(q).
		Fields("files(id, name, trashed)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}

	for _, f := range fileList.Files {
		if f.Name == name && !f.Trashed {
			return f.Id, nil
		}
	}
	return "", nil
}

func (g *googleAPI) CreateSpreadsheet(ctx context.Context, name string) (string, string, error) {
	created, err := g.sheetsService.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: name},
	}).Context(ctx).Do()
	if err != nil {
		return "", "", err
	}
	return created.SpreadsheetId, created.SpreadsheetUrl, nil
}

func (g *googleAPI) ShareWithAnyone(ctx context.Context, spreadsheetID string) error {
	_, err := g.driveService.Permissions.Create(spreadsheetID, &drive.Permission{
		Type: "anyone",
		Role: "writer",
	}).SupportsAllDrives(true).Context(ctx).Do()
	return err
}

func (g *googleAPI) SheetProperties(ctx context.Context, spreadsheetID string) ([]*sheets.SheetProperties, error) {
	spreadsheet, err := g.sheetsService.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	props := make([]*sheets.SheetProperties, 0, len(spreadsheet.Sheets))
	for _, s := range spreadsheet.Sheets {
		if s.Properties != nil {
			props = append(props, s.Properties)
		}
	}
	return props, nil
}

func (g *googleAPI) BatchUpdate(ctx context.Context, spreadsheetID string, req *sheets.BatchUpdateSpreadsheetRequest) error {
	_, err := g.sheetsService.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}

// escapeQuery quotes a literal for a Drive search query.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
