package leads

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// sheetColumns is the fixed row layout of the leads sheet. New columns are
// only ever appended so older sheets stay readable.
var sheetColumns = []string{"id", "created_at", "session_id", "clinic_name", "name", "contact", "selected_option", "source", "summary", "urgency", "health_score"}

// SheetsRepository appends leads to a Google Sheets spreadsheet, one row per
// lead. Reads scan the whole sheet, which is fine for the volumes a sales
// funnel produces.
type SheetsRepository struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	sheetName     string
}

var _ Repository = (*SheetsRepository)(nil)

// NewSheetsRepository builds a repository from a service account key.
func NewSheetsRepository(ctx context.Context, spreadsheetID, sheetName string, opts ...option.ClientOption) (*SheetsRepository, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("leads: spreadsheet id is required")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Leads"
	}
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("leads: failed to create sheets client: %w", err)
	}
	return &SheetsRepository{
		values:        sheets.NewSpreadsheetsValuesService(svc),
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// Create appends a row.
func (r *SheetsRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := newLead(req, time.Now().UTC())
	row := []interface{}{
		lead.ID,
		lead.CreatedAt.Format(time.RFC3339),
		lead.SessionID,
		lead.ClinicName,
		lead.Name,
		lead.Contact,
		lead.SelectedOption,
		lead.Source,
		lead.Summary,
		lead.Urgency,
		lead.HealthScore,
	}

	_, err := r.values.Append(r.spreadsheetID, r.sheetName+"!A1", &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("leads: sheets append failed: %w", err)
	}
	return lead, nil
}

// GetByID scans the sheet for a matching id.
func (r *SheetsRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	all, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range all {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, ErrLeadNotFound
}

// List returns leads newest first.
func (r *SheetsRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	all, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return page(all, filter.normalized()), nil
}

func (r *SheetsRepository) readAll(ctx context.Context) ([]*Lead, error) {
	rng := fmt.Sprintf("%s!A1:%c", r.sheetName, 'A'+len(sheetColumns)-1)
	resp, err := r.values.Get(r.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("leads: sheets read failed: %w", err)
	}

	out := make([]*Lead, 0, len(resp.Values))
	for _, row := range resp.Values {
		lead, ok := leadFromRow(row)
		if !ok {
			continue
		}
		out = append(out, lead)
	}
	return out, nil
}

// leadFromRow skips the header row and anything too short to be a lead.
func leadFromRow(row []interface{}) (*Lead, bool) {
	cell := func(i int) string {
		if i >= len(row) {
			return ""
		}
		return fmt.Sprint(row[i])
	}
	if len(row) < 6 || cell(0) == sheetColumns[0] {
		return nil, false
	}
	createdAt, _ := time.Parse(time.RFC3339, cell(1))
	healthScore, _ := strconv.Atoi(cell(10))
	return &Lead{
		ID:             cell(0),
		CreatedAt:      createdAt,
		SessionID:      cell(2),
		ClinicName:     cell(3),
		Name:           cell(4),
		Contact:        cell(5),
		SelectedOption: cell(6),
		Source:         cell(7),
		Summary:        cell(8),
		Urgency:        cell(9),
		HealthScore:    healthScore,
	}, true
}
