// internal/store/valuations.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/models"
)

// ErrConflict is returned when a valuation already exists for the (company, generation).
var ErrConflict = errors.New("conflict")

func jsonOrNull(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// CreateValuation inserts the initials record.
func (p *Postgres) CreateValuation(ctx context.Context, v *models.IPOValuation) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO ipo_valuations (id, company_id, generation_id, narrative_json, financial_json, report_processing, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, NOW(), NOW())
		ON CONFLICT (company_id, generation_id) DO NOTHING
		RETURNING created_at, updated_at`,
		v.ID, v.CompanyID, v.GenerationID, jsonOrNull(v.Narrative), jsonOrNull(v.Financials)).
		Scan(&v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrConflict
	}
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("create_valuation", err)
	}
	return nil
}

// ValuationFor returns ErrNotFound when no initials record exists.
func (p *Postgres) ValuationFor(ctx context.Context, companyID, generationID string) (*models.IPOValuation, error) {
	var (
		v                                    models.IPOValuation
		narrative, financials, input, output []byte
		pdf                                  sql.NullString
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, company_id, generation_id, narrative_json, financial_json, input_json, output_json,
			ipo_valuation_pdf_url, report_processing, created_at, updated_at
		FROM ipo_valuations WHERE company_id = $1 AND generation_id = $2`,
		companyID, generationID).
		Scan(&v.ID, &v.CompanyID, &v.GenerationID, &narrative, &financials, &input, &output,
			&pdf, &v.ReportProcessing, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("valuation_for", err)
	}
	v.Narrative = narrative
	v.Financials = financials
	v.InputJSON = input
	v.OutputJSON = output
	v.PDFURL = pdf.String
	return &v, nil
}

// SetValuationProcessing flags a valuation as running on the backend.
func (p *Postgres) SetValuationProcessing(ctx context.Context, companyID, generationID string, processing bool) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE ipo_valuations SET report_processing = $3, updated_at = NOW()
		WHERE company_id = $1 AND generation_id = $2`,
		companyID, generationID, processing)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("set_valuation_processing", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteValuation stores outputs on an existing record. pdfURL may be empty.
func (p *Postgres) CompleteValuation(ctx context.Context, companyID, generationID string, input, output json.RawMessage, pdfURL string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE ipo_valuations
		SET input_json = COALESCE($3, input_json),
			output_json = $4,
			ipo_valuation_pdf_url = COALESCE($5, ipo_valuation_pdf_url),
			report_processing = FALSE,
			updated_at = NOW()
		WHERE company_id = $1 AND generation_id = $2`,
		companyID, generationID, jsonOrNull(input), jsonOrNull(output), nullString(pdfURL))
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("complete_valuation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
