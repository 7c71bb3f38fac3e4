// internal/store/documents.go
package store

import (
	"context"
	"database/sql"

	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/models"
)

// BackfillDocumentGenerations stamps the company's stored generation id on documents that
// carry none.
func (p *Postgres) BackfillDocumentGenerations(ctx context.Context, companyID string) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE documents AS d
		SET generation_id = c.generation_id, updated_at = NOW()
		FROM companies AS c
		WHERE d.company_id = c.id AND d.company_id = $1
			AND d.generation_id IS NULL AND c.generation_id IS NOT NULL`,
		companyID)
	if err != nil {
		return 0, apperrors.NewQueryExecutionFailedError("backfill_document_generations", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DocumentsByGeneration lists a company's documents evaluated in generationID.
func (p *Postgres) DocumentsByGeneration(ctx context.Context, companyID, generationID string) ([]models.Document, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, company_id, document_type, file_name, basic_check_status, generation_id, created_at, updated_at
		FROM documents
		WHERE company_id = $1 AND generation_id = $2
		ORDER BY created_at, id`,
		companyID, generationID)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("documents_by_generation", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var (
			d          models.Document
			docType    string
			status     string
			generation sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.CompanyID, &docType, &d.FileName, &status, &generation, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("documents_by_generation", err)
		}
		d.DocumentType = models.DocumentType(docType)
		d.BasicCheckStatus = models.BasicCheckStatus(status)
		d.GenerationID = generation.String
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("documents_by_generation", err)
	}
	return docs, nil
}
