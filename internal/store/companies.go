// internal/store/companies.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ipo-compliance/internal/common/database"
	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/models"

	"github.com/lib/pq"
)

const companyColumns = `id, name, user_id, generation_id, scored_generation_id, compliance_status,
	eligibility_status, generation_number, created_at, updated_at`

func scanCompany(row rowScanner) (*models.Company, error) {
	var (
		c           models.Company
		generation  sql.NullString
		scored      sql.NullString
		compliance  string
		eligibility string
	)
	err := row.Scan(&c.ID, &c.Name, &c.UserID, &generation, &scored, &compliance,
		&eligibility, &c.GenerationNumber, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.GenerationID = generation.String
	c.ScoredGenerationID = scored.String
	c.ComplianceStatus = models.ComplianceStatus(compliance)
	c.EligibilityStatus = models.EligibilityStatus(eligibility)
	return &c, nil
}

// CompanyByID returns ErrNotFound when no company has the id.
func (p *Postgres) CompanyByID(ctx context.Context, companyID string) (*models.Company, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, companyID)
	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("company_by_id", err)
	}
	return c, nil
}

// CompanyByGeneration resolves the company currently owning generationID.
func (p *Postgres) CompanyByGeneration(ctx context.Context, generationID string) (*models.Company, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE generation_id = $1`, generationID)
	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("company_by_generation", err)
	}
	return c, nil
}

// StatusUpdate is the intermediate state written for one webhook delivery. Confirmed
// documents are always marked Passed.
type StatusUpdate struct {
	CompanyID            string
	GenerationID         string
	ConfirmedDocumentIDs []string
	FailUnconfirmed      bool
	ComplianceStatus     models.ComplianceStatus
	EligibilityStatus    models.EligibilityStatus
}

// notScored restricts a documents UPDATE to generations without a final tier.
const notScored = `NOT EXISTS (
	SELECT 1 FROM companies AS c WHERE c.id = $1 AND c.scored_generation_id = $2)`

// ApplyStatusUpdate writes documents and company intermediate statuses in one transaction.
// A generation that already holds its final tier is left untouched.
func (p *Postgres) ApplyStatusUpdate(ctx context.Context, u StatusUpdate) error {
	confirmed := u.ConfirmedDocumentIDs
	if confirmed == nil {
		// a NULL array would make NOT (id = ANY($4)) match nothing
		confirmed = []string{}
	}

	return database.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		if len(confirmed) > 0 {
			_, err := tx.ExecContext(ctx, `
				UPDATE documents
				SET basic_check_status = $3, generation_id = $2, updated_at = NOW()
				WHERE company_id = $1 AND id = ANY($4) AND `+notScored,
				u.CompanyID, u.GenerationID, string(models.BasicCheckPassed), pq.Array(confirmed))
			if err != nil {
				return apperrors.NewTransactionFailedError("confirm_documents", err)
			}
		}

		if u.FailUnconfirmed {
			_, err := tx.ExecContext(ctx, `
				UPDATE documents
				SET basic_check_status = $3, updated_at = NOW()
				WHERE company_id = $1 AND generation_id = $2 AND NOT (id = ANY($4)) AND `+notScored,
				u.CompanyID, u.GenerationID, string(models.BasicCheckFailed), pq.Array(confirmed))
			if err != nil {
				return apperrors.NewTransactionFailedError("fail_unconfirmed_documents", err)
			}
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE companies
			SET compliance_status = $2, eligibility_status = $3, updated_at = NOW()
			WHERE id = $1 AND scored_generation_id IS DISTINCT FROM $4`,
			u.CompanyID, string(u.ComplianceStatus), string(u.EligibilityStatus), u.GenerationID)
		if err != nil {
			return apperrors.NewTransactionFailedError("company_status", err)
		}
		return nil
	})
}

// FinalizeCompliance writes the final tier once per generation. It reports false when the
// company has moved to another generation or the generation was already scored.
func (p *Postgres) FinalizeCompliance(ctx context.Context, companyID, generationID string, status models.ComplianceStatus) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE companies
		SET compliance_status = $3,
			scored_generation_id = $2,
			generation_number = generation_number + 1,
			updated_at = NOW()
		WHERE id = $1 AND generation_id = $2 AND scored_generation_id IS DISTINCT FROM $2`,
		companyID, generationID, string(status))
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("finalize_compliance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("finalize_compliance", err)
	}
	return n == 1, nil
}

// FailStaleGenerations fails every pending cycle last touched before cutoff and returns the
// affected company ids.
func (p *Postgres) FailStaleGenerations(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		UPDATE companies
		SET compliance_status = $1, eligibility_status = $2, updated_at = NOW()
		WHERE compliance_status = $3 AND eligibility_status = $4 AND updated_at < $5
		RETURNING id`,
		string(models.ComplianceFailed), string(models.EligibilityFailed),
		string(models.CompliancePending), string(models.EligibilityPending), cutoff)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("fail_stale_generations", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("fail_stale_generations", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("fail_stale_generations", err)
	}
	return ids, nil
}

// StartGeneration points the company and all its documents at a fresh generation id and
// resets their statuses to pending.
func (p *Postgres) StartGeneration(ctx context.Context, companyID, generationID string) error {
	return database.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE companies
			SET generation_id = $2, compliance_status = $3, eligibility_status = $4, updated_at = NOW()
			WHERE id = $1`,
			companyID, generationID, string(models.CompliancePending), string(models.EligibilityPending))
		if err != nil {
			return apperrors.NewTransactionFailedError("start_generation_company", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE documents
			SET generation_id = $2, basic_check_status = $3, updated_at = NOW()
			WHERE company_id = $1`,
			companyID, generationID, string(models.BasicCheckPending))
		if err != nil {
			return apperrors.NewTransactionFailedError("start_generation_documents", err)
		}
		return nil
	})
}
