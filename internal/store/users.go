// internal/store/users.go
package store

import (
	"context"
	"database/sql"
	"errors"

	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/models"
)

// UserByID returns ErrNotFound when the owner has no mirrored user row.
func (p *Postgres) UserByID(ctx context.Context, userID string) (*models.User, error) {
	var (
		u      models.User
		plan   sql.NullString
		status sql.NullString
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, email, username, role, plan, subscription_status
		FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Email, &u.Username, &u.Role, &plan, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("user_by_id", err)
	}
	u.Plan = plan.String
	u.SubscriptionStatus = status.String
	return &u, nil
}
