package subscription

import (
	"context"
	"errors"

	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/common/metrics"
	"ipo-compliance/internal/models"
	"ipo-compliance/internal/store"
)

// Store loads the company usage and its owner's plan.
type Store interface {
	CompanyByID(ctx context.Context, companyID string) (*models.Company, error)
	UserByID(ctx context.Context, userID string) (*models.User, error)
}

// Checker evaluates the gate against stored plan and usage data.
type Checker struct {
	store Store
}

func NewChecker(st Store) *Checker {
	return &Checker{store: st}
}

// Check loads the company and its owner and evaluates the gate. The company's generation
// number is the usage count.
func (c *Checker) Check(ctx context.Context, companyID string, attempted bool) (*models.Company, Decision, error) {
	company, err := c.store.CompanyByID(ctx, companyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Decision{}, apperrors.NewCompanyNotFoundError("companyId: " + companyID)
	}
	if err != nil {
		return nil, Decision{}, err
	}

	user, err := c.store.UserByID(ctx, company.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Decision{}, apperrors.NewUserNotFoundError(companyID)
	}
	if err != nil {
		return nil, Decision{}, err
	}

	plan := ParsePlan(user.Plan)
	d := Evaluate(plan, company.GenerationNumber, attempted)
	metrics.GenerationGateDecisions.WithLabelValues(plan.String(), boolLabel(d.Allowed)).Inc()
	return company, d, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
