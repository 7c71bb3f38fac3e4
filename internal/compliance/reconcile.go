package compliance

import (
	"context"
	"errors"
	"time"

	"ipo-compliance/internal/common/analysis"
	awsnotify "ipo-compliance/internal/common/aws"
	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/common/logger"
	"ipo-compliance/internal/common/metrics"
	"ipo-compliance/internal/common/observability"
	"ipo-compliance/internal/models"
	"ipo-compliance/internal/store"
)

// Webhook is the analysis backend's status notification.
type Webhook struct {
	GenerationID string   `json:"generation_id"`
	Status       string   `json:"status"`
	DocumentIDs  []string `json:"document_ids"`
}

// Store is the persistence the reconciler needs.
type Store interface {
	CompanyByGeneration(ctx context.Context, generationID string) (*models.Company, error)
	ApplyStatusUpdate(ctx context.Context, u store.StatusUpdate) error
	UserByID(ctx context.Context, userID string) (*models.User, error)
	BackfillDocumentGenerations(ctx context.Context, companyID string) (int64, error)
	DocumentsByGeneration(ctx context.Context, companyID, generationID string) ([]models.Document, error)
	FinalizeCompliance(ctx context.Context, companyID, generationID string, status models.ComplianceStatus) (bool, error)
}

// SessionBackend opens analysis backend sessions.
type SessionBackend interface {
	Login(ctx context.Context, creds analysis.Credentials) (string, error)
}

// Notifier announces final compliance results.
type Notifier interface {
	NotifyComplianceResult(ctx context.Context, result awsnotify.ComplianceResult) error
}

// Outcome describes what a reconciliation did.
type Outcome string

const (
	OutcomeIgnored      Outcome = "ignored"
	OutcomeIntermediate Outcome = "intermediate"
	OutcomeFinalized    Outcome = "finalized"
	OutcomeSuperseded   Outcome = "superseded"
	OutcomeError        Outcome = "error"
)

// Result is returned for every acknowledged webhook.
type Result struct {
	Outcome           Outcome                  `json:"outcome"`
	CompanyID         string                   `json:"companyId,omitempty"`
	GenerationID      string                   `json:"generationId"`
	ComplianceStatus  models.ComplianceStatus  `json:"complianceStatus,omitempty"`
	EligibilityStatus models.EligibilityStatus `json:"eligibilityStatus,omitempty"`
	Score             *float64                 `json:"score,omitempty"`
	ScoredDocuments   int                      `json:"scoredDocuments,omitempty"`
}

// Policy holds the business rules that are configuration rather than structure.
type Policy struct {
	FailUnconfirmedDocuments bool
}

// Reconciler applies analysis webhooks to documents and companies.
type Reconciler struct {
	store    Store
	sessions SessionBackend
	reports  *ReportService
	notifier Notifier
	policy   Policy
	logger   logger.Logger
	obs      *observability.Observability
	now      func() time.Time
}

func NewReconciler(st Store, sessions SessionBackend, reports *ReportService, notifier Notifier, policy Policy, log logger.Logger, obs *observability.Observability) *Reconciler {
	return &Reconciler{
		store:    st,
		sessions: sessions,
		reports:  reports,
		notifier: notifier,
		policy:   policy,
		logger:   log.WithFields(map[string]interface{}{"component": "reconciler"}),
		obs:      obs,
		now:      time.Now,
	}
}

// Validate rejects a webhook missing any required field.
func (w Webhook) Validate() error {
	switch {
	case w.GenerationID == "":
		return apperrors.NewValidationError("generation_id is required")
	case w.Status == "":
		return apperrors.NewValidationError("status is required")
	case w.DocumentIDs == nil:
		return apperrors.NewValidationError("document_ids is required")
	}
	return nil
}

// Reconcile processes one webhook delivery. Errors are *errors.StandardError values whose
// code determines the response status; non-2xx responses make the sender redeliver.
func (r *Reconciler) Reconcile(ctx context.Context, w Webhook) (res *Result, err error) {
	start := r.now()
	defer func() {
		outcome := OutcomeError
		if res != nil {
			outcome = res.Outcome
		}
		metrics.ReconciliationOutcomes.WithLabelValues(string(outcome)).Inc()
		r.obs.RecordReconciliation(ctx, w.Status, string(outcome), r.now().Sub(start))
	}()

	if err := w.Validate(); err != nil {
		return nil, err
	}

	log := r.logger.WithFields(map[string]interface{}{
		"generationId": w.GenerationID,
		"status":       w.Status,
	})

	company, err := r.store.CompanyByGeneration(ctx, w.GenerationID)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("no company for generation, acknowledging", nil)
		return &Result{Outcome: OutcomeIgnored, GenerationID: w.GenerationID}, nil
	}
	if err != nil {
		return nil, err
	}
	log = log.WithFields(map[string]interface{}{"companyId": company.ID})

	update := store.StatusUpdate{
		CompanyID:            company.ID,
		GenerationID:         w.GenerationID,
		ConfirmedDocumentIDs: w.DocumentIDs,
		FailUnconfirmed:      r.policy.FailUnconfirmedDocuments,
		ComplianceStatus:     MapIntermediateComplianceStatus(w.Status),
		EligibilityStatus:    MapIntermediateEligibility(w.Status),
	}
	if err := r.store.ApplyStatusUpdate(ctx, update); err != nil {
		return nil, err
	}

	res = &Result{
		Outcome:           OutcomeIntermediate,
		CompanyID:         company.ID,
		GenerationID:      w.GenerationID,
		ComplianceStatus:  update.ComplianceStatus,
		EligibilityStatus: update.EligibilityStatus,
	}

	if w.Status != UpstreamCompleted {
		log.Info("intermediate status applied", map[string]interface{}{"documents": len(w.DocumentIDs)})
		return res, nil
	}

	return r.complete(ctx, log, company, res)
}

func (r *Reconciler) complete(ctx context.Context, log logger.Logger, company *models.Company, res *Result) (*Result, error) {
	user, err := r.store.UserByID(ctx, company.UserID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("owning user not found, final update skipped", map[string]interface{}{"userId": company.UserID})
		return nil, apperrors.NewUserNotFoundError(company.ID)
	}
	if err != nil {
		return nil, err
	}

	token, err := r.sessions.Login(ctx, analysis.Credentials{
		Username:  user.Username,
		Email:     user.Email,
		CompanyID: company.ID,
		Role:      user.Role,
	})
	if err != nil {
		if !apperrors.HasCode(err, apperrors.ErrCodeBackendSessionFailed) {
			err = apperrors.NewBackendSessionError(err)
		}
		log.Error("backend session failed", map[string]interface{}{"error": err})
		return nil, err
	}

	if n, err := r.store.BackfillDocumentGenerations(ctx, company.ID); err != nil {
		return nil, err
	} else if n > 0 {
		log.Info("backfilled document generations", map[string]interface{}{"documents": n})
	}

	docs, err := r.store.DocumentsByGeneration(ctx, company.ID, res.GenerationID)
	if err != nil {
		return nil, err
	}

	fetchable := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if d.BasicCheckStatus != models.BasicCheckFailed {
			fetchable = append(fetchable, d)
		}
	}

	reports, err := r.reports.Fetch(ctx, token, company.ID, res.GenerationID, fetchable)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	score := Aggregate(docs, reports)

	won, err := r.store.FinalizeCompliance(ctx, company.ID, res.GenerationID, score.Status)
	if err != nil {
		return nil, err
	}

	res.Score = &score.Score
	res.ScoredDocuments = score.ScoredDocuments
	if !won {
		log.Warn("final compliance already written or generation superseded", map[string]interface{}{
			"score": score.Score,
			"tier":  string(score.Status),
		})
		res.Outcome = OutcomeSuperseded
		return res, nil
	}

	res.Outcome = OutcomeFinalized
	res.ComplianceStatus = score.Status
	metrics.ComplianceTiers.WithLabelValues(string(score.Status)).Inc()
	log.Info("final compliance written", map[string]interface{}{
		"score":           score.Score,
		"tier":            string(score.Status),
		"scoredDocuments": score.ScoredDocuments,
		"reports":         len(reports),
	})

	if r.notifier != nil {
		err := r.notifier.NotifyComplianceResult(ctx, awsnotify.ComplianceResult{
			CompanyID:        company.ID,
			CompanyName:      company.Name,
			GenerationID:     res.GenerationID,
			ComplianceStatus: string(score.Status),
			Score:            score.Score,
			ScoredDocuments:  score.ScoredDocuments,
			RecipientEmail:   user.Email,
			CompletedAt:      r.now().UTC(),
		})
		if err != nil {
			log.Warn("compliance notification failed", map[string]interface{}{"error": err})
		}
	}

	return res, nil
}
