package compliance

import (
	"context"
	"errors"

	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/common/logger"
	"ipo-compliance/internal/models"
	"ipo-compliance/internal/store"
	"ipo-compliance/internal/subscription"

	"github.com/google/uuid"
)

// GenerationProcessID is the BPMN process started for every new generation cycle.
const GenerationProcessID = "compliance-generation"

// GenerationStore starts generation cycles.
type GenerationStore interface {
	StartGeneration(ctx context.Context, companyID, generationID string) error
}

// QuotaChecker evaluates the subscription gate for a company.
type QuotaChecker interface {
	Check(ctx context.Context, companyID string, attempted bool) (*models.Company, subscription.Decision, error)
}

// ProcessStarter creates workflow instances. It is optional.
type ProcessStarter interface {
	StartProcess(ctx context.Context, bpmnProcessID string, variables map[string]interface{}) (int64, error)
}

// Generation is a started cycle.
type Generation struct {
	CompanyID    string                `json:"companyId"`
	GenerationID string                `json:"generationId"`
	Quota        subscription.Decision `json:"quota"`
}

// GenerationService starts new generation cycles once the subscription gate allows them.
type GenerationService struct {
	store   GenerationStore
	quota   QuotaChecker
	reports *ReportService
	process ProcessStarter
	logger  logger.Logger
	newID   func() string
}

func NewGenerationService(st GenerationStore, quota QuotaChecker, reports *ReportService, process ProcessStarter, log logger.Logger) *GenerationService {
	return &GenerationService{
		store:   st,
		quota:   quota,
		reports: reports,
		process: process,
		logger:  log.WithFields(map[string]interface{}{"component": "generation"}),
		newID:   func() string { return uuid.New().String() },
	}
}

// Start opens a new cycle for a company owned by clientID. Only one cycle may be in flight
// per company; the stale sweep clears cycles that never finish.
func (s *GenerationService) Start(ctx context.Context, companyID, clientID string) (*Generation, error) {
	company, decision, err := s.quota.Check(ctx, companyID, true)
	if err != nil {
		return nil, err
	}
	if company.UserID != clientID {
		return nil, apperrors.NewCompanyNotFoundError("companyId: " + companyID)
	}
	if !decision.Allowed {
		return nil, apperrors.NewGenerationLimitReachedError(decision.Plan, decision.Used).
			WithMetadata("quota", decision)
	}
	if company.InFlight() {
		return nil, apperrors.NewGenerationInProgressError(company.GenerationID)
	}

	generationID := s.newID()
	if err := s.store.StartGeneration(ctx, company.ID, generationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewCompanyNotFoundError("companyId: " + companyID)
		}
		return nil, err
	}

	log := s.logger.WithFields(map[string]interface{}{"companyId": company.ID, "generationId": generationID})

	if purged, err := s.reports.Invalidate(ctx, company.ID); err != nil {
		log.Warn("report cache invalidation failed", map[string]interface{}{"error": err})
	} else if purged > 0 {
		log.Info("invalidated cached reports", map[string]interface{}{"keys": purged})
	}

	if s.process != nil {
		key, err := s.process.StartProcess(ctx, GenerationProcessID, map[string]interface{}{
			"companyId":    company.ID,
			"generationId": generationID,
		})
		if err != nil {
			log.Warn("generation workflow not started", map[string]interface{}{"error": err})
		} else {
			log.Info("generation workflow started", map[string]interface{}{"processInstanceKey": key})
		}
	}

	log.Info("generation started", map[string]interface{}{"used": decision.Used, "plan": decision.Plan})
	return &Generation{CompanyID: company.ID, GenerationID: generationID, Quota: decision}, nil
}
