// Package valuation manages IPO valuation records: the initial narrative and financials,
// the backend calculation and the asynchronous completion callback.
package valuation

import (
	"context"
	"encoding/json"
	"errors"

	"ipo-compliance/internal/common/analysis"
	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/common/logger"
	"ipo-compliance/internal/models"
	"ipo-compliance/internal/store"

	"github.com/google/uuid"
)

// Store is the persistence the valuation service needs.
type Store interface {
	CompanyByID(ctx context.Context, companyID string) (*models.Company, error)
	UserByID(ctx context.Context, userID string) (*models.User, error)
	CreateValuation(ctx context.Context, v *models.IPOValuation) error
	ValuationFor(ctx context.Context, companyID, generationID string) (*models.IPOValuation, error)
	SetValuationProcessing(ctx context.Context, companyID, generationID string, processing bool) error
	CompleteValuation(ctx context.Context, companyID, generationID string, input, output json.RawMessage, pdfURL string) error
}

// Backend runs valuations on the analysis backend.
type Backend interface {
	Login(ctx context.Context, creds analysis.Credentials) (string, error)
	CalculateValuation(ctx context.Context, token string, input map[string]interface{}) (map[string]interface{}, error)
}

type InitialsRequest struct {
	GenerationID string          `json:"generation_id"`
	Narrative    json.RawMessage `json:"narrative"`
	Financials   json.RawMessage `json:"financials"`
}

type CalculateRequest struct {
	GenerationID string          `json:"generation_id"`
	Assumptions  json.RawMessage `json:"assumptions,omitempty"`
}

// Completion is the valuation webhook payload.
type Completion struct {
	CompanyID    string          `json:"company_id"`
	GenerationID string          `json:"generation_id"`
	InputJSON    json.RawMessage `json:"input_json,omitempty"`
	OutputJSON   json.RawMessage `json:"output_json"`
	PDFURL       string          `json:"ipo_valuation_pdf_url,omitempty"`
}

type Service struct {
	store   Store
	backend Backend
	logger  logger.Logger
	newID   func() string
}

func NewService(st Store, backend Backend, log logger.Logger) *Service {
	return &Service{
		store:   st,
		backend: backend,
		logger:  log.WithFields(map[string]interface{}{"component": "valuation"}),
		newID:   func() string { return uuid.New().String() },
	}
}

// ownedCompany loads the company and hides it from anyone but its owner.
func (s *Service) ownedCompany(ctx context.Context, companyID, clientID string) (*models.Company, error) {
	company, err := s.store.CompanyByID(ctx, companyID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && company.UserID != clientID) {
		return nil, apperrors.NewCompanyNotFoundError("companyId: " + companyID)
	}
	return company, err
}

// Initials creates the valuation record for a generation. A second call for the same
// generation is a conflict.
func (s *Service) Initials(ctx context.Context, companyID, clientID string, req InitialsRequest) (*models.IPOValuation, error) {
	if _, err := s.ownedCompany(ctx, companyID, clientID); err != nil {
		return nil, err
	}

	v := &models.IPOValuation{
		ID:           s.newID(),
		CompanyID:    companyID,
		GenerationID: req.GenerationID,
		Narrative:    req.Narrative,
		Financials:   req.Financials,
	}
	if err := s.store.CreateValuation(ctx, v); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperrors.NewValuationExistsError(companyID, req.GenerationID)
		}
		return nil, err
	}

	s.logger.Info("valuation initials stored", map[string]interface{}{
		"companyId":    companyID,
		"generationId": req.GenerationID,
		"valuationId":  v.ID,
	})
	return v, nil
}

// Calculate sends the stored initials to the backend and persists inputs and outputs.
func (s *Service) Calculate(ctx context.Context, companyID, clientID string, req CalculateRequest) (*models.IPOValuation, error) {
	company, err := s.ownedCompany(ctx, companyID, clientID)
	if err != nil {
		return nil, err
	}

	v, err := s.store.ValuationFor(ctx, companyID, req.GenerationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewValuationNotFoundError(companyID, req.GenerationID)
	}
	if err != nil {
		return nil, err
	}

	user, err := s.store.UserByID(ctx, company.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewUserNotFoundError(companyID)
	}
	if err != nil {
		return nil, err
	}

	input, err := calculationInput(v, req.Assumptions)
	if err != nil {
		return nil, err
	}

	token, err := s.backend.Login(ctx, analysis.Credentials{
		Username:  user.Username,
		Email:     user.Email,
		CompanyID: company.ID,
		Role:      user.Role,
	})
	if err != nil {
		if !apperrors.HasCode(err, apperrors.ErrCodeBackendSessionFailed) {
			err = apperrors.NewBackendSessionError(err)
		}
		return nil, err
	}

	log := s.logger.WithFields(map[string]interface{}{"companyId": companyID, "generationId": req.GenerationID})

	if err := s.store.SetValuationProcessing(ctx, companyID, req.GenerationID, true); err != nil {
		return nil, err
	}

	output, err := s.backend.CalculateValuation(ctx, token, input)
	if err != nil {
		log.Error("valuation calculation failed", map[string]interface{}{"error": err})
		// the caller's context may already be done
		if resetErr := s.store.SetValuationProcessing(context.WithoutCancel(ctx), companyID, req.GenerationID, false); resetErr != nil {
			log.Warn("could not clear processing flag", map[string]interface{}{"error": resetErr})
		}
		return nil, err
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	if err := s.store.CompleteValuation(ctx, companyID, req.GenerationID, inputJSON, outputJSON, ""); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewValuationNotFoundError(companyID, req.GenerationID)
		}
		return nil, err
	}

	v.InputJSON = inputJSON
	v.OutputJSON = outputJSON
	v.ReportProcessing = false
	log.Info("valuation calculated", nil)
	return v, nil
}

// Complete records the backend's asynchronous result. The initials record must exist.
func (s *Service) Complete(ctx context.Context, c Completion) error {
	if c.CompanyID == "" || c.GenerationID == "" || len(c.OutputJSON) == 0 {
		return apperrors.NewValidationError("company_id, generation_id and output_json are required")
	}

	err := s.store.CompleteValuation(ctx, c.CompanyID, c.GenerationID, c.InputJSON, c.OutputJSON, c.PDFURL)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NewValuationNotFoundError(c.CompanyID, c.GenerationID)
	}
	if err != nil {
		return err
	}

	s.logger.Info("valuation completed", map[string]interface{}{
		"companyId":    c.CompanyID,
		"generationId": c.GenerationID,
		"hasPdf":       c.PDFURL != "",
	})
	return nil
}

func calculationInput(v *models.IPOValuation, assumptions json.RawMessage) (map[string]interface{}, error) {
	input := map[string]interface{}{
		"company_id":    v.CompanyID,
		"generation_id": v.GenerationID,
	}
	for key, raw := range map[string]json.RawMessage{
		"narrative":   v.Narrative,
		"financials":  v.Financials,
		"assumptions": assumptions,
	} {
		if len(raw) == 0 {
			continue
		}
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, apperrors.NewValidationError(key + " is not valid JSON")
		}
		input[key] = decoded
	}
	return input, nil
}
