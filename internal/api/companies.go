package api

import (
	"errors"
	"net/http"
	"strconv"

	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/models"
	"ipo-compliance/internal/store"
	"ipo-compliance/internal/valuation"
	"ipo-compliance/pkg/registry"

	"github.com/gin-gonic/gin"
)

const clientIDKey = "client_id"

func (s *Server) requireClientID(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		s.respondError(c, apperrors.NewMissingClientIDError())
		return
	}
	c.Set(clientIDKey, id)
	c.Next()
}

func (s *Server) startGeneration(c *gin.Context) {
	gen, err := s.deps.Generations.Start(c.Request.Context(), c.Param("companyId"), c.GetString(clientIDKey))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gen)
}

// generationQuota runs the gate without starting a cycle. Companies the caller does not
// own are reported as missing.
func (s *Server) generationQuota(c *gin.Context) {
	attempted, _ := strconv.ParseBool(c.Query("attempted"))

	company, decision, err := s.deps.Quota.Check(c.Request.Context(), c.Param("companyId"), attempted)
	if err == nil && company.UserID != c.GetString(clientIDKey) {
		err = apperrors.NewCompanyNotFoundError("companyId: " + c.Param("companyId"))
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

type complianceResponse struct {
	Company *models.Company           `json:"company"`
	Reports []models.ComplianceReport `json:"reports"`
	Cached  bool                      `json:"cached"`
}

func (s *Server) complianceStatus(c *gin.Context) {
	ctx := c.Request.Context()

	company, err := s.deps.Companies.CompanyByID(ctx, c.Param("companyId"))
	if errors.Is(err, store.ErrNotFound) || (err == nil && company.UserID != c.GetString(clientIDKey)) {
		err = apperrors.NewCompanyNotFoundError("companyId: " + c.Param("companyId"))
	}
	if err != nil {
		s.respondError(c, err)
		return
	}

	resp := complianceResponse{Company: company, Reports: []models.ComplianceReport{}}
	if company.GenerationID != "" {
		reports, found, err := s.deps.Reports.Cached(ctx, company.ID, company.GenerationID)
		if err != nil {
			s.logger.Warn("cached reports unavailable", map[string]interface{}{"error": err, "companyId": company.ID})
		}
		if found {
			resp.Reports = reports
			resp.Cached = true
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) valuationInitials(c *gin.Context) {
	var req valuation.InitialsRequest
	if err := s.readValidated(c, registry.ValuationInitials, &req); err != nil {
		s.respondError(c, err)
		return
	}
	v, err := s.deps.Valuations.Initials(c.Request.Context(), c.Param("companyId"), c.GetString(clientIDKey), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (s *Server) valuationCalculate(c *gin.Context) {
	var req valuation.CalculateRequest
	if err := s.readValidated(c, registry.ValuationCalculate, &req); err != nil {
		s.respondError(c, err)
		return
	}
	v, err := s.deps.Valuations.Calculate(c.Request.Context(), c.Param("companyId"), c.GetString(clientIDKey), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
