package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/common/metrics"
	"ipo-compliance/internal/compliance"
	"ipo-compliance/internal/valuation"
	"ipo-compliance/pkg/registry"

	"github.com/gin-gonic/gin"
)

// readValidated reads the body and checks it against the activity schema before decoding.
func (s *Server) readValidated(c *gin.Context, activityID string, out interface{}) error {
	body, err := c.GetRawData()
	if err != nil {
		return apperrors.NewValidationError("unreadable body")
	}
	if err := s.deps.Validator.ValidateJSON(activityID, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewValidationError("malformed JSON: " + err.Error())
	}
	return nil
}

func (s *Server) analysisWebhook(c *gin.Context) {
	var w compliance.Webhook
	status := "invalid"

	code := func() int {
		if err := s.readValidated(c, registry.AnalysisWebhook, &w); err != nil {
			return s.respondError(c, err)
		}
		status = w.Status

		res, err := s.deps.Reconciler.Reconcile(c.Request.Context(), w)
		if err != nil {
			return s.respondError(c, err)
		}
		c.JSON(http.StatusOK, res)
		return http.StatusOK
	}()

	metrics.WebhooksReceived.WithLabelValues(status, strconv.Itoa(code)).Inc()
}

func (s *Server) valuationWebhook(c *gin.Context) {
	var completion valuation.Completion
	if err := s.readValidated(c, registry.ValuationWebhook, &completion); err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.deps.Valuations.Complete(c.Request.Context(), completion); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"companyId":    completion.CompanyID,
		"generationId": completion.GenerationID,
		"status":       "completed",
	})
}
