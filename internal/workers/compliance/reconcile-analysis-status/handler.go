// internal/workers/compliance/reconcile-analysis-status/handler.go
package reconcileanalysisstatus

import (
	"context"
	"encoding/json"

	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/common/logger"
	"ipo-compliance/internal/compliance"
	"ipo-compliance/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "reconcile-analysis-status"
)

type Reconciler interface {
	Reconcile(ctx context.Context, w compliance.Webhook) (*compliance.Result, error)
}

type Validator interface {
	ValidateMap(activityID string, doc map[string]interface{}) error
}

type Handler struct {
	config     *Config
	reconciler Reconciler
	validator  Validator
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, reconciler Reconciler, validator Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		reconciler: reconciler,
		validator:  validator,
		errHandler: apperrors.NewErrorHandler(log),
		logger:     log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job.Variables)
	if err != nil {
		h.errHandler.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.errHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

func (h *Handler) parseInput(variables string) (*Input, error) {
	var vars map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &vars); err != nil {
		return nil, apperrors.NewValidationError("parse input: " + err.Error())
	}
	if err := h.validator.ValidateMap(registry.AnalysisWebhook, vars); err != nil {
		return nil, err
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewValidationError("parse input: " + err.Error())
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := h.reconciler.Reconcile(ctx, compliance.Webhook{
		GenerationID: input.GenerationID,
		Status:       input.Status,
		DocumentIDs:  input.DocumentIDs,
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		Outcome:           string(res.Outcome),
		CompanyID:         res.CompanyID,
		ComplianceStatus:  string(res.ComplianceStatus),
		EligibilityStatus: string(res.EligibilityStatus),
		Score:             res.Score,
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
