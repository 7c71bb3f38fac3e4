// internal/workers/billing/check-generation-quota/handler.go
package checkgenerationquota

import (
	"context"
	"encoding/json"
	"errors"

	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/common/logger"
	"ipo-compliance/internal/common/metrics"
	"ipo-compliance/internal/models"
	"ipo-compliance/internal/store"
	"ipo-compliance/internal/subscription"
	"ipo-compliance/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"
)

const (
	TaskType = "check-generation-quota"
)

type Store interface {
	CompanyByID(ctx context.Context, companyID string) (*models.Company, error)
	UserByID(ctx context.Context, userID string) (*models.User, error)
}

type Validator interface {
	ValidateMap(activityID string, doc map[string]interface{}) error
}

type Handler struct {
	config     *Config
	store      Store
	redis      redis.Cmdable
	validator  Validator
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, st Store, rdb redis.Cmdable, validator Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		store:      st,
		redis:      rdb,
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

	var vars map[string]interface{}
	if err := json.Unmarshal([]byte(job.Variables), &vars); err != nil {
		h.errHandler.HandleJobError(ctx, client, job, apperrors.NewValidationError("parse input: "+err.Error()))
		return
	}
	if err := h.validator.ValidateMap(registry.CheckGenerationQuota, vars); err != nil {
		h.errHandler.HandleJobError(ctx, client, job, err)
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errHandler.HandleJobError(ctx, client, job, apperrors.NewValidationError("parse input: "+err.Error()))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errHandler.HandleJobError(ctx, client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err.Error()})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err.Error()})
	}
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	company, err := h.store.CompanyByID(ctx, input.CompanyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewCompanyNotFoundError("companyId: " + input.CompanyID)
	}
	if err != nil {
		return nil, err
	}

	plan, cached, err := h.planFor(ctx, company, false)
	if err != nil {
		return nil, err
	}

	d := subscription.Evaluate(plan, company.GenerationNumber, input.Attempted)
	if cached && !d.Allowed {
		// a cached plan may predate an upgrade; denials are always re-read
		plan, _, err = h.planFor(ctx, company, true)
		if err != nil {
			return nil, err
		}
		d = subscription.Evaluate(plan, company.GenerationNumber, input.Attempted)
	}

	metrics.GenerationGateDecisions.WithLabelValues(plan.String(), boolLabel(d.Allowed)).Inc()
	return &Output{CompanyID: company.ID, Decision: d}, nil
}

// planFor reads the owner's plan through a short-lived cache unless fresh is set, and
// reports whether the value came from the cache. Cache failures fall back to the database.
func (h *Handler) planFor(ctx context.Context, company *models.Company, fresh bool) (subscription.Plan, bool, error) {
	cacheKey := subscription.PlanCacheKey(company.UserID)
	if !fresh {
		val, err := h.redis.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			return subscription.ParsePlan(val), true, nil
		case !errors.Is(err, redis.Nil):
			h.logger.Warn("plan cache read failed", map[string]interface{}{"key": cacheKey, "error": err.Error()})
		}
	}

	user, err := h.store.UserByID(ctx, company.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return subscription.PlanNone, false, apperrors.NewUserNotFoundError(company.ID)
	}
	if err != nil {
		return subscription.PlanNone, false, err
	}

	plan := subscription.ParsePlan(user.Plan)
	if err := h.redis.Set(ctx, cacheKey, plan.String(), h.config.CacheTTL).Err(); err != nil {
		h.logger.Warn("plan cache write failed", map[string]interface{}{"key": cacheKey, "error": err.Error()})
	}
	return plan, false, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
