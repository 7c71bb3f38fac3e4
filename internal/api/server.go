// Package api exposes the reconciliation core and its UI-facing operations over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"ipo-compliance/internal/common/logger"
	"ipo-compliance/internal/compliance"
	"ipo-compliance/internal/models"
	"ipo-compliance/internal/subscription"
	"ipo-compliance/internal/valuation"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Reconciler interface {
	Reconcile(ctx context.Context, w compliance.Webhook) (*compliance.Result, error)
}

type Generations interface {
	Start(ctx context.Context, companyID, clientID string) (*compliance.Generation, error)
}

type QuotaChecker interface {
	Check(ctx context.Context, companyID string, attempted bool) (*models.Company, subscription.Decision, error)
}

type CompanyReader interface {
	CompanyByID(ctx context.Context, companyID string) (*models.Company, error)
}

type ReportReader interface {
	Cached(ctx context.Context, companyID, generationID string) ([]models.ComplianceReport, bool, error)
}

type Valuations interface {
	Initials(ctx context.Context, companyID, clientID string, req valuation.InitialsRequest) (*models.IPOValuation, error)
	Calculate(ctx context.Context, companyID, clientID string, req valuation.CalculateRequest) (*models.IPOValuation, error)
	Complete(ctx context.Context, c valuation.Completion) error
}

// PayloadValidator checks a raw body against the schema registered for an activity.
type PayloadValidator interface {
	ValidateJSON(activityID string, body []byte) error
}

// ReadinessCheck reports whether a dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

type Config struct {
	WebhookRPS   int
	WebhookBurst int
	Version      string
}

type Deps struct {
	Reconciler  Reconciler
	Generations Generations
	Quota       QuotaChecker
	Companies   CompanyReader
	Reports     ReportReader
	Valuations  Valuations
	Validator   PayloadValidator
	Checks      map[string]ReadinessCheck
}

type Server struct {
	cfg    Config
	deps   Deps
	logger logger.Logger
}

func NewServer(cfg Config, deps Deps, log logger.Logger) *Server {
	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), Recovery(s.logger), RequestLogger(s.logger))

	router.GET("/health", s.health)
	router.GET("/ready", s.ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")

	webhooks := api.Group("/webhooks")
	webhooks.Use(RateLimit(s.cfg.WebhookRPS, s.cfg.WebhookBurst, s.logger))
	{
		webhooks.POST("/analysis", s.analysisWebhook)
		webhooks.POST("/valuation", s.valuationWebhook)
	}

	companies := api.Group("/companies/:companyId")
	companies.Use(s.requireClientID)
	{
		companies.POST("/generations", s.startGeneration)
		companies.GET("/generation-quota", s.generationQuota)
		companies.GET("/compliance", s.complianceStatus)
		companies.POST("/valuations/initials", s.valuationInitials)
		companies.POST("/valuations/calculate", s.valuationCalculate)
	}

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.cfg.Version})
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{"checks": results})
}
