package compliance

import (
	"context"
	"fmt"
	"time"

	"ipo-compliance/internal/common/logger"
	"ipo-compliance/internal/common/metrics"
	"ipo-compliance/internal/models"

	"golang.org/x/sync/errgroup"
)

// ReportBackend fetches per-document reports from the analysis backend.
type ReportBackend interface {
	FetchReport(ctx context.Context, token, generationID, documentID string) (string, error)
}

// ReportCache is the tagged cache the reports are kept in.
type ReportCache interface {
	GetJSON(ctx context.Context, key string, v interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration, tags ...string) error
	InvalidateTag(ctx context.Context, tag string) (int, error)
}

// ReportCacheKey is the cache key of a company's reports for one generation.
func ReportCacheKey(companyID, generationID string) string {
	return fmt.Sprintf("compliance:reports:%s:%s", companyID, generationID)
}

// CompanyTag groups every cached report set of a company.
func CompanyTag(companyID string) string {
	return "company:" + companyID
}

// ReportService fetches reports with bounded parallelism and caches complete sets.
type ReportService struct {
	backend     ReportBackend
	cache       ReportCache
	concurrency int
	logger      logger.Logger
}

func NewReportService(backend ReportBackend, cache ReportCache, concurrency int, log logger.Logger) *ReportService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ReportService{
		backend:     backend,
		cache:       cache,
		concurrency: concurrency,
		logger:      log.WithFields(map[string]interface{}{"component": "reports"}),
	}
}

// Fetch returns scored reports for docs. A document whose fetch fails is skipped; the set
// is cached only when every fetch succeeded.
func (s *ReportService) Fetch(ctx context.Context, token, companyID, generationID string, docs []models.Document) ([]models.ComplianceReport, error) {
	key := ReportCacheKey(companyID, generationID)

	var cached []models.ComplianceReport
	found, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("report cache read failed", map[string]interface{}{"error": err, "key": key})
	}
	if found {
		metrics.ReportCacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.ReportCacheLookups.WithLabelValues("miss").Inc()

	// each slot is written by exactly one goroutine; nil marks a failed fetch
	results := make([]*models.ComplianceReport, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			markdown, err := s.backend.FetchReport(gctx, token, generationID, doc.ID)
			if err != nil {
				metrics.ReportFetchFailures.Inc()
				s.logger.Warn("report fetch failed, excluding document", map[string]interface{}{
					"error":        err,
					"documentId":   doc.ID,
					"generationId": generationID,
				})
				return nil
			}

			report := &models.ComplianceReport{
				DocumentID:   doc.ID,
				DocumentType: doc.DocumentType,
				GenerationID: generationID,
				Markdown:     markdown,
			}
			if score, ok := ScoreReport(markdown); ok {
				report.Score = &score
				report.Status = BucketComplianceFromScore(score)
			}
			results[i] = report
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reports := make([]models.ComplianceReport, 0, len(results))
	for _, r := range results {
		if r != nil {
			reports = append(reports, *r)
		}
	}
	failures := len(docs) - len(reports)

	if failures == 0 {
		if err := s.cache.SetJSON(ctx, key, reports, 0, CompanyTag(companyID)); err != nil {
			s.logger.Warn("report cache write failed", map[string]interface{}{"error": err, "key": key})
		}
	}
	return reports, nil
}

// Cached returns the cached report set without contacting the backend.
func (s *ReportService) Cached(ctx context.Context, companyID, generationID string) ([]models.ComplianceReport, bool, error) {
	var reports []models.ComplianceReport
	found, err := s.cache.GetJSON(ctx, ReportCacheKey(companyID, generationID), &reports)
	return reports, found, err
}

// Invalidate drops every cached report set of the company.
func (s *ReportService) Invalidate(ctx context.Context, companyID string) (int, error) {
	return s.cache.InvalidateTag(ctx, CompanyTag(companyID))
}
