// internal/workers/compliance/sweep-stale-generations/models.go
package sweepstalegenerations

// Output lists the companies whose cycles were failed by this run.
type Output struct {
	FailedCompanyIDs []string `json:"failedCompanyIds"`
	FailedCount      int      `json:"failedCount"`
}
