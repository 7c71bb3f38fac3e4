// internal/workers/compliance/reconcile-analysis-status/models.go
package reconcileanalysisstatus

// Input mirrors the analysis webhook payload carried as process variables.
type Input struct {
	GenerationID string   `json:"generation_id"`
	Status       string   `json:"status"`
	DocumentIDs  []string `json:"document_ids"`
}

// Output represents the reconciliation result written back to the process
type Output struct {
	Outcome           string   `json:"outcome"`
	CompanyID         string   `json:"companyId,omitempty"`
	ComplianceStatus  string   `json:"complianceStatus,omitempty"`
	EligibilityStatus string   `json:"eligibilityStatus,omitempty"`
	Score             *float64 `json:"score,omitempty"`
}
