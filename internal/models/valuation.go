// internal/models/valuation.go
package models

import (
	"encoding/json"
	"time"
)

// IPOValuation holds one (company, generation) valuation run.
type IPOValuation struct {
	ID               string          `json:"id"`
	CompanyID        string          `json:"companyId"`
	GenerationID     string          `json:"generationId"`
	Narrative        json.RawMessage `json:"narrative,omitempty"`
	Financials       json.RawMessage `json:"financials,omitempty"`
	InputJSON        json.RawMessage `json:"inputJson,omitempty"`
	OutputJSON       json.RawMessage `json:"outputJson,omitempty"`
	PDFURL           string          `json:"ipoValuationPdfUrl,omitempty"`
	ReportProcessing bool            `json:"reportProcessing"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}
