// internal/models/company.go
package models

import "time"

// ComplianceStatus is the tiered compliance classification of a company.
type ComplianceStatus string

const (
	ComplianceFailed  ComplianceStatus = "failed"
	ComplianceLow     ComplianceStatus = "low"
	ComplianceMedium  ComplianceStatus = "medium"
	ComplianceHigh    ComplianceStatus = "high"
	CompliancePending ComplianceStatus = "pending"
)

// EligibilityStatus records which listing board a company qualifies for.
type EligibilityStatus string

const (
	EligibilityPending   EligibilityStatus = "Pending"
	EligibilitySME       EligibilityStatus = "SME_Eligible"
	EligibilityMainboard EligibilityStatus = "Mainboard_Eligible"
	EligibilityFailed    EligibilityStatus = "Failed"
)

type Company struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	UserID             string            `json:"userId"`
	GenerationID       string            `json:"generationId,omitempty"`
	ScoredGenerationID string            `json:"scoredGenerationId,omitempty"`
	ComplianceStatus   ComplianceStatus  `json:"complianceStatus"`
	EligibilityStatus  EligibilityStatus `json:"eligibilityStatus"`
	GenerationNumber   int               `json:"generationNumber"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// InFlight reports whether the company's current generation cycle has not reached a
// terminal state.
func (c *Company) InFlight() bool {
	return c.GenerationID != "" &&
		c.ComplianceStatus == CompliancePending &&
		c.EligibilityStatus == EligibilityPending
}
