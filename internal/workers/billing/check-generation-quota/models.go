// internal/workers/billing/check-generation-quota/models.go
package checkgenerationquota

import "ipo-compliance/internal/subscription"

type Input struct {
	CompanyID string `json:"companyId"`
	Attempted bool   `json:"attempted"`
}

// Output is the gate decision flattened into process variables
type Output struct {
	CompanyID string `json:"companyId"`
	subscription.Decision
}
