// Package compliance reconciles analysis backend webhooks into document and company
// statuses, scores the resulting reports and fails stale generation cycles.
package compliance

import "ipo-compliance/internal/models"

// Upstream statuses reported by the analysis backend. Anything else is treated as failure.
const (
	UpstreamCompleted  = "Completed"
	UpstreamProcessing = "Processing"
)

// MapBasicCheckStatus maps an upstream status to a per-document basic check status.
func MapBasicCheckStatus(upstream string) models.BasicCheckStatus {
	switch upstream {
	case UpstreamCompleted:
		return models.BasicCheckPassed
	case UpstreamProcessing:
		return models.BasicCheckPending
	default:
		return models.BasicCheckFailed
	}
}

// MapIntermediateComplianceStatus maps an upstream status to the compliance bucket held
// until the final score is known.
func MapIntermediateComplianceStatus(upstream string) models.ComplianceStatus {
	switch upstream {
	case UpstreamCompleted:
		return models.ComplianceHigh
	case UpstreamProcessing:
		return models.CompliancePending
	default:
		return models.ComplianceFailed
	}
}

// MapIntermediateEligibility maps an upstream status to the eligibility held until the
// final score is known.
func MapIntermediateEligibility(upstream string) models.EligibilityStatus {
	switch upstream {
	case UpstreamCompleted:
		return models.EligibilitySME
	case UpstreamProcessing:
		return models.EligibilityPending
	default:
		return models.EligibilityFailed
	}
}
