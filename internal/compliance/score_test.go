package compliance

import (
	"testing"

	"ipo-compliance/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketComplianceFromScore_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  models.ComplianceStatus
	}{
		{100, models.ComplianceHigh},
		{81, models.ComplianceHigh},
		{80.01, models.ComplianceHigh},
		{80, models.ComplianceMedium},
		{61, models.ComplianceMedium},
		{60.5, models.ComplianceMedium},
		{60, models.ComplianceLow},
		{0, models.ComplianceLow},
		{-5, models.ComplianceLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BucketComplianceFromScore(tt.score), "score %v", tt.score)
	}
}

func TestBucketComplianceFromScore_Total(t *testing.T) {
	for s := -10.0; s <= 110; s += 0.25 {
		got := BucketComplianceFromScore(s)
		assert.Contains(t, []models.ComplianceStatus{models.ComplianceHigh, models.ComplianceMedium, models.ComplianceLow}, got)
	}
}

const auditReport = `# Audit report review

| Requirement | Status |
|---|---|
| Auditor is peer reviewed | Compliant |
| Qualified opinion disclosed | Partially Compliant |
| CARO annexure attached | Non-Compliant |

- Related party disclosures: **Met**
- Contingent liabilities: Not met
Summary: the company is compliant overall.
`

func TestScoreReport(t *testing.T) {
	score, ok := ScoreReport(auditReport)
	require.True(t, ok)
	// 1 + 0.5 + 0 + 1 + 0 over five findings; the summary line is not a finding
	assert.InDelta(t, 50.0, score, 0.001)
}

func TestScoreReport_NoFindings(t *testing.T) {
	_, ok := ScoreReport("# Report\n\nThe document could not be parsed.\n\n| Field | Value |\n|---|---|\n| Pages | 12 |")
	assert.False(t, ok)
}

func TestScoreReport_WordBoundaries(t *testing.T) {
	score, ok := ScoreReport("- Method statement present: Pass\n- Metadata reviewed: warning")
	require.True(t, ok)
	assert.InDelta(t, 75.0, score, 0.001)
}

func ptr(f float64) *float64 { return &f }

func TestAggregate_WeightsAndFailedDocuments(t *testing.T) {
	docs := []models.Document{
		{ID: "d1", DocumentType: models.DocAuditReport, BasicCheckStatus: models.BasicCheckPassed},
		{ID: "d2", DocumentType: models.DocBusinessPlan, BasicCheckStatus: models.BasicCheckPassed},
		{ID: "d3", DocumentType: models.DocTaxReturns, BasicCheckStatus: models.BasicCheckFailed},
		{ID: "d4", DocumentType: models.DocOther, BasicCheckStatus: models.BasicCheckPassed},
	}
	reports := []models.ComplianceReport{
		{DocumentID: "d1", Score: ptr(90)},
		{DocumentID: "d2", Score: ptr(60)},
		{DocumentID: "d3", Score: ptr(100)},
		{DocumentID: "d4"}, // unscorable
	}

	res := Aggregate(docs, reports)
	// (2*90 + 1*60 + 2*0) / 5
	assert.Equal(t, 48.0, res.Score)
	assert.Equal(t, models.ComplianceLow, res.Status)
	assert.Equal(t, 3, res.ScoredDocuments)
}

func TestAggregate_RoundsToTwoDecimals(t *testing.T) {
	docs := []models.Document{
		{ID: "d1", DocumentType: models.DocOther, BasicCheckStatus: models.BasicCheckPassed},
		{ID: "d2", DocumentType: models.DocOther, BasicCheckStatus: models.BasicCheckPassed},
		{ID: "d3", DocumentType: models.DocOther, BasicCheckStatus: models.BasicCheckPassed},
	}
	reports := []models.ComplianceReport{
		{DocumentID: "d1", Score: ptr(100)},
		{DocumentID: "d2", Score: ptr(100)},
		{DocumentID: "d3", Score: ptr(50)},
	}

	res := Aggregate(docs, reports)
	assert.Equal(t, 83.33, res.Score)
	assert.Equal(t, models.ComplianceHigh, res.Status)
}

func TestAggregate_NothingScorable(t *testing.T) {
	res := Aggregate([]models.Document{{ID: "d1", BasicCheckStatus: models.BasicCheckPassed}}, nil)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, models.ComplianceLow, res.Status)
	assert.Equal(t, 0, res.ScoredDocuments)
}
