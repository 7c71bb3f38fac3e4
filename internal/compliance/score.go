package compliance

import (
	"math"
	"regexp"
	"strings"

	"ipo-compliance/internal/models"
)

const (
	requiredDocumentWeight = 2.0
	optionalDocumentWeight = 1.0
)

// BucketComplianceFromScore maps an overall score to a tier. Boundaries are strict: 80 is
// medium and 60 is low.
func BucketComplianceFromScore(score float64) models.ComplianceStatus {
	switch {
	case score > 80:
		return models.ComplianceHigh
	case score > 60:
		return models.ComplianceMedium
	default:
		return models.ComplianceLow
	}
}

// Verdict patterns are checked in order; the first match decides the finding.
var verdicts = []struct {
	re     *regexp.Regexp
	points float64
}{
	{regexp.MustCompile(`(?i)\b(non[- ]?compliant|not compliant|not met|fail(ed|s|ure)?)\b`), 0},
	{regexp.MustCompile(`(?i)\b(partially compliant|partial(ly)?|warning)\b`), 0.5},
	{regexp.MustCompile(`(?i)\b(compliant|pass(ed|es)?|met)\b`), 1},
}

var (
	listItem     = regexp.MustCompile(`^([-*+]|\d+[.)])\s+`)
	tableDivider = regexp.MustCompile(`^\|?[\s:|-]+\|?$`)
)

// ScoreReport scores the findings of a markdown report in the range 0-100. It returns
// false when the report has no finding with a verdict.
func ScoreReport(markdown string) (float64, bool) {
	var findings, points float64

	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		isRow := strings.HasPrefix(line, "|") && !tableDivider.MatchString(line)
		if !isRow && !listItem.MatchString(line) {
			continue
		}
		for _, v := range verdicts {
			if v.re.MatchString(line) {
				findings++
				points += v.points
				break
			}
		}
	}

	if findings == 0 {
		return 0, false
	}
	return 100 * points / findings, true
}

// ScoreResult is the aggregate over one generation's documents.
type ScoreResult struct {
	Score           float64                 `json:"score"`
	Status          models.ComplianceStatus `json:"status"`
	ScoredDocuments int                     `json:"scoredDocuments"`
}

// Aggregate combines report scores into a weighted overall score. Required document types
// weigh double. A document that failed its basic check scores 0 regardless of its report;
// a document without a scorable report is left out.
func Aggregate(docs []models.Document, reports []models.ComplianceReport) ScoreResult {
	byDoc := make(map[string]*models.ComplianceReport, len(reports))
	for i := range reports {
		byDoc[reports[i].DocumentID] = &reports[i]
	}

	var weighted, weights float64
	scored := 0
	for _, doc := range docs {
		var score float64
		switch {
		case doc.BasicCheckStatus == models.BasicCheckFailed:
			score = 0
		case byDoc[doc.ID] != nil && byDoc[doc.ID].Score != nil:
			score = *byDoc[doc.ID].Score
		default:
			continue
		}

		w := optionalDocumentWeight
		if doc.DocumentType.Required() {
			w = requiredDocumentWeight
		}
		weighted += w * score
		weights += w
		scored++
	}

	overall := 0.0
	if weights > 0 {
		overall = math.Round(weighted/weights*100) / 100
	}
	return ScoreResult{
		Score:           overall,
		Status:          BucketComplianceFromScore(overall),
		ScoredDocuments: scored,
	}
}
