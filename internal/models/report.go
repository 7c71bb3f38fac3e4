package models

// ComplianceReport is a per-document report fetched from the analysis backend.
type ComplianceReport struct {
	DocumentID   string       `json:"documentId"`
	DocumentType DocumentType `json:"documentType"`
	GenerationID string       `json:"generationId"`
	Markdown     string       `json:"markdown"`
	// Score is nil when the report carries no verdict lines.
	Score  *float64         `json:"score,omitempty"`
	Status ComplianceStatus `json:"status,omitempty"`
}
