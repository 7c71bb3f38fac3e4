// internal/models/document.go
package models

import "time"

// BasicCheckStatus is the per-document pass/fail classification.
type BasicCheckStatus string

const (
	BasicCheckPending BasicCheckStatus = "Pending"
	BasicCheckPassed  BasicCheckStatus = "Passed"
	BasicCheckFailed  BasicCheckStatus = "Failed"
)

// DocumentType is the closed set of regulatory artifacts a company uploads.
type DocumentType string

const (
	DocFinancialStatements        DocumentType = "financial_statements"
	DocAuditReport                DocumentType = "audit_report"
	DocMemorandumOfAssociation    DocumentType = "memorandum_of_association"
	DocArticlesOfAssociation      DocumentType = "articles_of_association"
	DocCertificateOfIncorporation DocumentType = "certificate_of_incorporation"
	DocBoardResolution            DocumentType = "board_resolution"
	DocPromoterKYC                DocumentType = "promoter_kyc"
	DocTaxReturns                 DocumentType = "tax_returns"

	DocBusinessPlan    DocumentType = "business_plan"
	DocValuationReport DocumentType = "valuation_report"
	DocOther           DocumentType = "other"
)

var requiredDocumentTypes = map[DocumentType]bool{
	DocFinancialStatements:        true,
	DocAuditReport:                true,
	DocMemorandumOfAssociation:    true,
	DocArticlesOfAssociation:      true,
	DocCertificateOfIncorporation: true,
	DocBoardResolution:            true,
	DocPromoterKYC:                true,
	DocTaxReturns:                 true,
}

var optionalDocumentTypes = map[DocumentType]bool{
	DocBusinessPlan:    true,
	DocValuationReport: true,
	DocOther:           true,
}

// Required reports whether the type is mandatory for an IPO filing.
func (t DocumentType) Required() bool {
	return requiredDocumentTypes[t]
}

func (t DocumentType) Valid() bool {
	return requiredDocumentTypes[t] || optionalDocumentTypes[t]
}

type Document struct {
	ID               string           `json:"id"`
	CompanyID        string           `json:"companyId"`
	DocumentType     DocumentType     `json:"documentType"`
	FileName         string           `json:"fileName"`
	BasicCheckStatus BasicCheckStatus `json:"basicCheckStatus"`
	GenerationID     string           `json:"generationId,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}
