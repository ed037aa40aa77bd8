package document

import "time"

// Type enumerates the document kinds the pipeline knows about. Values are
// the stable string tokens persisted in the documents table.
type Type string

const (
	TypeEmailAgent         Type = "EMAIL_AGENT"
	TypeUploadedDoc        Type = "UPLOADED_DOC"
	TypePurchaseAgreement  Type = "PURCHASE_AGREEMENT"
	TypeDueDiligence       Type = "DUE_DILIGENCE"
	TypePreCloseChecklist  Type = "PRE_CLOSE_CHECKLIST"
	TypeClosingDocs        Type = "CLOSING_DOCS"
	TypeNDA                Type = "NDA"
	TypeFinancialStatement Type = "FINANCIAL_STATEMENT"
	TypeCbrCim             Type = "CBR_CIM"
	TypePurchaseContract   Type = "PURCHASE_CONTRACT"
	TypeListingAgreement   Type = "LISTING_AGREEMENT"
	TypeQuestionnaire      Type = "QUESTIONNAIRE"
	TypeAfterSale          Type = "AFTER_SALE"
	TypeFinancialDocuments Type = "FINANCIAL_DOCUMENTS"
)

// Status is the two-state document lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

// Category records which party the document obligation belongs to.
type Category string

const (
	CategorySellerUpload    Category = "SELLER_UPLOAD"
	CategoryAgentProvided   Category = "AGENT_PROVIDED"
	CategoryBuyerUpload     Category = "BUYER_UPLOAD"
	CategorySystemGenerated Category = "SYSTEM_GENERATED"
)

// OperationType states which file operations must occur before the
// document counts as COMPLETED. NONE implies no operations: such records
// are informational and are complete from creation, so they never gate a
// pipeline step.
type OperationType string

const (
	OperationUpload   OperationType = "UPLOAD"
	OperationDownload OperationType = "DOWNLOAD"
	OperationBoth     OperationType = "BOTH"
	OperationNone     OperationType = "NONE"
)

// Document is one file obligation tied to a deal. Documents are permanent
// audit records; they are never deleted.
type Document struct {
	ID               string
	Type             Type
	Status           Status
	Category         Category
	Operation        OperationType
	SellerID         string
	BuyerID          *string
	ListingID        *string
	UploadedByUserID *string
	URL              *string
	FileName         *string
	FileSize         *int64
	Step             *int
	UploadedAt       *time.Time
	DownloadedAt     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// satisfied reports whether the operations implied by op have all
// occurred. It is the single source of truth for the COMPLETED invariant.
func satisfied(op OperationType, uploadedAt, downloadedAt *time.Time) bool {
	switch op {
	case OperationUpload:
		return uploadedAt != nil
	case OperationDownload:
		return downloadedAt != nil
	case OperationBoth:
		return uploadedAt != nil && downloadedAt != nil
	case OperationNone:
		// No operations implied, so all of them have vacuously occurred.
		return true
	default:
		return false
	}
}

// deriveStatus recomputes the document status from its timestamps.
func deriveStatus(op OperationType, uploadedAt, downloadedAt *time.Time) Status {
	if satisfied(op, uploadedAt, downloadedAt) {
		return StatusCompleted
	}
	return StatusPending
}
