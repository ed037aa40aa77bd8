// Package questionnaire manages the seller questionnaire, the structured
// intake form a seller completes before the business goes to market. The
// typed sections are persisted as one jsonb document with an explicit
// schema version so old rows stay readable as the form evolves.
package questionnaire

import "time"

// SchemaVersion is the version written with every saved questionnaire.
const SchemaVersion = 1

// BusinessProfile describes the business being sold.
type BusinessProfile struct {
	LegalName      string `json:"legal_name"`
	Industry       string `json:"industry"`
	YearFounded    int    `json:"year_founded"`
	EmployeeCount  int    `json:"employee_count"`
	LocationCity   string `json:"location_city"`
	LocationState  string `json:"location_state"`
	PremisesOwned  bool   `json:"premises_owned"`
	ReasonForSale  string `json:"reason_for_sale"`
	BusinessesDesc string `json:"description"`
}

// Financials summarizes the numbers a buyer sees first.
type Financials struct {
	AnnualRevenue    int64 `json:"annual_revenue"`
	AnnualProfit     int64 `json:"annual_profit"`
	OwnerSalary      int64 `json:"owner_salary"`
	InventoryValue   int64 `json:"inventory_value"`
	EquipmentValue   int64 `json:"equipment_value"`
	OutstandingDebts int64 `json:"outstanding_debts"`
}

// SaleTerms captures what the seller wants out of the deal.
type SaleTerms struct {
	AskingPrice       int64  `json:"asking_price"`
	SellerFinancing   bool   `json:"seller_financing"`
	TrainingPeriod    string `json:"training_period"`
	NonCompeteYears   int    `json:"non_compete_years"`
	IncludedAssets    string `json:"included_assets"`
	PreferredTimeline string `json:"preferred_timeline"`
}

// Sections is the versioned payload stored in the jsonb column.
type Sections struct {
	BusinessProfile BusinessProfile `json:"business_profile"`
	Financials      Financials      `json:"financials"`
	SaleTerms       SaleTerms       `json:"sale_terms"`
}

// Questionnaire is one seller's intake form. There is at most one row
// per seller; Save upserts it in place.
type Questionnaire struct {
	ID            string
	SellerID      string
	SchemaVersion int
	Sections      Sections
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Completed reports whether the seller has finalized the form.
func (q Questionnaire) Completed() bool {
	return q.CompletedAt != nil
}
