package pipeline

import (
	"fmt"

	"dealflow/document"
)

// Step is one stage of a party's onboarding pipeline and the document
// types that must be COMPLETED before the cursor may move past it.
type Step struct {
	Number       int
	Name         string
	RequiredDocs []document.Type
}

// Config is the ordered, fixed step set for one party. Step numbers must
// be contiguous from zero.
type Config struct {
	steps []Step
}

func NewConfig(steps []Step) (Config, error) {
	if len(steps) == 0 {
		return Config{}, fmt.Errorf("pipeline: at least one step required")
	}
	for i, s := range steps {
		if s.Number != i {
			return Config{}, fmt.Errorf("pipeline: steps must be contiguous from 0, got %d at position %d", s.Number, i)
		}
	}
	out := make([]Step, len(steps))
	copy(out, steps)
	return Config{steps: out}, nil
}

// FinalStep returns the highest configured step number.
func (c Config) FinalStep() int {
	return len(c.steps) - 1
}

// Required returns the document types gating the given step. Unknown
// steps gate on nothing.
func (c Config) Required(step int) []document.Type {
	if step < 0 || step >= len(c.steps) {
		return nil
	}
	return c.steps[step].RequiredDocs
}

// StepName returns the configured display name for the step.
func (c Config) StepName(step int) string {
	if step < 0 || step >= len(c.steps) {
		return ""
	}
	return c.steps[step].Name
}

// DefaultSellerSteps is the stock seller onboarding sequence.
func DefaultSellerSteps() Config {
	cfg, err := NewConfig([]Step{
		{Number: 0, Name: "questionnaire", RequiredDocs: []document.Type{document.TypeQuestionnaire}},
		{Number: 1, Name: "listing agreement", RequiredDocs: []document.Type{document.TypeListingAgreement}},
		{Number: 2, Name: "financials", RequiredDocs: []document.Type{document.TypeFinancialStatement, document.TypeFinancialDocuments}},
		{Number: 3, Name: "marketing package", RequiredDocs: []document.Type{document.TypeCbrCim}},
		{Number: 4, Name: "purchase agreement", RequiredDocs: []document.Type{document.TypePurchaseAgreement}},
	})
	if err != nil {
		panic(err)
	}
	return cfg
}

// DefaultBuyerSteps is the stock buyer onboarding sequence.
func DefaultBuyerSteps() Config {
	cfg, err := NewConfig([]Step{
		{Number: 0, Name: "nda", RequiredDocs: []document.Type{document.TypeNDA}},
		{Number: 1, Name: "financial qualification", RequiredDocs: []document.Type{document.TypeFinancialStatement}},
		{Number: 2, Name: "due diligence", RequiredDocs: []document.Type{document.TypeDueDiligence}},
		{Number: 3, Name: "purchase contract", RequiredDocs: []document.Type{document.TypePurchaseContract}},
		{Number: 4, Name: "closing", RequiredDocs: []document.Type{document.TypeClosingDocs}},
	})
	if err != nil {
		panic(err)
	}
	return cfg
}
