package progress

import "time"

// Progress is one party's position in the fixed onboarding step sequence.
// One record exists per user; the selected listing only scopes which
// listing's document obligations feed the orchestrator, it does not reset
// the step cursor.
type Progress struct {
	ID                string
	UserID            string
	CurrentStep       int
	CompletedSteps    []int
	SelectedListingID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Completed reports whether step is in the completed set.
func (p Progress) Completed(step int) bool {
	for _, s := range p.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// maxCompleted returns the highest completed step, or -1 when none is.
func (p Progress) maxCompleted() int {
	max := -1
	for _, s := range p.CompletedSteps {
		if s > max {
			max = s
		}
	}
	return max
}

// Consistent verifies the cursor invariant: currentStep is either 0 with
// nothing completed, or exactly one past the highest completed step.
func (p Progress) Consistent() bool {
	return p.CurrentStep == p.maxCompleted()+1
}
