package models

// Plan represents the subscription plan a license grants.
type Plan string

const (
	// PlanFree is the default plan with basic functionality.
	PlanFree Plan = "FREE"
	// PlanPro unlocks the paid feature set.
	PlanPro Plan = "PRO"
)

// ValidPlans returns all valid plans.
func ValidPlans() []Plan {
	return []Plan{PlanFree, PlanPro}
}

// IsValid checks if the plan is a recognized value.
func (p Plan) IsValid() bool {
	for _, valid := range ValidPlans() {
		if p == valid {
			return true
		}
	}
	return false
}
