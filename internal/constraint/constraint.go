package constraint

import (
	"fmt"
	"math"

	"riskline/internal/domain"
)

const (
	defaultRampUpDays = 10
	defaultUrgentDays = 7
)

// Evaluator checks interventions against organizational limits. The zero
// value uses a 10 day ramp-up and a 7 day urgency threshold.
type Evaluator struct {
	RampUpDays int
	UrgentDays int
}

func New(rampUpDays, urgentDays int) Evaluator {
	return Evaluator{RampUpDays: rampUpDays, UrgentDays: urgentDays}
}

func (e Evaluator) rampUp() int {
	if e.RampUpDays > 0 {
		return e.RampUpDays
	}
	return defaultRampUpDays
}

func (e Evaluator) urgent() int {
	if e.UrgentDays > 0 {
		return e.UrgentDays
	}
	return defaultUrgentDays
}

// Evaluate returns the feasibility and penalty of one intervention.
func (e Evaluator) Evaluate(action domain.Intervention, ctx domain.ProjectContext) domain.ConstraintResult {
	switch action {
	case domain.AddEngineer:
		if ctx.DaysToDeadline < e.rampUp() {
			return domain.ConstraintResult{
				Feasible: false,
				Penalty:  0.8,
				Reason:   fmt.Sprintf("Ramp-up time (avg %d days) exceeds deadline window.", e.rampUp()),
			}
		}
		return domain.ConstraintResult{Feasible: true, Penalty: 0.2, Reason: "Standard onboarding cost applies."}
	case domain.EscalateDependency:
		return domain.ConstraintResult{Feasible: true, Penalty: 0.1, Reason: "Uses social capital but clears blockage."}
	}
	return domain.ConstraintResult{Feasible: true, Penalty: 0, Reason: "No constraints detected."}
}

// EvaluateAll folds every organizational constraint that fires into one opinion.
func (e Evaluator) EvaluateAll(ctx domain.ProjectContext) domain.AgentOpinion {
	var flags, evidence []string
	days := ctx.DaysToDeadline

	if days < e.urgent() {
		flags = append(flags, fmt.Sprintf("URGENT: Only %d days to deadline", days))
		evidence = append(evidence, fmt.Sprintf("Deadline pressure: %dd remaining", days))
	}
	if days < e.rampUp() {
		flags = append(flags, "Adding engineers is unsafe due to ramp-up time")
		evidence = append(evidence, fmt.Sprintf("Ramp-up (%dd) > deadline (%dd)", e.rampUp(), days))
	}
	if ctx.TeamCapacityPercent > 100 {
		flags = append(flags, "Team already over-capacity")
		evidence = append(evidence, fmt.Sprintf("Team load at %d%%", ctx.TeamCapacityPercent))
	}
	if ctx.IsBlocked {
		blocker := ctx.Blocker
		if blocker == "" {
			blocker = "Unknown"
		}
		flags = append(flags, "External dependency blocks progress")
		evidence = append(evidence, "Blocked by: "+blocker)
	}

	op := domain.AgentOpinion{
		Agent:      "ConstraintAgent",
		Confidence: math.Min(0.9, 0.5+float64(len(flags))*0.15),
		Evidence:   evidence,
	}
	switch len(flags) {
	case 0:
		op.Claim = "No significant constraints detected"
		op.Confidence = 0.3
		op.Evidence = []string{"No constraints detected"}
	case 1:
		op.Claim = flags[0]
	default:
		op.Claim = "Multiple organizational constraints limit available options"
	}
	return op
}
