package debate

import (
	"fmt"

	"riskline/internal/constraint"
	"riskline/internal/domain"
)

// FinanceReviewer weighs a proposal against the team's burn rate.
type FinanceReviewer struct {
	DevDayCost  float64
	HireDayCost float64
	HireDays    int
	BudgetDays  int
}

// DefaultFinance uses a $800 loaded dev day and a 30 day senior hire at $1200/day.
func DefaultFinance() FinanceReviewer {
	return FinanceReviewer{DevDayCost: 800, HireDayCost: 1200, HireDays: 30, BudgetDays: 10}
}

func (f FinanceReviewer) Review(state State, proposal domain.DebateTurn) domain.DebateTurn {
	dailyBurn := float64(state.Context.TeamSize) * f.DevDayCost
	turn := domain.DebateTurn{
		AgentName:      "FinanceAgent",
		Vote:           domain.VoteAgree,
		Claim:          "Budget allows for standard remediation.",
		Reasoning:      "Cost-benefit analysis matches organization parameters.",
		Confidence:     0.9,
		ProposedAction: proposal.ProposedAction,
	}
	impact := 0.0

	action, _ := proposedIntervention(state, proposal)
	switch action {
	case domain.AddEngineer:
		impact = f.HireDayCost * float64(f.HireDays)
		if impact > dailyBurn*float64(f.BudgetDays) {
			turn.Vote = domain.VoteChallenge
			turn.Claim = fmt.Sprintf("Proposed addition is too expensive ($%.1fk).", impact/1000)
			turn.Reasoning = "Cost of Senior Engineer exceeds budget threshold."
			turn.Confidence = 0.85
		} else {
			turn.Claim = fmt.Sprintf("Investment of $%.1fk is justified for risk reduction.", impact/1000)
		}
	case domain.ReduceScope:
		turn.Claim = "Scope reduction is cost-neutral and effectively reduces burn risk."
	case domain.EscalateDependency:
		turn.Claim = "Escalation incurs no direct financial cost but uses management capital."
	}
	turn.Evidence = []string{
		fmt.Sprintf("Daily Team Burn: $%.0f", dailyBurn),
		fmt.Sprintf("Projected Impact: $%.0f", impact),
	}
	turn.CostProjection = &impact
	return turn
}

// ConstraintReviewer vetoes proposals the organization cannot carry out.
type ConstraintReviewer struct {
	Constraints constraint.Evaluator
}

func (c ConstraintReviewer) Review(state State, proposal domain.DebateTurn) domain.DebateTurn {
	turn := domain.DebateTurn{
		AgentName:      "ConstraintAgent",
		ProposedAction: proposal.ProposedAction,
	}
	action, ok := proposedIntervention(state, proposal)
	if !ok {
		turn.Vote = domain.VoteAbstain
		turn.Claim = "No intervention proposed."
		turn.Reasoning = "Monitoring carries no organizational constraints."
		turn.Confidence = 0.5
		return turn
	}
	res := c.Constraints.Evaluate(action, state.Context)
	feasible := res.Feasible
	turn.Feasible = &feasible
	turn.Reasoning = res.Reason
	turn.Evidence = []string{
		fmt.Sprintf("Days to deadline: %d", state.Context.DaysToDeadline),
		fmt.Sprintf("Constraint penalty: %.2f", res.Penalty),
	}
	if !res.Feasible {
		turn.Vote = domain.VoteVeto
		turn.Claim = fmt.Sprintf("%s is not feasible. %s", action.Title(), res.Reason)
		turn.Confidence = 0.9
		return turn
	}
	turn.Vote = domain.VoteAgree
	turn.Claim = fmt.Sprintf("%s is feasible within organizational constraints.", action.Title())
	turn.Confidence = 0.8
	return turn
}
