package debate

import (
	"fmt"
	"strings"

	"riskline/internal/domain"
)

// State is what reviewers see of the analysis under debate.
type State struct {
	ProjectID   string
	ProjectName string
	RiskScore   float64
	Context     domain.ProjectContext
	// Proposed is the intervention behind the proposer's action, if any.
	Proposed domain.Intervention
}

// Reviewer responds to the proposer's turn.
type Reviewer interface {
	Review(state State, proposal domain.DebateTurn) domain.DebateTurn
}

// Outcome is the debate log together with its resolved consensus.
type Outcome struct {
	Turns     []domain.DebateTurn `json:"debate_log"`
	Consensus string              `json:"consensus"`
}

// DefaultProposeThreshold is the risk score above which the proposer pushes for action.
const DefaultProposeThreshold = 0.4

// Propose wraps a risk assessment as the opening turn.
func Propose(a domain.RiskAssessment, primaryReason, topAction string, threshold float64) domain.DebateTurn {
	vote := domain.VoteAgree
	if a.Score > threshold {
		vote = domain.VotePropose
	}
	if topAction == "" {
		topAction = domain.MonitorAction
	}
	lead := a.Evidence
	if len(lead) > 2 {
		lead = lead[:2]
	}
	return domain.DebateTurn{
		AgentName:      "RiskAgent",
		Vote:           vote,
		Claim:          primaryReason,
		Reasoning:      fmt.Sprintf("Risk Score: %.2f. ", a.Score) + strings.Join(lead, " "),
		Confidence:     0.85,
		Evidence:       a.Evidence,
		ProposedAction: topAction,
	}
}

// Run collects one response from every reviewer and arbitrates. There is no
// second round.
func Run(state State, proposal domain.DebateTurn, reviewers ...Reviewer) Outcome {
	turns := []domain.DebateTurn{proposal}
	for _, r := range reviewers {
		turns = append(turns, r.Review(state, proposal))
	}
	return Outcome{Turns: turns, Consensus: Arbitrate(turns)}
}

// Arbitrate resolves a debate log: the first veto wins, then the first
// challenge, then the proposer's proposal. Anything else keeps the status quo.
func Arbitrate(turns []domain.DebateTurn) string {
	for _, t := range turns {
		if t.Vote == domain.VoteVeto {
			return fmt.Sprintf("Action Blocked by %s: %s", t.AgentName, t.Claim)
		}
	}
	for _, t := range turns {
		if t.Vote == domain.VoteChallenge {
			return fmt.Sprintf("Action Challenged: %s — Requires Review", t.Claim)
		}
	}
	if len(turns) > 0 && turns[0].Vote == domain.VotePropose {
		action := turns[0].ProposedAction
		if action == "" {
			action = domain.MonitorAction
		}
		return "Approved: " + action
	}
	return "Status Quo Maintained (No Action Needed)"
}

// proposedIntervention resolves which intervention a proposal refers to.
func proposedIntervention(state State, proposal domain.DebateTurn) (domain.Intervention, bool) {
	if state.Proposed != "" {
		return state.Proposed, true
	}
	for _, i := range domain.Interventions {
		if strings.HasPrefix(proposal.ProposedAction, i.Title()) {
			return i, true
		}
	}
	return "", false
}
