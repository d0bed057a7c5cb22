package explain

import (
	"fmt"
	"strings"

	"riskline/internal/domain"
)

// Input is the structured analysis a summary is built from.
type Input struct {
	ProjectName     string
	TeamName        string
	Assessment      domain.RiskAssessment
	DaysToDeadline  int
	Opinions        []domain.AgentOpinion
	Comparisons     []domain.DecisionComparison
	Recommendations []string
}

// Prompt renders the explanation request for a language model.
func Prompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s (Team: %s)\n", in.ProjectName, in.TeamName)
	fmt.Fprintf(&b, "Risk Score: %.2f (%s)\n", in.Assessment.Score, in.Assessment.Level)
	fmt.Fprintf(&b, "Days to earliest deadline: %d\n\n", in.DaysToDeadline)

	b.WriteString("Agent Opinions:\n")
	for _, op := range in.Opinions {
		fmt.Fprintf(&b, "- %s: %s (confidence: %.0f%%)\n", op.Agent, op.Claim, op.Confidence*100)
	}
	b.WriteString("\nEvidence from Graph (REAL ticket data):\n")
	for _, e := range in.Assessment.Evidence {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	b.WriteString("\nDecision Comparison Table:\n")
	for _, d := range in.Comparisons {
		fmt.Fprintf(&b, "- %s: risk_reduction=%.0f%%, cost=%s, feasible=%t, recommended=%t\n",
			d.Action, d.RiskReduction*100, d.Cost, d.Feasible, d.Recommended)
	}
	b.WriteString("\nRecommended Actions:\n")
	for _, a := range in.Recommendations {
		fmt.Fprintf(&b, "- %s\n", a)
	}
	b.WriteString(`
Task: Provide a 3-sentence analysis:
1. Summarize the PRIMARY risk driver using ONLY the evidence above.
2. COUNTERFACTUAL: State what happens if NO action is taken (e.g. "If we do nothing, delivery will slip by X days because ...").
3. CONTRAST the top two interventions from the Decision Comparison Table and explain which one is better and WHY (e.g. cost vs. risk-reduction trade-off).
Do NOT introduce new facts. Only use the evidence above.
When referencing tickets, use the format [Ticket-ID] (e.g. [TKT-123]).
`)
	return b.String()
}

// Fallback renders the deterministic summary: primary driver, then the
// counterfactual delay, then the contrast of the top two interventions.
func Fallback(in Input) string {
	a := in.Assessment
	var parts []string

	switch {
	case len(a.Blocked) > 0:
		tk := a.Blocked[0]
		blockerTitle, status := "an upstream dependency", string(domain.StatusInProgress)
		if tk.Blocker.Title != "" {
			blockerTitle = tk.Blocker.Title
		}
		if tk.Blocker.Status != "" {
			status = string(tk.Blocker.Status)
		}
		parts = append(parts, fmt.Sprintf("**Primary Risk**: [%s] %q is blocked by [%s] %q (status: %s). "+
			"This creates a critical dependency chain affecting downstream work.",
			tk.ID, titleOr(tk.Title), tk.Blocker.ID, blockerTitle, status))
	case len(a.Overdue) > 0:
		tk := a.Overdue[0]
		parts = append(parts, fmt.Sprintf("**Primary Risk**: [%s] %q is overdue (due: %s). "+
			"This indicates timeline pressure and potential cascading delays.", tk.ID, titleOr(tk.Title), tk.DueDate))
	case len(a.NearDeadline) > 0:
		tk := a.NearDeadline[0]
		parts = append(parts, fmt.Sprintf("**Primary Risk**: [%s] %q is due in %d days "+
			"and may require acceleration to meet the deadline.", tk.ID, titleOr(tk.Title), in.DaysToDeadline))
	default:
		parts = append(parts, fmt.Sprintf("**Status**: %s is on track with no critical blockers detected.", in.ProjectName))
	}

	if a.Score > 0.3 {
		delay := max(1, int(a.Score*float64(in.DaysToDeadline)*0.5))
		parts = append(parts, fmt.Sprintf("**If No Action Taken**: Based on current velocity and %d blocked items, "+
			"delivery could slip by approximately %d days. The blocked tickets prevent parallel progress on dependent work.",
			len(a.Blocked), delay))
	}

	var recommended []domain.DecisionComparison
	for _, d := range in.Comparisons {
		if d.Recommended {
			recommended = append(recommended, d)
		}
	}
	switch {
	case len(recommended) >= 2:
		d1, d2 := recommended[0], recommended[1]
		parts = append(parts, fmt.Sprintf("**Recommended Intervention**: %s offers %.0f%% risk reduction at %s cost. "+
			"Alternative: %s (%.0f%% reduction); choose based on available resources and timeline constraints.",
			d1.Action, d1.RiskReduction*100, d1.Cost, d2.Action, d2.RiskReduction*100))
	case len(recommended) == 1:
		d := recommended[0]
		parts = append(parts, fmt.Sprintf("**Recommended Intervention**: %s achieves %.0f%% risk reduction "+
			"with %s organizational cost. %s", d.Action, d.RiskReduction*100, d.Cost, d.Reason))
	case len(in.Recommendations) > 0:
		parts = append(parts, "**Suggested Action**: "+in.Recommendations[0])
	}
	return strings.Join(parts, " ")
}

func titleOr(title string) string {
	if title == "" {
		return "Unknown"
	}
	return title
}
