package teamsim

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"riskline/internal/domain"
)

var printer = message.NewPrinter(language.English)

var verbs = map[domain.TeamAction]string{
	domain.TeamAdd:      "Adding",
	domain.TeamRemove:   "Removing",
	domain.TeamTransfer: "Transferring",
}

func reasoning(m domain.TeamMutation, baseline, projected, delta, cost, velocity float64,
	ctx domain.ProjectContext, p domain.RoleProfile, feasible bool, warning string) string {
	direction := "↑"
	if delta < 0 {
		direction = "↓"
	}
	after := ctx.TeamSize
	switch m.Action {
	case domain.TeamAdd:
		after++
	case domain.TeamRemove:
		after--
	}

	lines := []string{
		fmt.Sprintf("**%s %s** to project `%s`", verbs[m.Action], m.Role, m.ProjectID),
		"",
		"| Metric | Value |",
		"|---|---|",
		fmt.Sprintf("| Baseline Risk | %.0f%% |", baseline*100),
		fmt.Sprintf("| Projected Risk | %.0f%% (%s%.0f%%) |", projected*100, direction, math.Abs(delta)*100),
		fmt.Sprintf("| Monthly Cost Δ | %s |", dollars(cost)),
		fmt.Sprintf("| Velocity Impact | %+.1f%% |", velocity*100),
		fmt.Sprintf("| Team Size | %d → %d |", ctx.TeamSize, after),
		"",
	}
	if warning != "" {
		if feasible {
			lines = append(lines, "**Warning**: "+warning)
		} else {
			lines = append(lines, "**Not Feasible**: "+warning)
		}
	}
	if m.Action == domain.TeamAdd && ctx.TeamSize > 5 {
		lines = append(lines, "*Brooks's Law*: Diminishing returns expected above 5 members.")
	}
	if ctx.IsBlocked {
		lines = append(lines, fmt.Sprintf("Project has active blockers; %s has %.0f%% chance of resolving them.",
			m.Role, p.BlockedResolution*100))
	}
	return strings.Join(lines, "\n")
}

// dollars renders a signed amount with thousands separators, e.g. +$21,000.
func dollars(v float64) string {
	sign := "+"
	if v < 0 {
		sign = "-"
	}
	return printer.Sprintf("%s$%d", sign, int64(math.Round(math.Abs(v))))
}
