package risk

import (
	"fmt"
	"math"
	"time"

	"riskline/internal/domain"
)

const dueDateLayout = "2006-01-02"

// Scorer turns ticket evidence into a normalized delivery risk score.
type Scorer struct {
	Weights domain.RiskWeights
	Now     func() time.Time
}

func New(weights domain.RiskWeights) Scorer {
	return Scorer{Weights: weights, Now: time.Now}
}

func (s Scorer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Scorer) weights() domain.RiskWeights {
	if s.Weights == (domain.RiskWeights{}) {
		return domain.DefaultRiskWeights()
	}
	return s.Weights
}

// daysUntil floors the distance to a due date in whole days, so a date
// earlier today is already -1. Both sides are compared as wall clocks in
// UTC so a DST shift in now's zone never adds or drops an hour.
func daysUntil(due, now time.Time) int {
	y, m, d := due.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	wall := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), time.UTC)
	return int(math.Floor(day.Sub(wall).Hours() / 24))
}

func parseDue(raw string, loc *time.Location) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation(dueDateLayout, raw, loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Score scans active tickets in order. Done tickets and malformed due dates
// contribute nothing; the rest of a ticket with a bad date still counts.
func (s Scorer) Score(tickets []domain.Ticket) domain.RiskAssessment {
	w := s.weights()
	now := s.now()
	var a domain.RiskAssessment
	raw := 0.0

	for _, tk := range tickets {
		if !tk.Active() {
			continue
		}
		a.ActiveCount++
		if tk.Blocked() {
			a.Blocked = append(a.Blocked, tk)
			a.Evidence = append(a.Evidence, fmt.Sprintf("%s %q is blocked by %s %q (status: %s)",
				tk.ID, tk.Title, tk.Blocker.ID, tk.Blocker.Title, tk.Blocker.Status))
			raw += w.BlockedDependency
			if tk.Priority == domain.PriorityHigh {
				a.Evidence = append(a.Evidence, fmt.Sprintf("Blocked ticket %s is HIGH priority", tk.ID))
				raw += w.HighPriorityBonus
			}
		}
		due, ok := parseDue(tk.DueDate, now.Location())
		if !ok {
			continue
		}
		switch left := daysUntil(due, now); {
		case left < 0:
			a.Overdue = append(a.Overdue, tk)
			a.Evidence = append(a.Evidence, fmt.Sprintf("%s %q is %d days OVERDUE (due: %s)", tk.ID, tk.Title, -left, tk.DueDate))
			raw += w.OverdueTicket
		case left <= w.DeadlineWindowDays:
			a.NearDeadline = append(a.NearDeadline, tk)
			a.Evidence = append(a.Evidence, fmt.Sprintf("%s %q due in %d days (status: %s)", tk.ID, tk.Title, left, tk.Status))
			raw += w.DeadlineProximity
		}
	}

	score := raw
	if a.ActiveCount > 0 && raw > 0 {
		ratio := float64(a.Flagged()) / float64(max(a.ActiveCount, 1))
		score = raw*0.6 + math.Min(raw, 1)*ratio*0.4
	}
	a.RawScore = raw
	a.Score = math.Max(0, math.Min(score, 1))
	a.Level = domain.LevelFor(a.Score)
	if len(a.Evidence) == 0 {
		a.Evidence = []string{fmt.Sprintf("All %d active tickets are on track", a.ActiveCount)}
	}
	return a
}

// Opinion wraps an assessment as the RiskAgent opinion.
func Opinion(a domain.RiskAssessment, projectName, teamName string) domain.AgentOpinion {
	op := domain.AgentOpinion{
		Agent:      "RiskAgent",
		Claim:      "No significant delivery risks detected",
		Confidence: math.Min(0.95, 0.4+a.Score*0.5),
		Evidence:   a.Evidence,
	}
	if a.Score > 0.1 {
		op.Claim = fmt.Sprintf("%s delivery risk: %d blocked, %d overdue, %d near deadline",
			a.Level, len(a.Blocked), len(a.Overdue), len(a.NearDeadline))
	}
	if a.Flagged() == 0 {
		if teamName == "" {
			teamName = "Unknown"
		}
		op.Evidence = append(append([]string{}, a.Evidence...), fmt.Sprintf("Project: %s, Team: %s", projectName, teamName))
	}
	return op
}

// BuildContext derives the shared evaluation context from tickets and signals.
func BuildContext(tickets []domain.Ticket, signals domain.Signals, now time.Time) domain.ProjectContext {
	ctx := domain.ProjectContext{DaysToDeadline: 30, Signals: signals}

	var earliest time.Time
	load := map[string]int{}
	assignees := map[string]struct{}{}
	for _, tk := range tickets {
		if tk.AssigneeID != "" {
			assignees[tk.AssigneeID] = struct{}{}
		}
		if !tk.Active() {
			continue
		}
		ctx.ActiveTickets++
		if tk.Blocked() && !ctx.IsBlocked {
			ctx.IsBlocked = true
			ctx.Blocker = tk.Blocker.ID
		}
		if tk.AssigneeID != "" {
			load[tk.AssigneeID]++
		}
		if due, ok := parseDue(tk.DueDate, now.Location()); ok && (earliest.IsZero() || due.Before(earliest)) {
			earliest = due
		}
	}
	if !earliest.IsZero() {
		ctx.DaysToDeadline = daysUntil(earliest, now)
	}
	ctx.DaysToDeadline = max(ctx.DaysToDeadline, 1)

	maxLoad := 0
	for _, n := range load {
		maxLoad = max(maxLoad, n)
	}
	ctx.TeamCapacityPercent = min(int(float64(maxLoad)/float64(max(ctx.ActiveTickets, 1))*200), 150)
	ctx.TeamSize = max(len(assignees), 1)
	return ctx
}
