package teamsim

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"riskline/internal/domain"
	"riskline/internal/simulation"
)

const defaultMaxTeamSize = 8

// DefaultRoles returns the reference role profile table.
func DefaultRoles() map[string]domain.RoleProfile {
	return map[string]domain.RoleProfile{
		"Senior Engineer": {VelocityBoost: 0.20, RampUpDays: 3, CostPerDay: 700, BlockedResolution: 0.15},
		"Mid Engineer":    {VelocityBoost: 0.12, RampUpDays: 7, CostPerDay: 450, BlockedResolution: 0.05},
		"Junior Engineer": {VelocityBoost: 0.05, RampUpDays: 14, CostPerDay: 250, BlockedResolution: 0.02},
		"Tech Lead":       {VelocityBoost: 0.10, RampUpDays: 5, CostPerDay: 800, BlockedResolution: 0.25},
		"QA Engineer":     {VelocityBoost: 0.08, RampUpDays: 5, CostPerDay: 400, BlockedResolution: 0.03},
		"DevOps Engineer": {VelocityBoost: 0.06, RampUpDays: 5, CostPerDay: 550, BlockedResolution: 0.20},
	}
}

// Simulator predicts the risk impact of staffing changes.
type Simulator struct {
	Roles       map[string]domain.RoleProfile
	Trials      int
	MaxTeamSize int
	Seed        *int64
}

func New(roles map[string]domain.RoleProfile, trials, maxTeamSize int, seed *int64) Simulator {
	return Simulator{Roles: roles, Trials: trials, MaxTeamSize: maxTeamSize, Seed: seed}
}

func (s Simulator) roles() map[string]domain.RoleProfile {
	if len(s.Roles) == 0 {
		return DefaultRoles()
	}
	return s.Roles
}

func (s Simulator) trials() int {
	if s.Trials > 0 {
		return s.Trials
	}
	return simulation.DefaultTrials
}

func (s Simulator) maxTeamSize() int {
	if s.MaxTeamSize > 0 {
		return s.MaxTeamSize
	}
	return defaultMaxTeamSize
}

// Profile resolves a role name, rejecting unknown roles.
func (s Simulator) Profile(role string) (domain.RoleProfile, error) {
	roles := s.roles()
	if p, ok := roles[role]; ok {
		return p, nil
	}
	return domain.RoleProfile{}, fmt.Errorf("%w %q (valid: %s)", domain.ErrUnknownRole, role, strings.Join(domain.RoleNames(roles), ", "))
}

// EstimateBaseline is the quick risk estimate used when the caller has none.
func EstimateBaseline(ctx domain.ProjectContext) float64 {
	risk := 0.3
	if ctx.IsBlocked {
		risk += 0.25
	}
	if ctx.DaysToDeadline < 7 {
		risk += 0.20
	}
	if ctx.ActiveTickets > 5 {
		risk += 0.10
	}
	return math.Min(risk, 1.0)
}

// Simulate runs the Monte Carlo trials for one mutation.
func (s Simulator) Simulate(m domain.TeamMutation, ctx domain.ProjectContext, baseline *float64) (domain.TeamSimulationResult, error) {
	src, err := simulation.SourceFor(s.Seed)
	if err != nil {
		return domain.TeamSimulationResult{}, err
	}
	return s.simulate(m, ctx, baseline, src, 0)
}

// SimulateBatch runs every mutation and ranks results by risk delta,
// most beneficial first. Ties keep input order.
func (s Simulator) SimulateBatch(ms []domain.TeamMutation, ctx domain.ProjectContext, baseline *float64) ([]domain.TeamSimulationResult, error) {
	src, err := simulation.SourceFor(s.Seed)
	if err != nil {
		return nil, err
	}
	results := make([]domain.TeamSimulationResult, len(ms))
	var g errgroup.Group
	for i, m := range ms {
		g.Go(func() error {
			res, err := s.simulate(m, ctx, baseline, src, i)
			if err != nil {
				return fmt.Errorf("mutation %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].RiskDelta < results[j].RiskDelta })
	return results, nil
}

func (s Simulator) simulate(m domain.TeamMutation, ctx domain.ProjectContext, baseline *float64, src simulation.Source, stream int) (domain.TeamSimulationResult, error) {
	action, err := domain.ParseTeamAction(string(m.Action))
	if err != nil {
		return domain.TeamSimulationResult{}, err
	}
	m.Action = action
	profile, err := s.Profile(m.Role)
	if err != nil {
		return domain.TeamSimulationResult{}, err
	}

	base := EstimateBaseline(ctx)
	if baseline != nil {
		base = *baseline
	}
	feasible, warning := s.feasibility(m.Action, profile, ctx)

	n := s.trials()
	rng := src.Stream(stream)
	risks := make([]float64, n)
	velocities := make([]float64, n)
	days := float64(max(ctx.DaysToDeadline, 1))
	vb := profile.VelocityBoost
	for i := 0; i < n; i++ {
		switch m.Action {
		case domain.TeamAdd:
			boost := vb + 0.3*vb*rng.NormFloat64()
			ramp := float64(profile.RampUpDays) / days * 0.1
			relief := 0.0
			if ctx.IsBlocked && rng.Float64() < profile.BlockedResolution {
				relief = 0.10 + 0.15*rng.Float64()
			}
			net := math.Max(0, boost+relief-ramp)
			if ctx.TeamSize > 5 {
				net *= math.Max(0.3, 1.0-float64(ctx.TeamSize-5)*0.15)
			}
			risks[i] = clip01(base - net)
			velocities[i] = boost - ramp
		case domain.TeamRemove:
			loss := vb + 0.2*vb*rng.NormFloat64()
			focus := 0.0
			if ctx.TeamSize > 5 {
				focus = 0.05 * rng.Float64()
			}
			risks[i] = clip01(base + math.Max(0, loss-focus))
			velocities[i] = -loss + focus
		case domain.TeamTransfer:
			boost := 0.8*vb + 0.3*vb*rng.NormFloat64()
			ramp := float64(profile.RampUpDays) / days * 0.08
			risks[i] = clip01(base - math.Max(0, boost-ramp))
			velocities[i] = boost - ramp
		}
	}

	projected := simulation.Mean(risks)
	velocity := simulation.Mean(velocities)
	delta := projected - base
	cost := costDelta(m.Action, profile)

	return domain.TeamSimulationResult{
		Mutation:       m,
		BaselineRisk:   simulation.Round(base, 3),
		ProjectedRisk:  simulation.Round(projected, 3),
		RiskDelta:      simulation.Round(delta, 3),
		CostDelta:      simulation.Round(cost, 2),
		VelocityChange: simulation.Round(velocity, 3),
		Confidence:     simulation.Round(confidence(risks), 2),
		Reasoning:      reasoning(m, base, projected, delta, cost, velocity, ctx, profile, feasible, warning),
		Feasible:       feasible,
		Warning:        warning,
	}, nil
}

func (s Simulator) feasibility(action domain.TeamAction, p domain.RoleProfile, ctx domain.ProjectContext) (bool, string) {
	feasible, warning := true, ""
	switch action {
	case domain.TeamAdd:
		if p.RampUpDays >= ctx.DaysToDeadline {
			feasible = false
			warning = fmt.Sprintf("Ramp-up time (%dd) exceeds deadline (%dd). Member won't be effective in time.", p.RampUpDays, ctx.DaysToDeadline)
		}
		if ctx.TeamSize >= s.maxTeamSize() {
			feasible = false
			warning = fmt.Sprintf("Team already at maximum recommended size (%d). Brooks's Law applies.", s.maxTeamSize())
		}
	case domain.TeamRemove:
		if ctx.TeamSize <= 1 {
			return false, "Cannot remove the only team member."
		}
		if ctx.TeamSize <= 2 && ctx.ActiveTickets > 3 {
			return false, "Removing a member leaves insufficient capacity for active tickets."
		}
	}
	return feasible, warning
}

func costDelta(action domain.TeamAction, p domain.RoleProfile) float64 {
	switch action {
	case domain.TeamAdd:
		return p.CostPerDay * 30
	case domain.TeamRemove:
		return -p.CostPerDay * 30
	default:
		return p.CostPerDay * 5
	}
}

// confidence is tighter for narrower outcome spreads; tiny samples get 0.3.
func confidence(samples []float64) float64 {
	if len(samples) < 10 {
		return 0.3
	}
	return math.Min(0.95, math.Max(0.4, 1.0-simulation.StdDev(samples)*2))
}

func clip01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
