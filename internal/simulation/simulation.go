package simulation

import (
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"riskline/internal/constraint"
	"riskline/internal/domain"
)

// DefaultTrials is the reference Monte Carlo trial count.
const DefaultTrials = 1000

// DefaultDistributions returns the reference (mean, stddev) table.
func DefaultDistributions() map[domain.Intervention]domain.Distribution {
	return map[domain.Intervention]domain.Distribution{
		domain.AddEngineer:        {RiskReductionMean: 0.30, RiskReductionStd: 0.10, CostPenaltyMean: 0.20, CostPenaltyStd: 0.05},
		domain.EscalateDependency: {RiskReductionMean: 0.40, RiskReductionStd: 0.12, CostPenaltyMean: 0.10, CostPenaltyStd: 0.04},
		domain.ReduceScope:        {RiskReductionMean: 0.50, RiskReductionStd: 0.15, CostPenaltyMean: 0.15, CostPenaltyStd: 0.05},
		domain.AcceptDelay:        {RiskReductionMean: 0.00, RiskReductionStd: 0.02, CostPenaltyMean: 0.00, CostPenaltyStd: 0.01},
	}
}

// Simulator runs Monte Carlo trials for every candidate intervention.
type Simulator struct {
	Constraints   constraint.Evaluator
	Distributions map[domain.Intervention]domain.Distribution
	Trials        int
	// Seed fixes the random streams; nil draws a fresh seed per call.
	Seed *int64
}

func New(c constraint.Evaluator, dists map[domain.Intervention]domain.Distribution, trials int, seed *int64) Simulator {
	return Simulator{Constraints: c, Distributions: dists, Trials: trials, Seed: seed}
}

// Evaluation is the outcome of simulating all interventions once.
type Evaluation struct {
	Comparisons     []domain.DecisionComparison                          `json:"decision_comparison"`
	Recommendations []string                                             `json:"recommended_actions"`
	Ranked          []domain.Intervention                                `json:"ranked"`
	Statistics      map[domain.Intervention]domain.SimulationStatistics `json:"statistics"`
	Opinion         domain.AgentOpinion                                  `json:"opinion"`
}

func (s Simulator) trials() int {
	if s.Trials > 0 {
		return s.Trials
	}
	return DefaultTrials
}

func (s Simulator) distribution(action domain.Intervention) (domain.Distribution, error) {
	dists := s.Distributions
	if dists == nil {
		dists = DefaultDistributions()
	}
	d, ok := dists[action]
	if !ok {
		return domain.Distribution{}, fmt.Errorf("%w %q: no distribution configured", domain.ErrUnknownIntervention, action)
	}
	return d, nil
}

// Adjust applies the context adjustments in fixed order. Later rules see the
// result of earlier ones.
func Adjust(action domain.Intervention, d domain.Distribution, ctx domain.ProjectContext) domain.Distribution {
	sig := ctx.Signals
	if sig.DependencyDepth > 2 && action == domain.AddEngineer {
		d.RiskReductionMean *= 0.7
		d.CostPenaltyMean *= 1.2
	}
	if sig.ContentionScore > 3 && action == domain.ReduceScope {
		d.RiskReductionMean *= 1.2
	}
	if sig.SkillMatchScore < 0.8 && action == domain.AddEngineer {
		d.RiskReductionMean *= 1.3
	}
	if action == domain.EscalateDependency && ctx.IsBlocked {
		d.RiskReductionMean = 0.55
	}
	if action == domain.AddEngineer && ctx.DaysToDeadline < 7 {
		d.RiskReductionMean *= 0.4
		d.CostPenaltyMean *= 1.8
	}
	return d
}

func (s Simulator) sample(d domain.Distribution, n int, stream int, src Source) domain.SimulationStatistics {
	rng := src.Stream(stream)
	rr := make([]float64, n)
	cp := make([]float64, n)
	for i := range rr {
		rr[i] = clip01(d.RiskReductionMean + d.RiskReductionStd*rng.NormFloat64())
	}
	for i := range cp {
		cp[i] = clip01(d.CostPenaltyMean + d.CostPenaltyStd*rng.NormFloat64())
	}
	positive := 0
	for i := range rr {
		if rr[i]-cp[i] > 0.05 {
			positive++
		}
	}
	return domain.SimulationStatistics{
		MeanRiskReduction:   Mean(rr),
		P5:                  Percentile(rr, 5),
		P95:                 Percentile(rr, 95),
		MeanCostPenalty:     Mean(cp),
		ProbabilityPositive: float64(positive) / float64(n),
	}
}

// Run simulates a single intervention. With a fixed seed the statistics
// match the ones Evaluate reports for the same action.
func (s Simulator) Run(action domain.Intervention, ctx domain.ProjectContext) (domain.SimulationStatistics, error) {
	action, err := domain.ParseIntervention(string(action))
	if err != nil {
		return domain.SimulationStatistics{}, err
	}
	d, err := s.distribution(action)
	if err != nil {
		return domain.SimulationStatistics{}, err
	}
	src, err := SourceFor(s.Seed)
	if err != nil {
		return domain.SimulationStatistics{}, err
	}
	return s.sample(Adjust(action, d, ctx), s.trials(), action.Index(), src), nil
}

// Evaluate simulates every intervention, ranks them and summarizes the result.
func (s Simulator) Evaluate(ctx domain.ProjectContext) (Evaluation, error) {
	src, err := SourceFor(s.Seed)
	if err != nil {
		return Evaluation{}, err
	}
	n := s.trials()
	stats := make([]domain.SimulationStatistics, len(domain.Interventions))
	var g errgroup.Group
	for i, action := range domain.Interventions {
		d, err := s.distribution(action)
		if err != nil {
			return Evaluation{}, err
		}
		g.Go(func() error {
			stats[i] = s.sample(Adjust(action, d, ctx), n, i, src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Evaluation{}, err
	}

	type ranked struct {
		action domain.Intervention
		net    float64
		text   string
	}
	var (
		comparisons []domain.DecisionComparison
		recs        []ranked
		evidence    []string
	)
	ev := Evaluation{Statistics: make(map[domain.Intervention]domain.SimulationStatistics, len(stats))}
	for i, action := range domain.Interventions {
		st := stats[i]
		ev.Statistics[action] = st
		c := s.Constraints.Evaluate(action, ctx)
		total := st.MeanCostPenalty + c.Penalty
		net := st.MeanRiskReduction - total
		recommended := c.Feasible && net > 0.05 && st.ProbabilityPositive > 0.5

		var reason string
		switch {
		case !c.Feasible:
			reason = c.Reason
		case recommended:
			reason = fmt.Sprintf("Monte Carlo (%d runs): %s avg reduction [%s-%s], %s prob of success.",
				n, pct(st.MeanRiskReduction), pct(st.P5), pct(st.P95), pct(st.ProbabilityPositive))
		default:
			reason = fmt.Sprintf("Low expected benefit (%.2f), only %s chance of success", net, pct(st.ProbabilityPositive))
		}
		comparisons = append(comparisons, domain.DecisionComparison{
			Intervention:  action,
			Action:        action.Title(),
			RiskReduction: Round(st.MeanRiskReduction, 3),
			Cost:          domain.TierFor(total),
			Feasible:      c.Feasible,
			Recommended:   recommended,
			Reason:        reason,
		})
		if !recommended {
			continue
		}
		evidence = append(evidence, fmt.Sprintf("%s: %s ↓risk (P95: %s)", action.Title(), pct(st.MeanRiskReduction), pct(st.P95)))
		text := fmt.Sprintf("%s (risk ↓%s, %s conf)", action.Title(), pct(st.MeanRiskReduction), pct(st.ProbabilityPositive))
		if c.Penalty > 0 && c.Reason != "" {
			text += " - Note: " + c.Reason
		}
		recs = append(recs, ranked{action: action, net: net, text: text})
	}

	sort.SliceStable(comparisons, func(i, j int) bool {
		a, b := comparisons[i], comparisons[j]
		if a.Recommended != b.Recommended {
			return a.Recommended
		}
		return a.RiskReduction > b.RiskReduction
	})
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].net > recs[j].net })

	ev.Comparisons = comparisons
	ev.Recommendations = []string{}
	for _, r := range recs {
		ev.Recommendations = append(ev.Recommendations, r.text)
		ev.Ranked = append(ev.Ranked, r.action)
	}
	ev.Opinion = opinion(comparisons, evidence)
	return ev, nil
}

func opinion(comparisons []domain.DecisionComparison, evidence []string) domain.AgentOpinion {
	op := domain.AgentOpinion{Agent: "SimulationAgent", Evidence: evidence}
	count := 0
	var best domain.DecisionComparison
	for _, c := range comparisons {
		if c.Recommended {
			if count == 0 {
				best = c
			}
			count++
		}
	}
	switch count {
	case 0:
		op.Claim = "No viable interventions found by simulation."
		op.Confidence = 0.8
	case 1:
		op.Claim = fmt.Sprintf("Simulation recommends: %s.", best.Action)
		op.Confidence = 0.85
	default:
		op.Claim = fmt.Sprintf("Simulation confirms %s as optimal strategy.", comparisons[0].Action)
		op.Confidence = 0.88
	}
	if len(op.Evidence) == 0 {
		op.Evidence = []string{"Constraints block all options"}
	}
	return op
}

func pct(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}
