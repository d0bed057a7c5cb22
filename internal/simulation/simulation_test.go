package simulation_test

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"riskline/internal/constraint"
	"riskline/internal/domain"
	"riskline/internal/simulation"
)

func seeded(seed int64, trials int) simulation.Simulator {
	return simulation.New(constraint.New(10, 7), simulation.DefaultDistributions(), trials, &seed)
}

func baseContext() domain.ProjectContext {
	return domain.ProjectContext{DaysToDeadline: 30, TeamCapacityPercent: 80, TeamSize: 4, Signals: domain.DefaultSignals()}
}

func TestRunReproducibleWithSeed(t *testing.T) {
	sim := seeded(42, 1000)
	first, err := sim.Run(domain.ReduceScope, baseContext())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	second, err := sim.Run(domain.ReduceScope, baseContext())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if first != second {
		t.Fatalf("seeded runs differ: %+v vs %+v", first, second)
	}
}

func TestEvaluateReproducibleWithSeed(t *testing.T) {
	first, err := seeded(7, 500).Evaluate(baseContext())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	second, err := seeded(7, 500).Evaluate(baseContext())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("seeded evaluations differ")
	}
	single, err := seeded(7, 500).Run(domain.EscalateDependency, baseContext())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if single != first.Statistics[domain.EscalateDependency] {
		t.Fatalf("run and evaluate disagree: %+v vs %+v", single, first.Statistics[domain.EscalateDependency])
	}
}

func TestDependencyDepthReducesAddEngineer(t *testing.T) {
	shallow := baseContext()
	deep := baseContext()
	deep.Signals.DependencyDepth = 5
	sim := seeded(99, 1000)
	a, err := sim.Run(domain.AddEngineer, shallow)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	b, err := sim.Run(domain.AddEngineer, deep)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !(b.MeanRiskReduction < a.MeanRiskReduction) {
		t.Fatalf("deep dependency chain should reduce effect: %v >= %v", b.MeanRiskReduction, a.MeanRiskReduction)
	}
}

func TestAdjustOrder(t *testing.T) {
	base := simulation.DefaultDistributions()
	ctx := baseContext()
	ctx.DaysToDeadline = 3
	ctx.Signals = domain.Signals{DependencyDepth: 4, SkillMatchScore: 0.5, ContentionScore: 5}
	d := simulation.Adjust(domain.AddEngineer, base[domain.AddEngineer], ctx)
	if want := 0.30 * 0.7 * 1.3 * 0.4; math.Abs(d.RiskReductionMean-want) > 1e-12 {
		t.Fatalf("rr mean %v, want %v", d.RiskReductionMean, want)
	}
	if want := 0.20 * 1.2 * 1.8; math.Abs(d.CostPenaltyMean-want) > 1e-12 {
		t.Fatalf("cp mean %v, want %v", d.CostPenaltyMean, want)
	}
	if d.RiskReductionStd != 0.10 {
		t.Fatalf("stddev must not change")
	}
	ctx.IsBlocked = true
	e := simulation.Adjust(domain.EscalateDependency, base[domain.EscalateDependency], ctx)
	if e.RiskReductionMean != 0.55 {
		t.Fatalf("escalation override expected 0.55, got %v", e.RiskReductionMean)
	}
	r := simulation.Adjust(domain.ReduceScope, base[domain.ReduceScope], ctx)
	if math.Abs(r.RiskReductionMean-0.6) > 1e-12 {
		t.Fatalf("contention boost expected 0.6, got %v", r.RiskReductionMean)
	}
}

func TestStatisticsBounds(t *testing.T) {
	st, err := seeded(1, 1000).Run(domain.AcceptDelay, baseContext())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, v := range []float64{st.MeanRiskReduction, st.P5, st.P95, st.MeanCostPenalty, st.ProbabilityPositive} {
		if v < 0 || v > 1 {
			t.Fatalf("statistic out of range: %+v", st)
		}
	}
	if st.P5 > st.P95 {
		t.Fatalf("p5 > p95: %+v", st)
	}
}

func TestEvaluateDefaultContext(t *testing.T) {
	ev, err := seeded(42, 1000).Evaluate(baseContext())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(ev.Comparisons) != 4 {
		t.Fatalf("expected 4 comparisons, got %d", len(ev.Comparisons))
	}
	if ev.Comparisons[0].Intervention != domain.ReduceScope || ev.Comparisons[1].Intervention != domain.EscalateDependency {
		t.Fatalf("unexpected ranking: %+v", ev.Comparisons)
	}
	for i, c := range ev.Comparisons {
		if c.Recommended && !c.Feasible {
			t.Fatalf("recommended implies feasible: %+v", c)
		}
		if i > 0 && c.Recommended && !ev.Comparisons[i-1].Recommended {
			t.Fatalf("recommended comparisons must sort first")
		}
	}
	if len(ev.Ranked) != 2 || ev.Ranked[0] != domain.ReduceScope {
		t.Fatalf("unexpected net-benefit ranking: %v", ev.Ranked)
	}
	if len(ev.Recommendations) != 2 {
		t.Fatalf("expected 2 recommendations, got %v", ev.Recommendations)
	}
	if ev.Opinion.Claim != "Simulation confirms Reduce Scope as optimal strategy." || ev.Opinion.Confidence != 0.88 {
		t.Fatalf("unexpected opinion %+v", ev.Opinion)
	}
}

func TestEvaluateTightDeadline(t *testing.T) {
	ctx := baseContext()
	ctx.DaysToDeadline = 5
	ev, err := seeded(3, 400).Evaluate(ctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for _, c := range ev.Comparisons {
		if c.Intervention != domain.AddEngineer {
			continue
		}
		if c.Feasible || c.Recommended {
			t.Fatalf("add engineer should be infeasible: %+v", c)
		}
		if c.Reason != "Ramp-up time (avg 10 days) exceeds deadline window." {
			t.Fatalf("unexpected reason %q", c.Reason)
		}
		if c.Cost != domain.CostHigh {
			t.Fatalf("expected High cost, got %s", c.Cost)
		}
	}
}

func TestEvaluateNothingRecommended(t *testing.T) {
	flat := map[domain.Intervention]domain.Distribution{}
	for _, a := range domain.Interventions {
		flat[a] = domain.Distribution{RiskReductionStd: 0.01, CostPenaltyStd: 0.01}
	}
	seed := int64(5)
	sim := simulation.New(constraint.Evaluator{}, flat, 200, &seed)
	ev, err := sim.Evaluate(baseContext())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if ev.Opinion.Claim != "No viable interventions found by simulation." || ev.Opinion.Confidence != 0.8 {
		t.Fatalf("unexpected opinion %+v", ev.Opinion)
	}
	if len(ev.Opinion.Evidence) != 1 || ev.Opinion.Evidence[0] != "Constraints block all options" {
		t.Fatalf("unexpected evidence %v", ev.Opinion.Evidence)
	}
	if len(ev.Recommendations) != 0 {
		t.Fatalf("expected no recommendations")
	}
}

func TestUnknownIntervention(t *testing.T) {
	_, err := seeded(1, 10).Run(domain.Intervention("HIRE_CONSULTANT"), baseContext())
	if !errors.Is(err, domain.ErrUnknownIntervention) {
		t.Fatalf("expected ErrUnknownIntervention, got %v", err)
	}
	missing := simulation.New(constraint.Evaluator{}, map[domain.Intervention]domain.Distribution{}, 10, nil)
	if _, err := missing.Evaluate(baseContext()); !errors.Is(err, domain.ErrUnknownIntervention) {
		t.Fatalf("expected missing distribution error, got %v", err)
	}
}

func TestPercentileInterpolates(t *testing.T) {
	xs := []float64{4, 1, 3, 2, 5}
	if got := simulation.Percentile(xs, 50); got != 3 {
		t.Fatalf("median %v", got)
	}
	if got := simulation.Percentile(xs, 5); math.Abs(got-1.2) > 1e-12 {
		t.Fatalf("p5 %v", got)
	}
	if got := simulation.Percentile(xs, 95); math.Abs(got-4.8) > 1e-12 {
		t.Fatalf("p95 %v", got)
	}
	if xs[0] != 4 {
		t.Fatalf("percentile must not sort its input")
	}
}
