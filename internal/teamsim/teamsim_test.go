package teamsim_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"riskline/internal/domain"
	"riskline/internal/teamsim"
)

func newSim(seed int64) teamsim.Simulator {
	return teamsim.New(teamsim.DefaultRoles(), 500, 8, &seed)
}

func ctxWith(teamSize, days, active int, blocked bool) domain.ProjectContext {
	return domain.ProjectContext{
		TeamSize:       teamSize,
		DaysToDeadline: days,
		ActiveTickets:  active,
		IsBlocked:      blocked,
		Signals:        domain.DefaultSignals(),
	}
}

func mutation(action domain.TeamAction, role string) domain.TeamMutation {
	return domain.TeamMutation{Action: action, Role: role, ProjectID: "apollo"}
}

func TestAddSlowRampUpIsInfeasible(t *testing.T) {
	res, err := newSim(1).Simulate(mutation(domain.TeamAdd, "Junior Engineer"), ctxWith(3, 7, 4, false), nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Feasible || res.Warning == "" {
		t.Fatalf("expected infeasible with warning: %+v", res)
	}
	if !strings.Contains(res.Warning, "Ramp-up time (14d) exceeds deadline (7d)") {
		t.Fatalf("unexpected warning %q", res.Warning)
	}
	if !strings.Contains(res.Reasoning, "**Not Feasible**") {
		t.Fatalf("reasoning should carry warning:\n%s", res.Reasoning)
	}
}

func TestAddToFullTeamIsInfeasible(t *testing.T) {
	res, err := newSim(1).Simulate(mutation(domain.TeamAdd, "Senior Engineer"), ctxWith(8, 30, 4, false), nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Feasible || !strings.Contains(res.Warning, "Brooks's Law") {
		t.Fatalf("expected Brooks's Law cap: %+v", res)
	}
	if !strings.Contains(res.Reasoning, "Diminishing returns") {
		t.Fatalf("expected Brooks note:\n%s", res.Reasoning)
	}
}

func TestRemoveSoleMemberIsInfeasible(t *testing.T) {
	res, err := newSim(1).Simulate(mutation(domain.TeamRemove, "Mid Engineer"), ctxWith(1, 30, 1, false), nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Feasible || res.Warning != "Cannot remove the only team member." {
		t.Fatalf("unexpected result %+v", res)
	}
	res, err = newSim(1).Simulate(mutation(domain.TeamRemove, "Mid Engineer"), ctxWith(2, 30, 5, false), nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Feasible || !strings.Contains(res.Warning, "insufficient capacity") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAddReducesRiskRemoveIncreases(t *testing.T) {
	baseline := 0.6
	ctx := ctxWith(4, 30, 6, false)
	add, err := newSim(2).Simulate(mutation(domain.TeamAdd, "Senior Engineer"), ctx, &baseline)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if add.RiskDelta >= 0 || add.ProjectedRisk >= baseline {
		t.Fatalf("add should reduce risk: %+v", add)
	}
	if add.CostDelta != 21000 || !add.Feasible {
		t.Fatalf("unexpected add cost/feasibility: %+v", add)
	}
	if !strings.Contains(add.Reasoning, "+$21,000") || !strings.Contains(add.Reasoning, "4 → 5") {
		t.Fatalf("unexpected reasoning:\n%s", add.Reasoning)
	}
	remove, err := newSim(2).Simulate(mutation(domain.TeamRemove, "Senior Engineer"), ctx, &baseline)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if remove.RiskDelta <= 0 || remove.CostDelta != -21000 {
		t.Fatalf("remove should increase risk and save cost: %+v", remove)
	}
	if !strings.Contains(remove.Reasoning, "| Monthly Cost Δ | -$21,000 |") {
		t.Fatalf("unexpected remove reasoning:\n%s", remove.Reasoning)
	}
	transfer, err := newSim(2).Simulate(mutation(domain.TeamTransfer, "Senior Engineer"), ctx, &baseline)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if transfer.CostDelta != 3500 || transfer.RiskDelta >= 0 {
		t.Fatalf("unexpected transfer result: %+v", transfer)
	}
	if add.Confidence < 0.4 || add.Confidence > 0.95 {
		t.Fatalf("confidence out of range: %v", add.Confidence)
	}
}

func TestAddToLargeTeamHasDiminishingReturns(t *testing.T) {
	baseline := 0.6
	small, err := newSim(5).Simulate(mutation(domain.TeamAdd, "Senior Engineer"), ctxWith(4, 30, 6, false), &baseline)
	if err != nil {
		t.Fatalf("simulate small team: %v", err)
	}
	large, err := newSim(5).Simulate(mutation(domain.TeamAdd, "Senior Engineer"), ctxWith(7, 30, 6, false), &baseline)
	if err != nil {
		t.Fatalf("simulate large team: %v", err)
	}
	if !large.Feasible {
		t.Fatalf("7 → 8 should still be feasible: %+v", large)
	}
	if large.RiskDelta >= 0 || large.RiskDelta <= small.RiskDelta {
		t.Fatalf("large team should gain less: small=%v large=%v", small.RiskDelta, large.RiskDelta)
	}
	// Team of 7 keeps 70% of the benefit for the same draws.
	if got, want := large.RiskDelta, small.RiskDelta*0.7; got-want > 0.002 || want-got > 0.002 {
		t.Fatalf("expected delta near %.3f, got %.3f", want, got)
	}
}

func TestBlockerReliefOnBlockedProject(t *testing.T) {
	seed := int64(9)
	sim := teamsim.New(teamsim.DefaultRoles(), 2000, 8, &seed)
	baseline := 0.5
	open, err := sim.Simulate(mutation(domain.TeamAdd, "Tech Lead"), ctxWith(4, 30, 6, false), &baseline)
	if err != nil {
		t.Fatalf("simulate unblocked: %v", err)
	}
	blocked, err := sim.Simulate(mutation(domain.TeamAdd, "Tech Lead"), ctxWith(4, 30, 6, true), &baseline)
	if err != nil {
		t.Fatalf("simulate blocked: %v", err)
	}
	if blocked.RiskDelta > open.RiskDelta-0.02 {
		t.Fatalf("blocked project should gain relief: open=%v blocked=%v", open.RiskDelta, blocked.RiskDelta)
	}
}

func TestBaselineEstimate(t *testing.T) {
	if got := teamsim.EstimateBaseline(ctxWith(3, 30, 2, false)); got != 0.3 {
		t.Fatalf("expected 0.3, got %v", got)
	}
	got := teamsim.EstimateBaseline(ctxWith(3, 5, 9, true))
	if got < 0.85-1e-9 || got > 0.85+1e-9 {
		t.Fatalf("expected 0.85, got %v", got)
	}
	res, err := newSim(3).Simulate(mutation(domain.TeamAdd, "Tech Lead"), ctxWith(3, 30, 2, false), nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.BaselineRisk != 0.3 {
		t.Fatalf("expected estimated baseline 0.3, got %v", res.BaselineRisk)
	}
}

func TestSmallSampleConfidenceFloor(t *testing.T) {
	seed := int64(4)
	sim := teamsim.New(nil, 5, 0, &seed)
	res, err := sim.Simulate(mutation(domain.TeamAdd, "Mid Engineer"), ctxWith(3, 30, 2, true), nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Confidence != 0.3 {
		t.Fatalf("expected 0.3 floor, got %v", res.Confidence)
	}
	if !strings.Contains(res.Reasoning, "active blockers") {
		t.Fatalf("expected blocker note:\n%s", res.Reasoning)
	}
}

func TestUnknownRoleAndAction(t *testing.T) {
	_, err := newSim(1).Simulate(mutation(domain.TeamAdd, "Wizard"), ctxWith(3, 30, 2, false), nil)
	if !errors.Is(err, domain.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if !strings.Contains(err.Error(), "Senior Engineer") {
		t.Fatalf("error should list roles: %v", err)
	}
	_, err = newSim(1).Simulate(mutation("promote", "Mid Engineer"), ctxWith(3, 30, 2, false), nil)
	if !errors.Is(err, domain.ErrUnknownMutation) {
		t.Fatalf("expected ErrUnknownMutation, got %v", err)
	}
}

func TestBatchRankedAndDeterministic(t *testing.T) {
	baseline := 0.5
	ms := []domain.TeamMutation{
		mutation(domain.TeamRemove, "Mid Engineer"),
		mutation(domain.TeamAdd, "Senior Engineer"),
		mutation(domain.TeamAdd, "QA Engineer"),
	}
	ctx := ctxWith(4, 30, 3, false)
	first, err := newSim(11).SimulateBatch(ms, ctx, &baseline)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 results, got %d", len(first))
	}
	for i := 1; i < len(first); i++ {
		if first[i].RiskDelta < first[i-1].RiskDelta {
			t.Fatalf("results not ranked by risk delta: %+v", first)
		}
	}
	if first[0].Mutation.Role != "Senior Engineer" || first[2].Mutation.Action != domain.TeamRemove {
		t.Fatalf("unexpected order: %+v", first)
	}
	second, err := newSim(11).SimulateBatch(ms, ctx, &baseline)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("seeded batches differ")
	}
	if _, err := newSim(11).SimulateBatch(append(ms, mutation(domain.TeamAdd, "Wizard")), ctx, &baseline); !errors.Is(err, domain.ErrUnknownRole) {
		t.Fatalf("batch should reject unknown role, got %v", err)
	}
}
