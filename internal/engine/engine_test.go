package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"riskline/internal/config"
	"riskline/internal/domain"
	"riskline/internal/engine"
	"riskline/internal/explain"
	"riskline/internal/repo"
)

var fixedNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu        sync.Mutex
	projects  map[string]domain.ProjectData
	signalErr error
	loads     int
	snapshots []domain.Snapshot
	snapErr   error
	imported  int
}

func (f *fakeSource) ProjectData(_ context.Context, id string) (domain.ProjectData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	data, ok := f.projects[id]
	if !ok {
		return domain.ProjectData{}, repo.ErrNotFound
	}
	return data, nil
}

func (f *fakeSource) Signals(context.Context, string) (domain.Signals, error) {
	if f.signalErr != nil {
		return domain.Signals{}, f.signalErr
	}
	return domain.DefaultSignals(), nil
}

func (f *fakeSource) RecordSnapshot(_ context.Context, s domain.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapErr != nil {
		return f.snapErr
	}
	f.snapshots = append(f.snapshots, s)
	return nil
}

func (f *fakeSource) Snapshots(_ context.Context, id string, _ int) ([]domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []domain.Snapshot
	for _, s := range f.snapshots {
		if s.ProjectID == id {
			res = append(res, s)
		}
	}
	return res, nil
}

func (f *fakeSource) Import(_ context.Context, ds repo.Dataset) (repo.ImportResult, error) {
	f.imported++
	return repo.ImportResult{Projects: len(ds.Projects)}, nil
}

func riskyProject() domain.ProjectData {
	return domain.ProjectData{
		Project:  domain.Project{ID: "P1", Name: "Apollo", TeamName: "Alpha"},
		TeamName: "Alpha",
		Tickets: []domain.Ticket{
			{ID: "T1", Title: "Schema", Status: domain.StatusToDo, AssigneeID: "M2"},
			{
				ID: "T2", Title: "API", Status: domain.StatusInProgress, Priority: domain.PriorityHigh,
				DueDate: "2024-01-12", AssigneeID: "M1",
				Blocker: &domain.BlockerRef{ID: "T1", Title: "Schema", Status: domain.StatusToDo},
			},
		},
	}
}

func calmProject() domain.ProjectData {
	return domain.ProjectData{
		Project:  domain.Project{ID: "P2", Name: "Beacon"},
		TeamName: "Beta",
		Tickets:  []domain.Ticket{{ID: "T9", Title: "Done thing", Status: domain.StatusDone}},
	}
}

func newTestEngine(t *testing.T) (engine.Engine, *fakeSource) {
	t.Helper()
	src := &fakeSource{projects: map[string]domain.ProjectData{"P1": riskyProject(), "P2": calmProject()}}
	cfg := config.Default()
	seed := int64(7)
	cfg.Simulation.Seed = &seed
	cfg.Simulation.Trials = 200
	eng := engine.New(cfg, src)
	eng.Now = func() time.Time { return fixedNow }
	eng.Cache.Now = eng.Now
	return eng, src
}

func TestAnalyzeFallbackExplanation(t *testing.T) {
	eng, src := newTestEngine(t)
	a, err := eng.Analyze(context.Background(), "P1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if a.ID == "" || a.ProjectName != "Apollo" || a.Cached {
		t.Fatalf("unexpected analysis header %+v", a)
	}
	if a.RiskScore <= 0 || a.RiskLevel != domain.LevelFor(a.RiskScore) {
		t.Fatalf("inconsistent score %v level %s", a.RiskScore, a.RiskLevel)
	}
	if a.ExplanationSource != engine.ExplanationFallback || !strings.Contains(a.PrimaryReason, "[T2]") {
		t.Fatalf("expected fallback explanation, got %s %q", a.ExplanationSource, a.PrimaryReason)
	}
	if len(a.AgentOpinions) != 3 || a.AgentOpinions[0].Agent != "RiskAgent" || a.AgentOpinions[2].Agent != "SimulationAgent" {
		t.Fatalf("unexpected opinions %+v", a.AgentOpinions)
	}
	if len(a.DecisionComparison) != len(domain.Interventions) {
		t.Fatalf("expected a comparison per intervention, got %d", len(a.DecisionComparison))
	}
	if !a.Context.IsBlocked || a.Context.Blocker != "T1" || a.Context.DaysToDeadline != 1 {
		t.Fatalf("unexpected context %+v", a.Context)
	}
	if len(src.snapshots) != 1 || src.snapshots[0].BlockedCount != 1 || src.snapshots[0].TotalTickets != 2 {
		t.Fatalf("unexpected snapshots %+v", src.snapshots)
	}
	if len(a.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", a.Warnings)
	}
}

func TestAnalyzeUsesExplainer(t *testing.T) {
	eng, _ := newTestEngine(t)
	var prompt string
	eng.Explainer = explain.Func(func(_ context.Context, p string) explain.Result {
		prompt = p
		return explain.OK("Blocked API drives risk.")
	})
	a, err := eng.Analyze(context.Background(), "P1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if a.ExplanationSource != engine.ExplanationLLM || a.PrimaryReason != "Blocked API drives risk." {
		t.Fatalf("unexpected explanation %s %q", a.ExplanationSource, a.PrimaryReason)
	}
	if !strings.Contains(prompt, "Project: Apollo (Team: Alpha)") {
		t.Fatalf("unexpected prompt %q", prompt)
	}
}

func TestAnalyzeOnTrackSkipsExplainer(t *testing.T) {
	eng, _ := newTestEngine(t)
	called := false
	eng.Explainer = explain.Func(func(context.Context, string) explain.Result {
		called = true
		return explain.OK("x")
	})
	a, err := eng.Analyze(context.Background(), "P2")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if called || a.ExplanationSource != engine.ExplanationNone {
		t.Fatalf("explainer should not run for an on-track project")
	}
	if a.PrimaryReason != "No significant risks detected; all tickets are on track." {
		t.Fatalf("unexpected reason %q", a.PrimaryReason)
	}
	if a.RiskLevel != domain.RiskLow {
		t.Fatalf("expected low risk, got %s", a.RiskLevel)
	}
}

func TestAnalyzeCache(t *testing.T) {
	eng, src := newTestEngine(t)
	now := fixedNow
	eng.Cache.Now = func() time.Time { return now }
	first, err := eng.Analyze(context.Background(), "P1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	second, err := eng.Analyze(context.Background(), "P1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !second.Cached || second.ID != first.ID || src.loads != 1 {
		t.Fatalf("expected cached analysis, loads=%d", src.loads)
	}

	now = now.Add(engine.DefaultCacheTTL)
	third, err := eng.Analyze(context.Background(), "P1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if third.Cached || third.ID == first.ID {
		t.Fatalf("expected fresh analysis after ttl")
	}

	if _, err := eng.Import(context.Background(), repo.Dataset{}); err != nil {
		t.Fatalf("import: %v", err)
	}
	fourth, err := eng.Analyze(context.Background(), "P1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if fourth.Cached || src.imported != 1 {
		t.Fatalf("import should invalidate the cache")
	}
}

func TestAnalyzeNotFound(t *testing.T) {
	eng, _ := newTestEngine(t)
	if _, err := eng.Analyze(context.Background(), "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCollaboratorFailuresBecomeWarnings(t *testing.T) {
	eng, src := newTestEngine(t)
	src.signalErr = errors.New("graph down")
	src.snapErr = errors.New("disk full")
	a, err := eng.Analyze(context.Background(), "P1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(a.Warnings) != 2 || !strings.Contains(a.Warnings[0], "graph down") || !strings.Contains(a.Warnings[1], "disk full") {
		t.Fatalf("unexpected warnings %v", a.Warnings)
	}
	if a.Context.Signals != domain.DefaultSignals() {
		t.Fatalf("expected default signals, got %+v", a.Context.Signals)
	}
}

func TestDebate(t *testing.T) {
	eng, _ := newTestEngine(t)
	res, err := eng.Debate(context.Background(), "P1")
	if err != nil {
		t.Fatalf("debate: %v", err)
	}
	if len(res.Turns) != 3 || res.Turns[0].AgentName != "RiskAgent" {
		t.Fatalf("unexpected turns %+v", res.Turns)
	}
	if res.Turns[1].AgentName != "FinanceAgent" || res.Turns[2].AgentName != "ConstraintAgent" {
		t.Fatalf("unexpected reviewers %+v", res.Turns)
	}
	if res.Consensus == "" {
		t.Fatalf("expected consensus")
	}
	calm, err := eng.Debate(context.Background(), "P2")
	if err != nil {
		t.Fatalf("debate: %v", err)
	}
	if calm.Consensus != "Status Quo Maintained (No Action Needed)" {
		t.Fatalf("unexpected consensus %q", calm.Consensus)
	}
}

func TestSimulateMutation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := eng.SimulateMutation(ctx, domain.TeamMutation{Action: domain.TeamAdd, Role: "Wizard", ProjectID: "P1"}, nil)
	if !errors.Is(err, domain.ErrUnknownRole) {
		t.Fatalf("expected unknown role, got %v", err)
	}
	if _, err := eng.SimulateMutation(ctx, domain.TeamMutation{Action: domain.TeamAdd, Role: "Senior Engineer"}, nil); !errors.Is(err, domain.ErrUnknownMutation) {
		t.Fatalf("expected missing project error, got %v", err)
	}
	res, err := eng.SimulateMutation(ctx, domain.TeamMutation{Action: domain.TeamAdd, Role: "Senior Engineer", ProjectID: "P1"}, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Mutation.Action != domain.TeamAdd || res.Reasoning == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	again, err := eng.SimulateMutation(ctx, domain.TeamMutation{Action: domain.TeamAdd, Role: "Senior Engineer", ProjectID: "P1"}, nil)
	if err != nil || again != res {
		t.Fatalf("seeded simulation should repeat: %+v vs %+v (%v)", again, res, err)
	}
}

func TestSimulateMutationExplicitBaseline(t *testing.T) {
	eng, _ := newTestEngine(t)
	m := domain.TeamMutation{Action: domain.TeamAdd, Role: "Tech Lead", ProjectID: "P1"}
	given := 0.9
	res, err := eng.SimulateMutation(context.Background(), m, &given)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.BaselineRisk != 0.9 {
		t.Fatalf("expected given baseline, got %v", res.BaselineRisk)
	}
	over := 1.5
	res, err = eng.SimulateMutation(context.Background(), m, &over)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.BaselineRisk != 1 {
		t.Fatalf("baseline should clip to 1, got %v", res.BaselineRisk)
	}
}

func TestSimulateBatch(t *testing.T) {
	eng, _ := newTestEngine(t)
	ms := []domain.TeamMutation{
		{Action: domain.TeamRemove, Role: "Mid Engineer"},
		{Action: domain.TeamAdd, Role: "Tech Lead"},
	}
	res, err := eng.SimulateBatch(context.Background(), "P1", ms, nil)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(res) != 2 || res[0].RiskDelta > res[1].RiskDelta {
		t.Fatalf("results should be ranked by risk delta: %+v", res)
	}
	for _, r := range res {
		if r.Mutation.ProjectID != "P1" {
			t.Fatalf("mutation should inherit project: %+v", r.Mutation)
		}
	}
	_, err = eng.SimulateBatch(context.Background(), "P1", []domain.TeamMutation{{Action: domain.TeamAdd, Role: "Tech Lead", ProjectID: "P2"}}, nil)
	if !errors.Is(err, domain.ErrUnknownMutation) {
		t.Fatalf("expected mismatched project error, got %v", err)
	}
}

func TestSnapshots(t *testing.T) {
	eng, _ := newTestEngine(t)
	if _, err := eng.Analyze(context.Background(), "P1"); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	snaps, err := eng.Snapshots(context.Background(), "P1", 10)
	if err != nil || len(snaps) != 1 {
		t.Fatalf("unexpected snapshots %v (%v)", snaps, err)
	}
	if len(eng.Roles()) != 6 {
		t.Fatalf("expected default roles, got %v", eng.Roles())
	}
}
