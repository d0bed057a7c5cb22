package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"riskline/internal/config"
	"riskline/internal/constraint"
	"riskline/internal/debate"
	"riskline/internal/domain"
	"riskline/internal/explain"
	"riskline/internal/logging"
	"riskline/internal/repo"
	"riskline/internal/risk"
	"riskline/internal/simulation"
	"riskline/internal/teamsim"
)

// Source reads the project data an analysis runs on.
type Source interface {
	ProjectData(ctx context.Context, projectID string) (domain.ProjectData, error)
	Signals(ctx context.Context, projectID string) (domain.Signals, error)
}

// History persists analysis snapshots.
type History interface {
	RecordSnapshot(ctx context.Context, s domain.Snapshot) error
	Snapshots(ctx context.Context, projectID string, limit int) ([]domain.Snapshot, error)
}

// Importer loads seed datasets into the source.
type Importer interface {
	Import(ctx context.Context, ds repo.Dataset) (repo.ImportResult, error)
}

const (
	ExplanationLLM      = "llm"
	ExplanationFallback = "fallback"
	ExplanationNone     = "none"
)

const onTrackReason = "No significant risks detected; all tickets are on track."

type Engine struct {
	Source           Source
	History          History
	Explainer        explain.Explainer
	Scorer           risk.Scorer
	Simulator        simulation.Simulator
	Team             teamsim.Simulator
	Reviewers        []debate.Reviewer
	ProposeThreshold float64
	Cache            *Cache
	Logger           *slog.Logger
	Now              func() time.Time
}

// New wires the evaluators from cfg. History is taken from src when it
// implements it. A zero cache TTL leaves the cache off.
func New(cfg *config.Config, src Source) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	constraints := constraint.New(cfg.Constraints.RampUpDays, cfg.Constraints.UrgentDays)
	e := Engine{
		Source:    src,
		Explainer: explain.Disabled{},
		Scorer:    risk.New(cfg.Risk.Weights),
		Simulator: simulation.New(constraints, cfg.Simulation.Distributions, cfg.Simulation.Trials, cfg.Simulation.Seed),
		Team:      teamsim.New(cfg.Team.Roles, cfg.Simulation.Trials, cfg.Team.MaxSize, cfg.Simulation.Seed),
		Reviewers: []debate.Reviewer{
			debate.FinanceReviewer{
				DevDayCost:  cfg.Finance.DevDayCost,
				HireDayCost: cfg.Finance.HireDayCost,
				HireDays:    cfg.Finance.HireDays,
				BudgetDays:  cfg.Finance.BudgetDays,
			},
			debate.ConstraintReviewer{Constraints: constraints},
		},
		ProposeThreshold: cfg.Risk.ProposeThreshold,
		Logger:           logging.Nop(),
		Now:              time.Now,
	}
	if ttl := cfg.CacheTTL(); ttl > 0 {
		e.Cache = NewCache(ttl)
	}
	if h, ok := src.(History); ok {
		e.History = h
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return logging.Nop()
}

// Analysis is the full risk report for one project.
type Analysis struct {
	ID                 string                      `json:"analysis_id"`
	ProjectID          string                      `json:"project_id"`
	ProjectName        string                      `json:"project_name"`
	TeamName           string                      `json:"team_name,omitempty"`
	RiskScore          float64                     `json:"risk_score"`
	RiskLevel          domain.RiskLevel            `json:"risk_level" enum:"LOW,MEDIUM,HIGH"`
	PrimaryReason      string                      `json:"primary_reason"`
	ExplanationSource  string                      `json:"explanation_source" enum:"llm,fallback,none"`
	SupportingSignals  []string                    `json:"supporting_signals"`
	RecommendedActions []string                    `json:"recommended_actions"`
	AgentOpinions      []domain.AgentOpinion       `json:"agent_opinions"`
	DecisionComparison []domain.DecisionComparison `json:"decision_comparison"`
	Context            domain.ProjectContext       `json:"context"`
	Warnings           []string                    `json:"warnings,omitempty"`
	Cached             bool                        `json:"cached"`
	GeneratedAt        string                      `json:"generated_at" format:"date-time"`

	Assessment domain.RiskAssessment `json:"-"`
	Ranked     []domain.Intervention `json:"-"`
}

type loaded struct {
	data     domain.ProjectData
	ctx      domain.ProjectContext
	warnings []string
}

func (e Engine) load(ctx context.Context, projectID string) (loaded, error) {
	if e.Source == nil {
		return loaded{}, errors.New("project source not configured")
	}
	data, err := e.Source.ProjectData(ctx, projectID)
	if err != nil {
		return loaded{}, fmt.Errorf("load project %s: %w", projectID, err)
	}
	var warnings []string
	signals, err := e.Source.Signals(ctx, projectID)
	if err != nil {
		e.logger().Warn("signals unavailable", "project_id", projectID, "error", err)
		warnings = append(warnings, "signals unavailable, using defaults: "+err.Error())
		signals = domain.DefaultSignals()
	}
	return loaded{
		data:     data,
		ctx:      risk.BuildContext(data.Tickets, signals, e.now()),
		warnings: warnings,
	}, nil
}

// Analyze scores the project, simulates every intervention and explains the
// result. A cached analysis younger than the cache TTL is returned as is.
func (e Engine) Analyze(ctx context.Context, projectID string) (Analysis, error) {
	if a, ok := e.Cache.Get(projectID); ok {
		a.Cached = true
		return a, nil
	}
	id := uuid.NewString()
	log := e.logger().With("project_id", projectID, "analysis_id", id)
	log.Info("analysis started")

	l, err := e.load(ctx, projectID)
	if err != nil {
		return Analysis{}, err
	}
	scorer := e.Scorer
	scorer.Now = e.now
	assessment := scorer.Score(l.data.Tickets)

	eval, err := e.Simulator.Evaluate(l.ctx)
	if err != nil {
		return Analysis{}, fmt.Errorf("simulate interventions: %w", err)
	}
	opinions := []domain.AgentOpinion{
		risk.Opinion(assessment, l.data.Project.Name, l.data.TeamName),
		e.Simulator.Constraints.EvaluateAll(l.ctx),
		eval.Opinion,
	}

	a := Analysis{
		ID:                 id,
		ProjectID:          projectID,
		ProjectName:        l.data.Project.Name,
		TeamName:           l.data.TeamName,
		RiskScore:          assessment.Score,
		RiskLevel:          assessment.Level,
		SupportingSignals:  assessment.Evidence,
		RecommendedActions: eval.Recommendations,
		AgentOpinions:      opinions,
		DecisionComparison: eval.Comparisons,
		Context:            l.ctx,
		Warnings:           l.warnings,
		GeneratedAt:        e.now().UTC().Format(time.RFC3339),
		Assessment:         assessment,
		Ranked:             eval.Ranked,
	}
	a.PrimaryReason, a.ExplanationSource = e.explain(ctx, log, explain.Input{
		ProjectName:     a.ProjectName,
		TeamName:        a.TeamName,
		Assessment:      assessment,
		DaysToDeadline:  l.ctx.DaysToDeadline,
		Opinions:        opinions,
		Comparisons:     eval.Comparisons,
		Recommendations: eval.Recommendations,
	})

	if e.History != nil {
		err := e.History.RecordSnapshot(ctx, domain.Snapshot{
			ID:           uuid.NewString(),
			ProjectID:    projectID,
			ProjectName:  a.ProjectName,
			RiskScore:    a.RiskScore,
			RiskLevel:    a.RiskLevel,
			BlockedCount: len(assessment.Blocked),
			OverdueCount: len(assessment.Overdue),
			TotalTickets: len(l.data.Tickets),
			CreatedAt:    a.GeneratedAt,
		})
		if err != nil {
			log.Warn("snapshot not recorded", "error", err)
			a.Warnings = append(a.Warnings, "snapshot not recorded: "+err.Error())
		}
	}

	e.Cache.Put(a)
	log.Info("analysis finished", "risk_score", a.RiskScore, "risk_level", a.RiskLevel, "explanation", a.ExplanationSource)
	return a, nil
}

func (e Engine) explain(ctx context.Context, log *slog.Logger, in explain.Input) (string, string) {
	if in.Assessment.Flagged() == 0 {
		return onTrackReason, ExplanationNone
	}
	explainer := e.Explainer
	if explainer == nil {
		explainer = explain.Disabled{}
	}
	res := explainer.Explain(ctx, explain.Prompt(in))
	if res.Available() {
		return res.Text, ExplanationLLM
	}
	log.Warn("explainer unavailable, using fallback", "reason", res.Reason)
	return explain.Fallback(in), ExplanationFallback
}

// DebateResult is the reviewed proposal for one analysis.
type DebateResult struct {
	AnalysisID string              `json:"analysis_id"`
	ProjectID  string              `json:"project_id"`
	RiskScore  float64             `json:"risk_score"`
	Turns      []domain.DebateTurn `json:"debate_log"`
	Consensus  string              `json:"consensus"`
}

// Debate puts the top recommendation of the latest analysis to the reviewers.
func (e Engine) Debate(ctx context.Context, projectID string) (DebateResult, error) {
	a, err := e.Analyze(ctx, projectID)
	if err != nil {
		return DebateResult{}, err
	}
	state := debate.State{
		ProjectID:   a.ProjectID,
		ProjectName: a.ProjectName,
		RiskScore:   a.RiskScore,
		Context:     a.Context,
	}
	top := ""
	if len(a.RecommendedActions) > 0 {
		top = a.RecommendedActions[0]
	}
	if len(a.Ranked) > 0 {
		state.Proposed = a.Ranked[0]
	}
	threshold := e.ProposeThreshold
	if threshold <= 0 {
		threshold = debate.DefaultProposeThreshold
	}
	proposal := debate.Propose(a.Assessment, a.PrimaryReason, top, threshold)
	out := debate.Run(state, proposal, e.Reviewers...)
	e.logger().Info("debate resolved", "project_id", projectID, "analysis_id", a.ID, "consensus", out.Consensus)
	return DebateResult{
		AnalysisID: a.ID,
		ProjectID:  a.ProjectID,
		RiskScore:  a.RiskScore,
		Turns:      out.Turns,
		Consensus:  out.Consensus,
	}, nil
}

// baseline prefers the caller's score, then a fresh cached analysis. Nil
// lets the simulator estimate one from context.
func (e Engine) baseline(projectID string, given *float64) *float64 {
	if given != nil {
		v := math.Min(1, math.Max(0, *given))
		return &v
	}
	if a, ok := e.Cache.Get(projectID); ok {
		score := a.RiskScore
		return &score
	}
	return nil
}

// SimulateMutation runs one staffing change against the project in m.
func (e Engine) SimulateMutation(ctx context.Context, m domain.TeamMutation, baseline *float64) (domain.TeamSimulationResult, error) {
	if m.ProjectID == "" {
		return domain.TeamSimulationResult{}, fmt.Errorf("%w: project_id required", domain.ErrUnknownMutation)
	}
	l, err := e.load(ctx, m.ProjectID)
	if err != nil {
		return domain.TeamSimulationResult{}, err
	}
	res, err := e.Team.Simulate(m, l.ctx, e.baseline(m.ProjectID, baseline))
	if err != nil {
		return domain.TeamSimulationResult{}, err
	}
	e.logger().Info("team mutation simulated", "project_id", m.ProjectID, "action", res.Mutation.Action, "role", m.Role, "risk_delta", res.RiskDelta)
	return res, nil
}

// SimulateBatch runs mutations against one project and ranks them by risk
// delta. Mutations without a project inherit projectID.
func (e Engine) SimulateBatch(ctx context.Context, projectID string, ms []domain.TeamMutation, baseline *float64) ([]domain.TeamSimulationResult, error) {
	if len(ms) == 0 {
		return []domain.TeamSimulationResult{}, nil
	}
	batch := make([]domain.TeamMutation, len(ms))
	for i, m := range ms {
		if m.ProjectID == "" {
			m.ProjectID = projectID
		}
		if m.ProjectID != projectID {
			return nil, fmt.Errorf("%w: mutation %d targets project %s, batch is for %s", domain.ErrUnknownMutation, i, m.ProjectID, projectID)
		}
		batch[i] = m
	}
	l, err := e.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	res, err := e.Team.SimulateBatch(batch, l.ctx, e.baseline(projectID, baseline))
	if err != nil {
		return nil, err
	}
	e.logger().Info("team batch simulated", "project_id", projectID, "mutations", len(batch))
	return res, nil
}

func (e Engine) Roles() map[string]domain.RoleProfile {
	if len(e.Team.Roles) == 0 {
		return teamsim.DefaultRoles()
	}
	return e.Team.Roles
}

func (e Engine) Snapshots(ctx context.Context, projectID string, limit int) ([]domain.Snapshot, error) {
	if e.History == nil {
		return nil, errors.New("snapshot history not configured")
	}
	return e.History.Snapshots(ctx, projectID, limit)
}

// Import loads a dataset and drops every cached analysis.
func (e Engine) Import(ctx context.Context, ds repo.Dataset) (repo.ImportResult, error) {
	imp, ok := e.Source.(Importer)
	if !ok {
		return repo.ImportResult{}, errors.New("project source does not support import")
	}
	res, err := imp.Import(ctx, ds)
	if err != nil {
		return res, err
	}
	// Member skills and load reach across projects, so every entry is stale.
	e.Cache.Invalidate()
	e.logger().Info("dataset imported", "projects", res.Projects, "members", res.Members, "tickets", res.Tickets)
	return res, nil
}
