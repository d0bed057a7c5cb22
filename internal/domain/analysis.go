package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownIntervention = errors.New("unknown intervention")
	ErrUnknownRole         = errors.New("unknown role")
	ErrUnknownMutation     = errors.New("unknown team mutation")
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// LevelFor maps a score onto fixed thresholds: <=0.3 LOW, <=0.7 MEDIUM, otherwise HIGH.
func LevelFor(score float64) RiskLevel {
	switch {
	case score <= 0.3:
		return RiskLow
	case score <= 0.7:
		return RiskMedium
	default:
		return RiskHigh
	}
}

type RiskAssessment struct {
	Score        float64   `json:"risk_score"`
	RawScore     float64   `json:"raw_score"`
	Level        RiskLevel `json:"risk_level"`
	Evidence     []string  `json:"evidence"`
	Blocked      []Ticket  `json:"blocked,omitempty"`
	Overdue      []Ticket  `json:"overdue,omitempty"`
	NearDeadline []Ticket  `json:"near_deadline,omitempty"`
	ActiveCount  int       `json:"active_count"`
}

// Flagged is the number of ticket findings behind the score.
func (a RiskAssessment) Flagged() int {
	return len(a.Blocked) + len(a.Overdue) + len(a.NearDeadline)
}

type Intervention string

const (
	AddEngineer        Intervention = "ADD_ENGINEER"
	EscalateDependency Intervention = "ESCALATE_DEPENDENCY"
	ReduceScope        Intervention = "REDUCE_SCOPE"
	AcceptDelay        Intervention = "ACCEPT_DELAY"
)

// Interventions lists every candidate in evaluation order.
var Interventions = []Intervention{AddEngineer, EscalateDependency, ReduceScope, AcceptDelay}

// Title renders the display form, e.g. "Add Engineer".
func (i Intervention) Title() string {
	words := strings.Split(strings.ToLower(string(i)), "_")
	for n, w := range words {
		if w != "" {
			words[n] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Index is the position of i in Interventions, or -1.
func (i Intervention) Index() int {
	for n, c := range Interventions {
		if c == i {
			return n
		}
	}
	return -1
}

// ParseIntervention accepts ADD_ENGINEER, AddEngineer, add-engineer or "Add Engineer".
func ParseIntervention(s string) (Intervention, error) {
	key := squash(s)
	for _, c := range Interventions {
		if squash(string(c)) == key {
			return c, nil
		}
	}
	valid := make([]string, len(Interventions))
	for n, c := range Interventions {
		valid[n] = string(c)
	}
	return "", fmt.Errorf("%w %q (valid: %s)", ErrUnknownIntervention, s, strings.Join(valid, ", "))
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

type ConstraintResult struct {
	Feasible bool    `json:"feasible"`
	Penalty  float64 `json:"penalty"`
	Reason   string  `json:"reason"`
}

type SimulationStatistics struct {
	MeanRiskReduction   float64 `json:"mean_risk_reduction"`
	P5                  float64 `json:"p5"`
	P95                 float64 `json:"p95"`
	MeanCostPenalty     float64 `json:"mean_cost_penalty"`
	ProbabilityPositive float64 `json:"probability_positive"`
}

type CostTier string

const (
	CostLow    CostTier = "Low"
	CostMedium CostTier = "Medium"
	CostHigh   CostTier = "High"
)

// TierFor buckets a total penalty at 0.15 and 0.30.
func TierFor(totalPenalty float64) CostTier {
	switch {
	case totalPenalty < 0.15:
		return CostLow
	case totalPenalty < 0.3:
		return CostMedium
	default:
		return CostHigh
	}
}

type DecisionComparison struct {
	Intervention  Intervention `json:"intervention"`
	Action        string       `json:"action"`
	RiskReduction float64      `json:"risk_reduction"`
	Cost          CostTier     `json:"cost" enum:"Low,Medium,High"`
	Feasible      bool         `json:"feasible"`
	Recommended   bool         `json:"recommended"`
	Reason        string       `json:"reason"`
}

type AgentOpinion struct {
	Agent      string   `json:"agent"`
	Claim      string   `json:"claim"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

type Vote string

const (
	VotePropose   Vote = "PROPOSE"
	VoteAgree     Vote = "AGREE"
	VoteChallenge Vote = "CHALLENGE"
	VoteVeto      Vote = "VETO"
	VoteAbstain   Vote = "ABSTAIN"
)

// MonitorAction stands in for a missing proposed action.
const MonitorAction = "Monitor"

type DebateTurn struct {
	AgentName               string   `json:"agent_name"`
	Vote                    Vote     `json:"vote" enum:"PROPOSE,AGREE,CHALLENGE,VETO,ABSTAIN"`
	Claim                   string   `json:"claim"`
	Reasoning               string   `json:"reasoning"`
	Confidence              float64  `json:"confidence"`
	Evidence                []string `json:"evidence,omitempty"`
	ProposedAction          string   `json:"proposed_action,omitempty"`
	CostProjection          *float64 `json:"cost_projection,omitempty"`
	RiskReductionProjection *float64 `json:"risk_reduction_projection,omitempty"`
	Feasible                *bool    `json:"feasible,omitempty"`
}

type TeamAction string

const (
	TeamAdd      TeamAction = "add"
	TeamRemove   TeamAction = "remove"
	TeamTransfer TeamAction = "transfer"
)

// ParseTeamAction rejects anything other than add, remove or transfer.
func ParseTeamAction(s string) (TeamAction, error) {
	switch a := TeamAction(strings.ToLower(strings.TrimSpace(s))); a {
	case TeamAdd, TeamRemove, TeamTransfer:
		return a, nil
	}
	return "", fmt.Errorf("%w action %q (valid: add, remove, transfer)", ErrUnknownMutation, s)
}

type TeamMutation struct {
	Action     TeamAction `yaml:"action" json:"action" enum:"add,remove,transfer"`
	Role       string     `yaml:"role" json:"role"`
	ProjectID  string     `yaml:"project_id" json:"project_id"`
	MemberName string     `yaml:"member_name" json:"member_name,omitempty"`
	SourceTeam string     `yaml:"source_team" json:"source_team,omitempty"`
}

type TeamSimulationResult struct {
	Mutation       TeamMutation `json:"mutation"`
	BaselineRisk   float64      `json:"baseline_risk"`
	ProjectedRisk  float64      `json:"projected_risk"`
	RiskDelta      float64      `json:"risk_delta"`
	CostDelta      float64      `json:"cost_delta"`
	VelocityChange float64      `json:"velocity_change"`
	Confidence     float64      `json:"confidence"`
	Reasoning      string       `json:"reasoning"`
	Feasible       bool         `json:"feasible"`
	Warning        string       `json:"warning,omitempty"`
}

// Distribution holds normal (mean, stddev) pairs for one intervention.
type Distribution struct {
	RiskReductionMean float64 `yaml:"rr_mean" json:"rr_mean"`
	RiskReductionStd  float64 `yaml:"rr_std" json:"rr_std"`
	CostPenaltyMean   float64 `yaml:"cp_mean" json:"cp_mean"`
	CostPenaltyStd    float64 `yaml:"cp_std" json:"cp_std"`
}

type RoleProfile struct {
	VelocityBoost     float64 `yaml:"velocity_boost" json:"velocity_boost"`
	RampUpDays        int     `yaml:"ramp_up_days" json:"ramp_up_days"`
	CostPerDay        float64 `yaml:"cost_per_day" json:"cost_per_day"`
	BlockedResolution float64 `yaml:"blocked_resolution" json:"blocked_resolution"`
}

// RoleNames returns the sorted keys of a role table.
func RoleNames(roles map[string]RoleProfile) []string {
	names := make([]string, 0, len(roles))
	for name := range roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type RiskWeights struct {
	BlockedDependency  float64 `yaml:"blocked_dependency" json:"blocked_dependency"`
	HighPriorityBonus  float64 `yaml:"high_priority_bonus" json:"high_priority_bonus"`
	OverdueTicket      float64 `yaml:"overdue_ticket" json:"overdue_ticket"`
	DeadlineProximity  float64 `yaml:"deadline_proximity" json:"deadline_proximity"`
	DeadlineWindowDays int     `yaml:"deadline_window_days" json:"deadline_window_days"`
}

func DefaultRiskWeights() RiskWeights {
	return RiskWeights{
		BlockedDependency:  0.4,
		HighPriorityBonus:  0.1,
		OverdueTicket:      0.3,
		DeadlineProximity:  0.3,
		DeadlineWindowDays: 7,
	}
}
