package server

import (
	"sort"

	"riskline/internal/domain"
)

// Request payloads

type TeamMutationRequest struct {
	Action     string `json:"action" enum:"add,remove,transfer"`
	Role       string `json:"role" minLength:"1"`
	MemberName string `json:"member_name,omitempty"`
	SourceTeam string `json:"source_team,omitempty"`
}

func (r TeamMutationRequest) mutation(projectID string) domain.TeamMutation {
	return domain.TeamMutation{
		Action:     domain.TeamAction(r.Action),
		Role:       r.Role,
		ProjectID:  projectID,
		MemberName: r.MemberName,
		SourceTeam: r.SourceTeam,
	}
}

type TeamSimulationRequest struct {
	TeamMutationRequest
	BaselineRisk *float64 `json:"baseline_risk,omitempty" minimum:"0" maximum:"1" doc:"Risk score to simulate from; defaults to the cached analysis or an estimate"`
}

type TeamBatchRequest struct {
	Mutations    []TeamMutationRequest `json:"mutations" minItems:"1"`
	BaselineRisk *float64              `json:"baseline_risk,omitempty" minimum:"0" maximum:"1"`
}

// Response payloads

type ProjectResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TeamName  string `json:"team_name,omitempty"`
	Deadline  string `json:"deadline,omitempty"`
	CreatedAt string `json:"created_at"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{ID: p.ID, Name: p.Name, TeamName: p.TeamName, Deadline: p.Deadline, CreatedAt: p.CreatedAt}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

type TeamBatchResponse struct {
	ProjectID string                        `json:"project_id"`
	Results   []domain.TeamSimulationResult `json:"results"`
}

type RoleResponse struct {
	Name              string  `json:"name"`
	VelocityBoost     float64 `json:"velocity_boost"`
	RampUpDays        int     `json:"ramp_up_days"`
	CostPerDay        float64 `json:"cost_per_day"`
	BlockedResolution float64 `json:"blocked_resolution"`
}

func roleResponses(roles map[string]domain.RoleProfile) []RoleResponse {
	out := make([]RoleResponse, 0, len(roles))
	for name, p := range roles {
		out = append(out, RoleResponse{
			Name:              name,
			VelocityBoost:     p.VelocityBoost,
			RampUpDays:        p.RampUpDays,
			CostPerDay:        p.CostPerDay,
			BlockedResolution: p.BlockedResolution,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type EventResponse struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts"`
	Type        string `json:"type"`
	ProjectID   string `json:"project_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	PayloadJSON string `json:"payload_json"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:          e.ID,
		TS:          e.TS,
		Type:        e.Type,
		ProjectID:   e.ProjectID,
		EntityKind:  e.EntityKind,
		EntityID:    e.EntityID,
		ActorID:     e.ActorID,
		PayloadJSON: e.Payload,
	}
}
