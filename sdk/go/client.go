package risklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Riskline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  30 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TeamName  string `json:"team_name,omitempty"`
	Deadline  string `json:"deadline,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Comparison is one row of an analysis decision table.
type Comparison struct {
	Intervention  string  `json:"intervention"`
	Action        string  `json:"action"`
	RiskReduction float64 `json:"risk_reduction"`
	Cost          string  `json:"cost"`
	Feasible      bool    `json:"feasible"`
	Recommended   bool    `json:"recommended"`
	Reason        string  `json:"reason"`
}

type Opinion struct {
	Agent      string   `json:"agent"`
	Claim      string   `json:"claim"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

// Analysis represents the API analysis model (partial).
type Analysis struct {
	ID                 string       `json:"analysis_id"`
	ProjectID          string       `json:"project_id"`
	ProjectName        string       `json:"project_name"`
	TeamName           string       `json:"team_name"`
	RiskScore          float64      `json:"risk_score"`
	RiskLevel          string       `json:"risk_level"`
	PrimaryReason      string       `json:"primary_reason"`
	ExplanationSource  string       `json:"explanation_source"`
	SupportingSignals  []string     `json:"supporting_signals"`
	RecommendedActions []string     `json:"recommended_actions"`
	AgentOpinions      []Opinion    `json:"agent_opinions"`
	DecisionComparison []Comparison `json:"decision_comparison"`
	Warnings           []string     `json:"warnings,omitempty"`
	Cached             bool         `json:"cached"`
	GeneratedAt        string       `json:"generated_at"`
}

type DebateTurn struct {
	AgentName      string   `json:"agent_name"`
	Vote           string   `json:"vote"`
	Claim          string   `json:"claim"`
	Reasoning      string   `json:"reasoning"`
	Confidence     float64  `json:"confidence"`
	Evidence       []string `json:"evidence,omitempty"`
	ProposedAction string   `json:"proposed_action,omitempty"`
}

type Debate struct {
	AnalysisID string       `json:"analysis_id"`
	ProjectID  string       `json:"project_id"`
	RiskScore  float64      `json:"risk_score"`
	Turns      []DebateTurn `json:"debate_log"`
	Consensus  string       `json:"consensus"`
}

// Mutation describes a staffing change to simulate.
type Mutation struct {
	Action     string `json:"action"`
	Role       string `json:"role"`
	MemberName string `json:"member_name,omitempty"`
	SourceTeam string `json:"source_team,omitempty"`
}

type TeamResult struct {
	Mutation       Mutation `json:"mutation"`
	BaselineRisk   float64  `json:"baseline_risk"`
	ProjectedRisk  float64  `json:"projected_risk"`
	RiskDelta      float64  `json:"risk_delta"`
	CostDelta      float64  `json:"cost_delta"`
	VelocityChange float64  `json:"velocity_change"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	Feasible       bool     `json:"feasible"`
	Warning        string   `json:"warning,omitempty"`
}

type Snapshot struct {
	ID           string  `json:"id"`
	ProjectID    string  `json:"project_id"`
	RiskScore    float64 `json:"risk_score"`
	RiskLevel    string  `json:"risk_level"`
	BlockedCount int     `json:"blocked_count"`
	OverdueCount int     `json:"overdue_count"`
	TotalTickets int     `json:"total_tickets"`
	CreatedAt    string  `json:"created_at"`
}

// APIError wraps non-2xx responses. Code and Message are decoded from the
// error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Projects lists projects.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

// Analyze returns the project analysis. refresh bypasses the server cache.
func (c *Client) Analyze(ctx context.Context, projectID string, refresh bool) (Analysis, error) {
	endpoint := c.projectPath(projectID, "analysis")
	if refresh {
		endpoint += "?refresh=true"
	}
	var resp Analysis
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Debate(ctx context.Context, projectID string) (Debate, error) {
	var resp Debate
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "debate"), nil, &resp)
	return resp, err
}

// SimulateTeam runs one staffing change. A nil baseline lets the server pick.
func (c *Client) SimulateTeam(ctx context.Context, projectID string, m Mutation, baseline *float64) (TeamResult, error) {
	body := struct {
		Mutation
		BaselineRisk *float64 `json:"baseline_risk,omitempty"`
	}{m, baseline}
	var resp TeamResult
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "team-simulations"), body, &resp)
	return resp, err
}

// SimulateTeamBatch runs several staffing changes, most beneficial first.
func (c *Client) SimulateTeamBatch(ctx context.Context, projectID string, ms []Mutation, baseline *float64) ([]TeamResult, error) {
	var resp struct {
		Results []TeamResult `json:"results"`
	}
	body := map[string]any{"mutations": ms}
	if baseline != nil {
		body["baseline_risk"] = *baseline
	}
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "team-simulations/batch"), body, &resp)
	return resp.Results, err
}

// History returns recorded snapshots, newest first.
func (c *Client) History(ctx context.Context, projectID string, limit int) ([]Snapshot, error) {
	endpoint := c.projectPath(projectID, "history")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Snapshot
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(projectID, p string) string {
	return fmt.Sprintf("projects/%s/%s", url.PathEscape(projectID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if bp := strings.Trim(c.BasePath, "/"); bp != "" {
		base += "/" + bp
	}
	return base
}
