package risklinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnalyzeSendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/v0/projects/P%201/analysis" {
			t.Errorf("unexpected path %s", r.URL.EscapedPath())
		}
		if r.URL.Query().Get("refresh") != "true" {
			t.Errorf("expected refresh query")
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{"analysis_id": "a1", "project_id": "P 1", "risk_score": 0.42, "risk_level": "MEDIUM"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	a, err := c.Analyze(context.Background(), "P 1", true)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if a.ID != "a1" || a.RiskScore != 0.42 || a.RiskLevel != "MEDIUM" {
		t.Fatalf("unexpected analysis %+v", a)
	}
}

func TestBatchUnwrapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Mutations []Mutation `json:"mutations"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Mutations) != 2 {
			t.Errorf("unexpected body %+v (%v)", body, err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"project_id": "P1",
			"results":    []map[string]any{{"risk_delta": -0.2}, {"risk_delta": 0.1}},
		})
	}))
	defer srv.Close()

	res, err := New(srv.URL).SimulateTeamBatch(context.Background(), "P1", []Mutation{
		{Action: "add", Role: "Tech Lead"},
		{Action: "remove", Role: "QA Engineer"},
	}, nil)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(res) != 2 || res[0].RiskDelta != -0.2 {
		t.Fatalf("unexpected results %+v", res)
	}
}

func TestAPIErrorDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"not_found","message":"load project X: not found"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Debate(context.Background(), "X")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "not_found" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}
