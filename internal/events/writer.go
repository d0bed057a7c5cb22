package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const SystemActor = "riskline"

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

type Record struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    EventPayload
}

func (w Writer) Append(ctx context.Context, db Execer, r Record) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if r.ActorID == "" {
		r.ActorID = SystemActor
	}
	if r.Payload == nil {
		r.Payload = EventPayload{}
	}
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), r.Type, nullable(r.ProjectID), r.EntityKind, nullable(r.EntityID), r.ActorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", r.Type, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
