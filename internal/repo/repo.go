package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"riskline/internal/domain"
	"riskline/internal/events"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Repo) events() events.Writer {
	return events.Writer{Now: r.Now}
}

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	var team, deadline sql.NullString
	err := row.Scan(&p.ID, &p.Name, &team, &deadline, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if team.Valid {
		p.TeamName = team.String
	}
	if deadline.Valid {
		p.Deadline = deadline.String
	}
	return p, err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT id,name,team_name,deadline,created_at FROM projects WHERE id=?`, id))
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(team_name,''),COALESCE(deadline,''),created_at FROM projects ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.TeamName, &p.Deadline, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ProjectData reads the project with its tickets in insertion order. A
// blocked_by reference to a ticket that does not exist is dropped.
func (r Repo) ProjectData(ctx context.Context, id string) (domain.ProjectData, error) {
	p, err := r.GetProject(ctx, id)
	if err != nil {
		return domain.ProjectData{}, err
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT t.id,t.project_id,t.title,t.status,t.priority,t.due_date,t.assignee_id,b.id,b.title,b.status
FROM tickets t LEFT JOIN tickets b ON b.id=t.blocked_by
WHERE t.project_id=? ORDER BY t.rowid`, id)
	if err != nil {
		return domain.ProjectData{}, err
	}
	defer rows.Close()
	data := domain.ProjectData{Project: p, TeamName: p.TeamName}
	index := map[string]int{}
	for rows.Next() {
		var t domain.Ticket
		var due, assignee, blockerID, blockerTitle, blockerStatus sql.NullString
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Status, &t.Priority, &due, &assignee, &blockerID, &blockerTitle, &blockerStatus); err != nil {
			return domain.ProjectData{}, err
		}
		if due.Valid {
			t.DueDate = due.String
		}
		if assignee.Valid {
			t.AssigneeID = assignee.String
		}
		if blockerID.Valid {
			t.Blocker = &domain.BlockerRef{ID: blockerID.String, Title: blockerTitle.String, Status: domain.TicketStatus(blockerStatus.String)}
		}
		index[t.ID] = len(data.Tickets)
		data.Tickets = append(data.Tickets, t)
	}
	if err := rows.Err(); err != nil {
		return domain.ProjectData{}, err
	}
	skills, err := r.DB.QueryContext(ctx, `SELECT ts.ticket_id,ts.skill FROM ticket_skills ts JOIN tickets t ON t.id=ts.ticket_id WHERE t.project_id=? ORDER BY ts.ticket_id,ts.skill`, id)
	if err != nil {
		return domain.ProjectData{}, err
	}
	defer skills.Close()
	for skills.Next() {
		var ticketID, skill string
		if err := skills.Scan(&ticketID, &skill); err != nil {
			return domain.ProjectData{}, err
		}
		if i, ok := index[ticketID]; ok {
			data.Tickets[i].RequiredSkills = append(data.Tickets[i].RequiredSkills, skill)
		}
	}
	return data, skills.Err()
}

// RecordSnapshot stores one analysis result and its event in one transaction.
func (r Repo) RecordSnapshot(ctx context.Context, s domain.Snapshot) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if s.CreatedAt == "" {
		s.CreatedAt = r.now().UTC().Format(time.RFC3339)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO snapshots(id,project_id,project_name,risk_score,risk_level,blocked_count,overdue_count,total_tickets,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ProjectID, nullable(s.ProjectName), s.RiskScore, s.RiskLevel, s.BlockedCount, s.OverdueCount, s.TotalTickets, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	err = r.events().Append(ctx, tx, events.Record{
		Type:       "analysis.snapshot",
		ProjectID:  s.ProjectID,
		EntityKind: "snapshot",
		EntityID:   s.ID,
		Payload: events.EventPayload{
			"risk_score": s.RiskScore,
			"risk_level": s.RiskLevel,
		},
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Snapshots returns the newest snapshots for a project first.
func (r Repo) Snapshots(ctx context.Context, projectID string, limit int) ([]domain.Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,COALESCE(project_name,''),risk_score,risk_level,blocked_count,overdue_count,total_tickets,created_at
FROM snapshots WHERE project_id=? ORDER BY created_at DESC, rowid DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Snapshot
	for rows.Next() {
		var s domain.Snapshot
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.ProjectName, &s.RiskScore, &s.RiskLevel, &s.BlockedCount, &s.OverdueCount, &s.TotalTickets, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ListEvents returns the latest events, optionally limited to one project.
func (r Repo) ListEvents(ctx context.Context, projectID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
