package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"riskline/internal/domain"
	"riskline/internal/events"
)

// Dataset is the seed file format read by Import.
type Dataset struct {
	Projects []ProjectSeed `yaml:"projects" json:"projects,omitempty"`
	Members  []MemberSeed  `yaml:"members" json:"members,omitempty"`
	Tickets  []TicketSeed  `yaml:"tickets" json:"tickets,omitempty"`
}

type ProjectSeed struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	TeamName string `yaml:"team_name" json:"team_name,omitempty"`
	Deadline string `yaml:"deadline" json:"deadline,omitempty"`
}

type MemberSeed struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	TeamName string   `yaml:"team_name" json:"team_name,omitempty"`
	Role     string   `yaml:"role" json:"role,omitempty"`
	Skills   []string `yaml:"skills" json:"skills,omitempty"`
}

type TicketSeed struct {
	ID             string   `yaml:"id" json:"id"`
	ProjectID      string   `yaml:"project_id" json:"project_id"`
	Title          string   `yaml:"title" json:"title"`
	Status         string   `yaml:"status" json:"status"`
	Priority       string   `yaml:"priority" json:"priority,omitempty"`
	DueDate        string   `yaml:"due_date" json:"due_date,omitempty"`
	AssigneeID     string   `yaml:"assignee_id" json:"assignee_id,omitempty"`
	BlockedBy      string   `yaml:"blocked_by" json:"blocked_by,omitempty"`
	RequiredSkills []string `yaml:"required_skills" json:"required_skills,omitempty"`
}

type ImportResult struct {
	Projects int `json:"projects,omitempty"`
	Members  int `json:"members,omitempty"`
	Tickets  int `json:"tickets,omitempty"`
}

func ParseDataset(data []byte) (Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return ds, fmt.Errorf("parse dataset: %w", err)
	}
	return ds, ds.Validate()
}

func LoadDataset(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, err
	}
	return ParseDataset(data)
}

// ErrInvalidDataset wraps every validation failure reported by Validate.
var ErrInvalidDataset = errors.New("invalid dataset")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidDataset}, args...)...)
}

// Validate checks required fields and enum values. Tickets default to
// Medium priority.
func (ds *Dataset) Validate() error {
	for _, p := range ds.Projects {
		if p.ID == "" || p.Name == "" {
			return invalidf("project requires id and name")
		}
		if p.Deadline != "" {
			if _, err := time.Parse("2006-01-02", p.Deadline); err != nil {
				return invalidf("project %s: invalid deadline %q", p.ID, p.Deadline)
			}
		}
	}
	for _, m := range ds.Members {
		if m.ID == "" || m.Name == "" {
			return invalidf("member requires id and name")
		}
	}
	for i := range ds.Tickets {
		t := &ds.Tickets[i]
		if t.ID == "" || t.ProjectID == "" || t.Title == "" {
			return invalidf("ticket requires id, project_id and title")
		}
		switch domain.TicketStatus(t.Status) {
		case domain.StatusToDo, domain.StatusInProgress, domain.StatusReview, domain.StatusDone:
		default:
			return invalidf("ticket %s: invalid status %q (valid: To Do, In Progress, Review, Done)", t.ID, t.Status)
		}
		switch domain.Priority(t.Priority) {
		case "":
			t.Priority = string(domain.PriorityMedium)
		case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh:
		default:
			return invalidf("ticket %s: invalid priority %q (valid: Low, Medium, High)", t.ID, t.Priority)
		}
		if t.BlockedBy == t.ID {
			return invalidf("ticket %s: cannot block itself", t.ID)
		}
	}
	return nil
}

// Import upserts the dataset in one transaction. Skill lists replace the
// stored ones for every member and ticket named in the dataset.
func (r Repo) Import(ctx context.Context, ds Dataset) (ImportResult, error) {
	var res ImportResult
	if err := ds.Validate(); err != nil {
		return res, err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	now := r.now().UTC().Format(time.RFC3339)
	w := r.events()

	for _, p := range ds.Projects {
		_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,team_name,deadline,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, team_name=excluded.team_name, deadline=excluded.deadline`,
			p.ID, p.Name, nullable(p.TeamName), nullable(p.Deadline), now)
		if err != nil {
			return res, fmt.Errorf("import project %s: %w", p.ID, err)
		}
		if err := w.Append(ctx, tx, events.Record{Type: "project.imported", ProjectID: p.ID, EntityKind: "project", EntityID: p.ID,
			Payload: events.EventPayload{"name": p.Name, "team_name": p.TeamName}}); err != nil {
			return res, err
		}
		res.Projects++
	}

	for _, m := range ds.Members {
		_, err := tx.ExecContext(ctx, `INSERT INTO members(id,name,team_name,role,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, team_name=excluded.team_name, role=excluded.role`,
			m.ID, m.Name, nullable(m.TeamName), nullable(m.Role), now)
		if err != nil {
			return res, fmt.Errorf("import member %s: %w", m.ID, err)
		}
		if err := replaceSkills(ctx, tx, "member_skills", "member_id", m.ID, m.Skills); err != nil {
			return res, err
		}
		res.Members++
	}

	byProject := map[string]int{}
	for _, t := range ds.Tickets {
		_, err := tx.ExecContext(ctx, `INSERT INTO tickets(id,project_id,title,status,priority,due_date,assignee_id,blocked_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET project_id=excluded.project_id, title=excluded.title, status=excluded.status, priority=excluded.priority,
due_date=excluded.due_date, assignee_id=excluded.assignee_id, blocked_by=excluded.blocked_by, updated_at=excluded.updated_at`,
			t.ID, t.ProjectID, t.Title, t.Status, t.Priority, nullable(t.DueDate), nullable(t.AssigneeID), nullable(t.BlockedBy), now, now)
		if err != nil {
			return res, fmt.Errorf("import ticket %s: %w", t.ID, err)
		}
		if err := replaceSkills(ctx, tx, "ticket_skills", "ticket_id", t.ID, t.RequiredSkills); err != nil {
			return res, err
		}
		byProject[t.ProjectID]++
		res.Tickets++
	}
	for projectID, n := range byProject {
		if err := w.Append(ctx, tx, events.Record{Type: "tickets.imported", ProjectID: projectID, EntityKind: "project", EntityID: projectID,
			Payload: events.EventPayload{"count": n}}); err != nil {
			return res, err
		}
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

func replaceSkills(ctx context.Context, tx *sql.Tx, table, column, id string, skills []string) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s=?`, table, column), id); err != nil {
		return err
	}
	for _, s := range skills {
		if s == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT OR IGNORE INTO %s(%s,skill) VALUES (?,?)`, table, column), id, s); err != nil {
			return fmt.Errorf("insert skill %q for %s: %w", s, id, err)
		}
	}
	return nil
}
