package domain

type TicketStatus string

const (
	StatusToDo       TicketStatus = "To Do"
	StatusInProgress TicketStatus = "In Progress"
	StatusReview     TicketStatus = "Review"
	StatusDone       TicketStatus = "Done"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TeamName  string `json:"team_name,omitempty"`
	Deadline  string `json:"deadline,omitempty" format:"date"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Member struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	TeamName string   `json:"team_name,omitempty"`
	Role     string   `json:"role,omitempty"`
	Skills   []string `json:"skills,omitempty"`
}

// BlockerRef points at the ticket blocking another one, with that ticket's status at read time.
type BlockerRef struct {
	ID     string       `json:"id"`
	Title  string       `json:"title,omitempty"`
	Status TicketStatus `json:"status,omitempty"`
}

type Ticket struct {
	ID             string       `json:"id"`
	ProjectID      string       `json:"project_id,omitempty"`
	Title          string       `json:"title"`
	Status         TicketStatus `json:"status" enum:"To Do,In Progress,Review,Done"`
	Priority       Priority     `json:"priority,omitempty" enum:"Low,Medium,High"`
	DueDate        string       `json:"due_date,omitempty"`
	AssigneeID     string       `json:"assignee_id,omitempty"`
	Blocker        *BlockerRef  `json:"blocker,omitempty"`
	RequiredSkills []string     `json:"required_skills,omitempty"`
}

// Active reports whether the ticket still counts toward delivery risk.
func (t Ticket) Active() bool {
	return t.Status != StatusDone
}

// Blocked reports whether the ticket waits on a blocker that has not reached Done.
func (t Ticket) Blocked() bool {
	return t.Blocker != nil && t.Blocker.ID != "" && t.Blocker.Status != StatusDone
}

// ProjectData is the read model returned by a project source.
type ProjectData struct {
	Project  Project  `json:"project"`
	TeamName string   `json:"team_name"`
	Tickets  []Ticket `json:"tickets"`
}

type Signals struct {
	DependencyDepth int     `json:"dependency_depth"`
	SkillMatchScore float64 `json:"skill_match_score"`
	ContentionScore float64 `json:"contention_score"`
}

// DefaultSignals is used when a project has no signal data.
func DefaultSignals() Signals {
	return Signals{DependencyDepth: 0, SkillMatchScore: 1.0, ContentionScore: 0}
}

// ProjectContext is derived once per analysis and read by every evaluator.
type ProjectContext struct {
	IsBlocked           bool    `json:"is_blocked"`
	Blocker             string  `json:"blocker,omitempty"`
	DaysToDeadline      int     `json:"days_to_deadline"`
	TeamCapacityPercent int     `json:"team_capacity_percent"`
	TeamSize            int     `json:"team_size"`
	ActiveTickets       int     `json:"active_tickets"`
	Signals             Signals `json:"signals"`
}

type Snapshot struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	ProjectName  string    `json:"project_name,omitempty"`
	RiskScore    float64   `json:"risk_score"`
	RiskLevel    RiskLevel `json:"risk_level"`
	BlockedCount int       `json:"blocked_count"`
	OverdueCount int       `json:"overdue_count"`
	TotalTickets int       `json:"total_tickets"`
	CreatedAt    string    `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
