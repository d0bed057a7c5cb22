package repo

import (
	"context"
	"fmt"

	"riskline/internal/domain"
)

// Signals derives the dependency graph signals for a project from its
// ticket links and member skills.
func (r Repo) Signals(ctx context.Context, projectID string) (domain.Signals, error) {
	s := domain.DefaultSignals()
	depth, err := r.dependencyDepth(ctx, projectID)
	if err != nil {
		return s, fmt.Errorf("dependency depth: %w", err)
	}
	s.DependencyDepth = depth

	var required, matched int
	err = r.DB.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(CASE WHEN ms.skill IS NOT NULL THEN 1 ELSE 0 END),0)
FROM ticket_skills ts
JOIN tickets t ON t.id=ts.ticket_id
LEFT JOIN member_skills ms ON ms.member_id=t.assignee_id AND ms.skill=ts.skill
WHERE t.project_id=?`, projectID).Scan(&required, &matched)
	if err != nil {
		return s, fmt.Errorf("skill match: %w", err)
	}
	if required > 0 {
		s.SkillMatchScore = float64(matched) / float64(required)
	}

	// Load counts every active ticket of the assignee, in any project.
	err = r.DB.QueryRowContext(ctx, `SELECT COALESCE(AVG(load),0) FROM (
  SELECT a.assignee_id, COUNT(*) AS load FROM tickets a
  WHERE a.status<>'Done' AND a.assignee_id IN (
    SELECT assignee_id FROM tickets WHERE project_id=? AND assignee_id IS NOT NULL)
  GROUP BY a.assignee_id)`, projectID).Scan(&s.ContentionScore)
	if err != nil {
		return s, fmt.Errorf("contention: %w", err)
	}
	return s, nil
}

// dependencyDepth is the longest blocked_by chain starting at any project
// ticket, counted in links. Cycles stop at the first repeated ticket.
func (r Repo) dependencyDepth(ctx context.Context, projectID string) (int, error) {
	var depth int
	err := r.DB.QueryRowContext(ctx, `WITH RECURSIVE chain(id, depth, path) AS (
  SELECT b.id, 1, ',' || t.id || ',' || b.id || ','
  FROM tickets t JOIN tickets b ON b.id=t.blocked_by
  WHERE t.project_id=?
  UNION ALL
  SELECT n.id, c.depth+1, c.path || n.id || ','
  FROM chain c
  JOIN tickets cur ON cur.id=c.id
  JOIN tickets n ON n.id=cur.blocked_by
  WHERE instr(c.path, ',' || n.id || ',')=0
)
SELECT COALESCE(MAX(depth),0) FROM chain`, projectID).Scan(&depth)
	return depth, err
}
