// Package history keeps a Postgres log of batch risk refresh runs.
package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/prism-infra/prism-sync/internal/projects/domain"
	"github.com/prism-infra/prism-sync/internal/risksync"
)

// Run is one predict-and-save-all pass.
type Run struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Items      []Item    `json:"items,omitempty"`
}

// Item is the outcome for one project, in the order the pass visited them.
type Item struct {
	Position    int              `json:"position"`
	ProjectID   int64            `json:"project_id"`
	Label       domain.RiskLabel `json:"label,omitempty"`
	Probability *float64         `json:"probability,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// NewRun builds a Run from the progress reports of a pass.
func NewRun(userID string, started, finished time.Time, progress []risksync.Progress) Run {
	run := Run{
		ID:         uuid.New().String(),
		UserID:     userID,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Items:      make([]Item, 0, len(progress)),
	}
	for _, p := range progress {
		item := Item{Position: p.Index, ProjectID: p.ProjectID}
		switch {
		case p.Err != nil:
			item.Error = p.Err.Error()
			run.Failed++
		case p.Result != nil:
			prob := p.Result.Probability
			item.Label = p.Result.Label
			item.Probability = &prob
			run.Succeeded++
		}
		run.Items = append(run.Items, item)
	}
	run.Attempted = len(run.Items)
	return run
}
