package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/prism-infra/prism-sync/internal/logging"
	"github.com/prism-infra/prism-sync/internal/projects/domain"
	"github.com/prism-infra/prism-sync/internal/session"
)

// ListProjects fetches the projects visible to the session, scoped to its user id
// when one is set. Malformed rows are dropped and logged.
func (c *Client) ListProjects(ctx context.Context, sess session.Session) ([]domain.Project, error) {
	var query url.Values
	if sess.UserID != "" {
		query = url.Values{"user_id": {sess.UserID}}
	}

	var records []projectRecord
	if err := c.call(ctx, sess, "list_projects", http.MethodGet, "/projects", query, nil, &records); err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx, c.logger)
	out := make([]domain.Project, 0, len(records))
	for _, rec := range records {
		p, err := rec.toDomain()
		if err != nil {
			logger.Warnf("list_projects", "rejected record: %v", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// GetProject fetches a single project.
func (c *Client) GetProject(ctx context.Context, sess session.Session, id int64) (domain.Project, error) {
	var rec projectRecord
	if err := c.call(ctx, sess, "get_project", http.MethodGet, projectPath(id), nil, nil, &rec); err != nil {
		if IsNotFound(err) {
			return domain.Project{}, fmt.Errorf("%w: %v", domain.ErrNotFound, err)
		}
		return domain.Project{}, err
	}
	return rec.toDomain()
}

// CreateProject creates a project owned by the session's user.
func (c *Client) CreateProject(ctx context.Context, sess session.Session, in domain.ProjectInput) (domain.Project, error) {
	if err := in.Validate(); err != nil {
		return domain.Project{}, err
	}
	in.UserID = sess.UserID

	var rec projectRecord
	if err := c.call(ctx, sess, "create_project", http.MethodPost, "/projects", nil, in, &rec); err != nil {
		return domain.Project{}, err
	}
	return rec.toDomain()
}

// UpdateProject replaces the full record of project id.
func (c *Client) UpdateProject(ctx context.Context, sess session.Session, id int64, in domain.ProjectInput) (domain.Project, error) {
	if err := in.Validate(); err != nil {
		return domain.Project{}, err
	}
	in.UserID = ""

	var rec projectRecord
	if err := c.call(ctx, sess, "update_project", http.MethodPut, projectPath(id), nil, in, &rec); err != nil {
		if IsNotFound(err) {
			return domain.Project{}, fmt.Errorf("%w: %v", domain.ErrNotFound, err)
		}
		return domain.Project{}, err
	}
	return rec.toDomain()
}

// DeleteProject deletes project id and reports the store's ok flag.
func (c *Client) DeleteProject(ctx context.Context, sess session.Session, id int64) (bool, error) {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.call(ctx, sess, "delete_project", http.MethodDelete, projectPath(id), nil, nil, &out); err != nil {
		return false, err
	}
	return out.OK, nil
}

func projectPath(id int64) string {
	return "/projects/" + strconv.FormatInt(id, 10)
}
