package portal

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Project is a builder's development project.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	BuilderID   string    `json:"builderId"`
	Location    string    `json:"location"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

const projectsCacheKey = "projects"

// ProjectsService manages builder projects.
type ProjectsService struct {
	client *Client
}

// List returns all projects visible to the current user.
func (s *ProjectsService) List(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := s.client.queries.Fetch(ctx, projectsCacheKey, "/projects", &projects); err != nil {
		return nil, errors.Wrap(err, "[ProjectsService.List]")
	}
	return projects, nil
}

// Get returns a single project.
func (s *ProjectsService) Get(ctx context.Context, id string) (*Project, error) {
	var project Project
	key := fmt.Sprintf("projects/%s", id)
	if err := s.client.queries.Fetch(ctx, key, "/projects/"+id, &project); err != nil {
		return nil, errors.Wrap(err, "[ProjectsService.Get]")
	}
	return &project, nil
}

// Create registers a new project.
func (s *ProjectsService) Create(ctx context.Context, project Project) (*Project, error) {
	var created Project
	if err := s.client.api.Post(ctx, "/projects", project, &created); err != nil {
		return nil, errors.Wrap(err, "[ProjectsService.Create]")
	}
	s.client.queries.Invalidate(projectsCacheKey)
	return &created, nil
}

// Update modifies an existing project.
func (s *ProjectsService) Update(ctx context.Context, id string, project Project) (*Project, error) {
	var updated Project
	if err := s.client.api.Put(ctx, "/projects/"+id, project, &updated); err != nil {
		return nil, errors.Wrap(err, "[ProjectsService.Update]")
	}
	s.client.queries.Invalidate(projectsCacheKey)
	s.client.queries.Invalidate(fmt.Sprintf("projects/%s", id))
	return &updated, nil
}
