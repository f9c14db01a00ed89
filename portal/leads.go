package portal

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// Lead is a prospective borrower or buyer worked by telecallers and
// sales agents. Assignment and scoring happen server-side.
type Lead struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email,omitempty"`
	Status     string    `json:"status"`
	AssignedTo string    `json:"assignedTo,omitempty"`
	PropertyID string    `json:"propertyId,omitempty"`
	LoanAmount float64   `json:"loanAmount,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// LeadFilter narrows List results; zero fields are ignored.
type LeadFilter struct {
	Status     string
	AssignedTo string
}

// LeadsService manages leads.
type LeadsService struct {
	client *Client
}

func leadsCacheKey(filter LeadFilter) string {
	return fmt.Sprintf("leads?status=%s&assignedTo=%s", filter.Status, filter.AssignedTo)
}

// List returns leads matching the filter.
func (s *LeadsService) List(ctx context.Context, filter LeadFilter) ([]Lead, error) {
	params := url.Values{}
	if filter.Status != "" {
		params.Set("status", filter.Status)
	}
	if filter.AssignedTo != "" {
		params.Set("assignedTo", filter.AssignedTo)
	}
	endpoint := "/leads"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var leads []Lead
	if err := s.client.queries.Fetch(ctx, leadsCacheKey(filter), endpoint, &leads); err != nil {
		return nil, errors.Wrap(err, "[LeadsService.List]")
	}
	return leads, nil
}

// Get returns a single lead.
func (s *LeadsService) Get(ctx context.Context, id string) (*Lead, error) {
	var lead Lead
	if err := s.client.queries.Fetch(ctx, "leads/"+id, "/leads/"+id, &lead); err != nil {
		return nil, errors.Wrap(err, "[LeadsService.Get]")
	}
	return &lead, nil
}

// Create registers a new lead. The backend decides assignment.
func (s *LeadsService) Create(ctx context.Context, lead Lead) (*Lead, error) {
	var created Lead
	if err := s.client.api.Post(ctx, "/leads", lead, &created); err != nil {
		return nil, errors.Wrap(err, "[LeadsService.Create]")
	}
	s.client.queries.InvalidateAll()
	return &created, nil
}

// UpdateStatus moves a lead through the pipeline.
func (s *LeadsService) UpdateStatus(ctx context.Context, id, status string) (*Lead, error) {
	var updated Lead
	body := map[string]string{"status": status}
	if err := s.client.api.Patch(ctx, "/leads/"+id+"/status", body, &updated); err != nil {
		return nil, errors.Wrap(err, "[LeadsService.UpdateStatus]")
	}
	s.client.queries.InvalidateAll()
	return &updated, nil
}
