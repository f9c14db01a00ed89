package portal

import (
	"context"
	"fmt"

	"github.com/homobie/portal-go/transport"
	"github.com/pkg/errors"
)

// Property is a listed unit, optionally attached to a project.
type Property struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Address   string  `json:"address"`
	City      string  `json:"city,omitempty"`
	Price     float64 `json:"price"`
	Bedrooms  int     `json:"bedrooms,omitempty"`
	ProjectID string  `json:"projectId,omitempty"`
	ImageID   string  `json:"imageId,omitempty"`
	ListedBy  string  `json:"listedBy,omitempty"`
}

const propertiesCacheKey = "properties"

// PropertiesService manages property listings, including their image
// payloads.
type PropertiesService struct {
	client *Client
}

// List returns all property listings.
func (s *PropertiesService) List(ctx context.Context) ([]Property, error) {
	var properties []Property
	if err := s.client.queries.Fetch(ctx, propertiesCacheKey, "/properties", &properties); err != nil {
		return nil, errors.Wrap(err, "[PropertiesService.List]")
	}
	return properties, nil
}

// Get returns a single property.
func (s *PropertiesService) Get(ctx context.Context, id string) (*Property, error) {
	var property Property
	key := fmt.Sprintf("properties/%s", id)
	if err := s.client.queries.Fetch(ctx, key, "/properties/"+id, &property); err != nil {
		return nil, errors.Wrap(err, "[PropertiesService.Get]")
	}
	return &property, nil
}

// Create registers a new listing.
func (s *PropertiesService) Create(ctx context.Context, property Property) (*Property, error) {
	var created Property
	if err := s.client.api.Post(ctx, "/properties", property, &created); err != nil {
		return nil, errors.Wrap(err, "[PropertiesService.Create]")
	}
	s.client.queries.Invalidate(propertiesCacheKey)
	return &created, nil
}

// Update modifies an existing listing.
func (s *PropertiesService) Update(ctx context.Context, id string, property Property) (*Property, error) {
	var updated Property
	if err := s.client.api.Put(ctx, "/properties/"+id, property, &updated); err != nil {
		return nil, errors.Wrap(err, "[PropertiesService.Update]")
	}
	s.client.queries.Invalidate(propertiesCacheKey)
	s.client.queries.Invalidate(fmt.Sprintf("properties/%s", id))
	return &updated, nil
}

// UploadImage attaches an image to a listing. data is sent verbatim
// with the given content type.
func (s *PropertiesService) UploadImage(ctx context.Context, id string, data []byte, contentType string) error {
	err := s.client.api.Post(ctx, "/properties/"+id+"/image", data, nil,
		transport.WithContentType(contentType))
	if err != nil {
		return errors.Wrap(err, "[PropertiesService.UploadImage]")
	}
	s.client.queries.Invalidate(fmt.Sprintf("properties/%s", id))
	return nil
}

// Image fetches a listing's image bytes. Not cached: image payloads
// are large and the backend serves them with their own cache headers.
func (s *PropertiesService) Image(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.client.api.Get(ctx, "/properties/"+id+"/image", nil, transport.RawResponse(&data))
	if err != nil {
		return nil, errors.Wrap(err, "[PropertiesService.Image]")
	}
	return data, nil
}
