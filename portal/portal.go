// Package portal exposes typed clients for the brokerage resources:
// projects, leads, properties and bank-loan recommendations. Reads go
// through the query layer's cache; mutations go straight through the
// transport and invalidate the affected cache keys.
package portal

import (
	"github.com/homobie/portal-go/query"
	"github.com/homobie/portal-go/transport"
)

// Client bundles the resource services.
type Client struct {
	api     *transport.Client
	queries *query.Client

	projects   *ProjectsService
	leads      *LeadsService
	properties *PropertiesService
	loans      *LoansService
}

// New creates a portal client over an authenticated transport and its
// query layer.
func New(api *transport.Client, queries *query.Client) *Client {
	c := &Client{api: api, queries: queries}
	c.projects = &ProjectsService{client: c}
	c.leads = &LeadsService{client: c}
	c.properties = &PropertiesService{client: c}
	c.loans = &LoansService{client: c}
	return c
}

func (c *Client) Projects() *ProjectsService     { return c.projects }
func (c *Client) Leads() *LeadsService           { return c.leads }
func (c *Client) Properties() *PropertiesService { return c.properties }
func (c *Client) Loans() *LoansService           { return c.loans }
