package portal

import (
	"context"

	"github.com/pkg/errors"
)

// LoanRecommendation is a bank product matched to a lead by the
// backend's policy engine.
type LoanRecommendation struct {
	BankName     string  `json:"bankName"`
	InterestRate float64 `json:"interestRate"`
	MaxAmount    float64 `json:"maxAmount"`
	TenureMonths int     `json:"tenureMonths"`
	Notes        string  `json:"notes,omitempty"`
}

// LoanApplication submits a lead against a recommended product.
type LoanApplication struct {
	LeadID   string  `json:"leadId"`
	BankName string  `json:"bankName"`
	Amount   float64 `json:"amount"`
}

// LoansService reads bank-loan recommendations and submits
// applications. Policy matching is entirely server-side.
type LoansService struct {
	client *Client
}

// Recommendations returns the bank products matched to a lead.
func (s *LoansService) Recommendations(ctx context.Context, leadID string) ([]LoanRecommendation, error) {
	var recommendations []LoanRecommendation
	key := "loans/recommendations/" + leadID
	endpoint := "/leads/" + leadID + "/loan-recommendations"
	if err := s.client.queries.Fetch(ctx, key, endpoint, &recommendations); err != nil {
		return nil, errors.Wrap(err, "[LoansService.Recommendations]")
	}
	return recommendations, nil
}

// Apply submits a loan application for a lead.
func (s *LoansService) Apply(ctx context.Context, application LoanApplication) error {
	if err := s.client.api.Post(ctx, "/loans/applications", application, nil); err != nil {
		return errors.Wrap(err, "[LoansService.Apply]")
	}
	s.client.queries.Invalidate("loans/recommendations/" + application.LeadID)
	return nil
}
