package portal_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/homobie/portal-go/portal"
	"github.com/homobie/portal-go/query"
	"github.com/homobie/portal-go/transport"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	client *portal.Client
}

func setup(t *testing.T, mux *http.ServeMux) *fixture {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	api := transport.New(server.URL)
	queries := query.New(api, query.Config{})
	return &fixture{client: portal.New(api, queries)}
}

func TestLeadsListWithFilter(t *testing.T) {
	var lastQuery atomic.Value
	var hits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/leads", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		lastQuery.Store(r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"l1","name":"Asha","phone":"9999","status":"new"}]`))
	})
	f := setup(t, mux)

	leads, err := f.client.Leads().List(context.Background(), portal.LeadFilter{Status: "new"})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	require.Equal(t, "l1", leads[0].ID)
	require.Equal(t, "status=new", lastQuery.Load())

	// Same filter: cache hit. Different filter: its own key.
	_, err = f.client.Leads().List(context.Background(), portal.LeadFilter{Status: "new"})
	require.NoError(t, err)
	require.Equal(t, int64(1), hits.Load())

	_, err = f.client.Leads().List(context.Background(), portal.LeadFilter{Status: "contacted"})
	require.NoError(t, err)
	require.Equal(t, int64(2), hits.Load())
}

func TestLeadCreateInvalidatesListCache(t *testing.T) {
	var listHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/leads", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			listHits.Add(1)
			_, _ = w.Write([]byte(`[]`))
		case http.MethodPost:
			var lead portal.Lead
			require.NoError(t, json.NewDecoder(r.Body).Decode(&lead))
			lead.ID = "l-new"
			raw, _ := json.Marshal(lead)
			_, _ = w.Write(raw)
		}
	})
	f := setup(t, mux)

	_, err := f.client.Leads().List(context.Background(), portal.LeadFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), listHits.Load())

	created, err := f.client.Leads().Create(context.Background(), portal.Lead{Name: "Ravi", Phone: "8888"})
	require.NoError(t, err)
	require.Equal(t, "l-new", created.ID)

	_, err = f.client.Leads().List(context.Background(), portal.LeadFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(2), listHits.Load(), "create invalidated the cached list")
}

func TestProjectsGetAndUpdate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/projects/p1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"id":"p1","name":"Lakeview","builderId":"b1","location":"Pune","status":"active"}`))
		case http.MethodPut:
			var project portal.Project
			require.NoError(t, json.NewDecoder(r.Body).Decode(&project))
			raw, _ := json.Marshal(project)
			_, _ = w.Write(raw)
		}
	})
	f := setup(t, mux)

	project, err := f.client.Projects().Get(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "Lakeview", project.Name)

	project.Status = "completed"
	updated, err := f.client.Projects().Update(context.Background(), "p1", *project)
	require.NoError(t, err)
	require.Equal(t, "completed", updated.Status)
}

func TestPropertyImageRoundTrip(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0xff, 0xe0}
	mux := http.NewServeMux()
	mux.HandleFunc("/properties/prop1/image", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			require.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write(payload)
		}
	})
	f := setup(t, mux)

	require.NoError(t, f.client.Properties().UploadImage(context.Background(), "prop1", payload, "image/jpeg"))

	got, err := f.client.Properties().Image(context.Background(), "prop1")
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestLoanRecommendationsAndApply(t *testing.T) {
	var applied atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/leads/l1/loan-recommendations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"bankName":"HDFC","interestRate":8.4,"maxAmount":5000000,"tenureMonths":240}]`))
	})
	mux.HandleFunc("/loans/applications", func(w http.ResponseWriter, r *http.Request) {
		var app portal.LoanApplication
		require.NoError(t, json.NewDecoder(r.Body).Decode(&app))
		applied.Store(app)
		w.WriteHeader(http.StatusNoContent)
	})
	f := setup(t, mux)

	recs, err := f.client.Loans().Recommendations(context.Background(), "l1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "HDFC", recs[0].BankName)

	err = f.client.Loans().Apply(context.Background(), portal.LoanApplication{LeadID: "l1", BankName: "HDFC", Amount: 4000000})
	require.NoError(t, err)
	require.Equal(t, "l1", applied.Load().(portal.LoanApplication).LeadID)
}
