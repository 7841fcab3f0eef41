package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arbiter-hq/arbiter/internal/billing"
	"github.com/arbiter-hq/arbiter/internal/config"
	"github.com/arbiter-hq/arbiter/internal/debate"
	"github.com/arbiter-hq/arbiter/internal/money"
	"github.com/arbiter-hq/arbiter/internal/pricing"
	"github.com/arbiter-hq/arbiter/internal/provider"
	"github.com/arbiter-hq/arbiter/internal/tokencount"
	"github.com/arbiter-hq/arbiter/internal/usage"
)

type stubPersonalities struct{}

func (stubPersonalities) Prompt(string) (string, bool) { return "", false }
func (stubPersonalities) List(debateOnly bool) []debate.PersonalityInfo {
	return []debate.PersonalityInfo{{Name: "optimist"}}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	static := map[string]map[string]pricing.Pricing{
		"mock": {"echo": {Provider: "mock", Model: "echo", InputPerMillion: money.FromDollars(1), OutputPerMillion: money.FromDollars(1)}},
	}
	resolver := pricing.NewResolver(static, nil, nil)
	recorder := usage.NewRecorder(usage.NewMemoryStore(), resolver)
	counter := tokencount.NewCounter()
	ledger := billing.NewMemoryLedger()
	store := debate.NewMemoryStore()

	factory := func(providerName string, instance int) (provider.Provider, error) {
		return provider.NewMockProvider(providerName), nil
	}
	svc := debate.NewService(store, ledger, recorder, counter, factory, stubPersonalities{})

	cfg := &config.Config{Server: config.ServerConfig{Port: 8080}}
	return New(cfg, svc, recorder, stubPersonalities{}, AllowAllAuthenticator{DefaultUser: "u1"}, nil)
}

func doRequest(t *testing.T, s *Server, method, path string, body any, user string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		r.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, r)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreateGetListDebate(t *testing.T) {
	s := newTestServer(t)

	createBody := createDebateRequest{
		Question: "What is 2+2?", Provider: "mock", Model: "echo",
		MaxRounds: 2, Temperature: 0.5, Personalities: []string{"a", "b"}, IncludeSynthesis: false,
	}
	rec := doRequest(t, s, http.MethodPost, "/debates", createBody, "u1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}

	var created debate.Debate
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	rec = doRequest(t, s, http.MethodGet, "/debates/"+created.ID.String(), nil, "u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/debates", nil, "u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list debate.PagedList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Debates) != 1 {
		t.Fatalf("len(list.Debates) = %d, want 1", len(list.Debates))
	}

	rec = doRequest(t, s, http.MethodGet, "/debates/"+created.ID.String(), nil, "u2")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-owner get status = %d, want 404", rec.Code)
	}
}

func TestCreateDebate_ValidationError(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/debates", createDebateRequest{
		Question: "", Provider: "mock", Model: "echo", MaxRounds: 1, Personalities: []string{"a"},
	}, "u1")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestPersonalitiesEndpoints(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/personalities", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/personalities/debate", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUsageSummary(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/usage/summary", nil, "u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCancelAndDeleteRequireTerminalState(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/debates", createDebateRequest{
		Question: "Q", Provider: "mock", Model: "echo", MaxRounds: 1, Personalities: []string{"a"},
	}, "u1")
	var created debate.Debate
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doRequest(t, s, http.MethodDelete, "/debates/"+created.ID.String(), nil, "u1")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("delete-before-terminal status = %d, want 422", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/debates/"+created.ID.String()+"/cancel", nil, "u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, "/debates/"+created.ID.String(), nil, "u1")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
}
