package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domainaudit "github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
	domainprivacy "github.com/davidleathers/healthcare-security-pipeline/internal/domain/privacy"
	"github.com/davidleathers/healthcare-security-pipeline/internal/infrastructure/config"
	auditsvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/audit"
	privacysvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/privacy"
	risksvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/risk"
	tokensvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/token"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// In-memory repositories backing the wired services under test.

type memEventStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*domainaudit.Event
}

func newMemEventStore() *memEventStore {
	return &memEventStore{events: make(map[uuid.UUID]*domainaudit.Event)}
}

func (s *memEventStore) Insert(ctx context.Context, event *domainaudit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	return nil
}

func (s *memEventStore) GetByID(ctx context.Context, id uuid.UUID) (*domainaudit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return nil, errors.NewNotFoundError("audit event")
	}
	return event, nil
}

func (s *memEventStore) Query(ctx context.Context, filter domainaudit.EventFilter) ([]*domainaudit.Event, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domainaudit.Event, 0, len(s.events))
	for _, event := range s.events {
		out = append(out, event)
	}
	return out, len(out), nil
}

func (s *memEventStore) UpdateInvestigationStatus(ctx context.Context, eventID uuid.UUID, status domainaudit.InvestigationStatus, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event, ok := s.events[eventID]; ok {
		event.InvestigationStatus = status
		event.InvestigationNotes = notes
	}
	return nil
}

func (s *memEventStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type memInvStore struct {
	mu             sync.Mutex
	investigations map[uuid.UUID]*domainaudit.Investigation
}

func newMemInvStore() *memInvStore {
	return &memInvStore{investigations: make(map[uuid.UUID]*domainaudit.Investigation)}
}

func (s *memInvStore) Insert(ctx context.Context, inv *domainaudit.Investigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.investigations[inv.ID] = inv
	return nil
}

func (s *memInvStore) Update(ctx context.Context, inv *domainaudit.Investigation) error {
	return s.Insert(ctx, inv)
}

func (s *memInvStore) GetByID(ctx context.Context, id uuid.UUID) (*domainaudit.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.investigations[id]
	if !ok {
		return nil, errors.NewNotFoundError("investigation")
	}
	return inv, nil
}

func (s *memInvStore) Query(ctx context.Context, filter domainaudit.InvestigationFilter) ([]*domainaudit.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domainaudit.Investigation, 0, len(s.investigations))
	for _, inv := range s.investigations {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

type memMappingStore struct {
	mu       sync.Mutex
	mappings map[string]*domainprivacy.PseudonymMapping
}

func newMemMappingStore() *memMappingStore {
	return &memMappingStore{mappings: make(map[string]*domainprivacy.PseudonymMapping)}
}

func (s *memMappingStore) Insert(ctx context.Context, mapping *domainprivacy.PseudonymMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[mapping.Purpose+"|"+mapping.Pseudonym] = mapping
	return nil
}

func (s *memMappingStore) GetByPseudonym(ctx context.Context, pseudonym, purpose string) (*domainprivacy.PseudonymMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mappings[purpose+"|"+pseudonym], nil
}

type allowAllAuthorizer struct{}

func (allowAllAuthorizer) AuthorizeReversal(ctx context.Context, auth privacysvc.Authorization) bool {
	return auth.Grant != ""
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(ctx context.Context, key string) (bool, error) { return true, nil }

type apiFixture struct {
	server *httptest.Server
	tokens tokensvc.Service
	risk   risksvc.Service
	trail  *auditsvc.Trail
}

func newTestAPI(t *testing.T) *apiFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	tokens, err := tokensvc.NewManager(tokensvc.Config{
		SigningSecret: testSecret,
		Issuer:        "secpipeline",
		Audience:      []string{"secpipeline-api"},
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}, logger)
	require.NoError(t, err)

	trail, err := auditsvc.NewTrail(context.Background(), auditsvc.DefaultConfig(), logger, newMemEventStore(), newMemInvStore())
	require.NoError(t, err)
	t.Cleanup(trail.Stop)

	privacy, err := privacysvc.NewEngine(privacysvc.Config{
		PseudonymSecret:  testSecret,
		PBKDF2Iterations: 100000,
	}, logger, newMemMappingStore(), allowAllAuthorizer{}, trail)
	require.NoError(t, err)

	engine, err := risksvc.NewEngine(risksvc.DefaultConfig(), logger, tokens, nil, allowAllLimiter{}, nil, trail)
	require.NoError(t, err)

	handler := NewHandler(logger, tokens, engine, trail, privacy)
	srv := NewServer(&config.ServerConfig{Port: 8080, ShutdownTimeout: time.Second}, logger, handler)

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)

	return &apiFixture{server: ts, tokens: tokens, risk: engine, trail: trail}
}

func (f *apiFixture) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func (f *apiFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func TestHealthAndCorrelationID(t *testing.T) {
	fix := newTestAPI(t)

	resp := fix.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])

	t.Run("client correlation ID is echoed", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, fix.server.URL+"/health", nil)
		require.NoError(t, err)
		req.Header.Set("X-Correlation-ID", "corr-42")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "corr-42", resp.Header.Get("X-Correlation-ID"))
	})
}

func TestTokenLifecycleOverHTTP(t *testing.T) {
	fix := newTestAPI(t)

	resp := fix.post(t, "/api/v1/tokens", map[string]interface{}{
		"subject":       "dr-moraes",
		"role":          "physician",
		"consent_level": "full",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var pair struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
	}
	decodeJSON(t, resp, &pair)
	assert.Equal(t, "Bearer", pair.TokenType)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	t.Run("verify", func(t *testing.T) {
		resp := fix.post(t, "/api/v1/tokens/verify", map[string]string{"token": pair.AccessToken})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var verified struct {
			Claims struct {
				Subject string `json:"sub"`
				Role    string `json:"role"`
			} `json:"claims"`
		}
		decodeJSON(t, resp, &verified)
		assert.Equal(t, "dr-moraes", verified.Claims.Subject)
		assert.Equal(t, "physician", verified.Claims.Role)
	})

	t.Run("refresh rotates", func(t *testing.T) {
		resp := fix.post(t, "/api/v1/tokens/refresh", map[string]string{"token": pair.RefreshToken})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var rotated struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		}
		decodeJSON(t, resp, &rotated)
		assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

		// The rotated-out refresh token never validates again.
		reuse := fix.post(t, "/api/v1/tokens/refresh", map[string]string{"token": pair.RefreshToken})
		defer reuse.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, reuse.StatusCode)
	})

	t.Run("revoke", func(t *testing.T) {
		resp := fix.post(t, "/api/v1/tokens/revoke", map[string]string{"token": pair.AccessToken})
		defer resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		verify := fix.post(t, "/api/v1/tokens/verify", map[string]string{"token": pair.AccessToken})
		require.Equal(t, http.StatusUnauthorized, verify.StatusCode)

		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		decodeJSON(t, verify, &body)
		assert.Equal(t, errors.CodeRevokedToken, body.Error.Code)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		resp := fix.post(t, "/api/v1/tokens", map[string]string{"subjekt": "typo"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		decodeJSON(t, resp, &body)
		assert.Equal(t, "INVALID_BODY", body.Error.Code)
	})

	t.Run("lifecycle lands on the audit trail", func(t *testing.T) {
		waitForTrail(t, fix.trail)

		typed := func(types ...domainaudit.EventType) []*domainaudit.Event {
			page, err := fix.trail.GetEvents(context.Background(), domainaudit.EventFilter{Types: types})
			require.NoError(t, err)
			return page.Events
		}

		issued := typed(domainaudit.EventTokenIssued)
		require.Len(t, issued, 1)
		assert.Equal(t, "dr-moraes", issued[0].ActorID)
		assert.Equal(t, domainaudit.CategorySystem, issued[0].Category)

		assert.Len(t, typed(domainaudit.EventTokenRefreshed), 1)
		assert.Len(t, typed(domainaudit.EventTokenRevoked), 1)
		assert.Len(t, typed(domainaudit.EventAuthSuccess), 1)

		// The replayed refresh token and the post-revocation verify
		// both count as authentication failures.
		failures := typed(domainaudit.EventAuthFailure)
		require.Len(t, failures, 2)
		for _, f := range failures {
			assert.Equal(t, domainaudit.CategorySecurity, f.Category)
			assert.Equal(t, domainaudit.OutcomeFailure, f.Outcome)
		}
	})
}

func waitForTrail(t *testing.T, trail *auditsvc.Trail) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for trail.PendingWrites() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("audit writer did not drain in time")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(5 * time.Millisecond)
}

func TestEvaluateEndpoint(t *testing.T) {
	fix := newTestAPI(t)

	issue := fix.post(t, "/api/v1/tokens", map[string]interface{}{
		"subject":       "dr-moraes",
		"role":          "physician",
		"consent_level": "full",
	})
	var pair struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, issue, &pair)

	t.Run("clean request is allowed", func(t *testing.T) {
		resp := fix.post(t, "/api/v1/evaluate", map[string]interface{}{
			"method":             "GET",
			"path":               "/appointments",
			"client_ip":          "198.51.100.7",
			"user_agent":         "Mozilla/5.0",
			"bearer_token":       pair.AccessToken,
			"device_fingerprint": "fp-9912",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Security-Evaluation"))
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

		var decision struct {
			Allowed bool `json:"allowed"`
			Context struct {
				RiskScore   int    `json:"risk_score"`
				ThreatLevel string `json:"threat_level"`
			} `json:"context"`
		}
		decodeJSON(t, resp, &decision)
		assert.True(t, decision.Allowed)
		assert.Equal(t, "low", decision.Context.ThreatLevel)
	})

	t.Run("hostile request is blocked", func(t *testing.T) {
		resp := fix.post(t, "/api/v1/evaluate", map[string]interface{}{
			"method":       "GET",
			"path":         "/records",
			"client_ip":    "198.51.100.7",
			"user_agent":   "sqlmap/1.7",
			"query_params": "id=1+union+select+password+from+users",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var decision struct {
			Allowed    bool `json:"allowed"`
			StatusCode int  `json:"status_code"`
		}
		decodeJSON(t, resp, &decision)
		assert.False(t, decision.Allowed)
		assert.Equal(t, http.StatusForbidden, decision.StatusCode)
	})
}

func TestAuditEndpoints(t *testing.T) {
	fix := newTestAPI(t)

	// Each evaluation produces one audit event.
	for i := 0; i < 3; i++ {
		resp := fix.post(t, "/api/v1/evaluate", map[string]interface{}{
			"method":    "GET",
			"path":      fmt.Sprintf("/appointments/%d", i),
			"client_ip": "198.51.100.7",
			"tenant_id": "clinic-1",
		})
		resp.Body.Close()
	}

	var page struct {
		Events []struct {
			ID        string `json:"id"`
			EventType string `json:"event_type"`
			TenantID  string `json:"tenant_id"`
		} `json:"events"`
		Total int `json:"total"`
	}
	resp := fix.get(t, "/api/v1/audit/events?limit=10&tenant_id=clinic-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &page)
	require.Equal(t, 3, page.Total)
	assert.Equal(t, "security.request_evaluated", page.Events[0].EventType)

	t.Run("analytics", func(t *testing.T) {
		resp := fix.get(t, "/api/v1/audit/analytics")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var analytics struct {
			TotalEvents int64 `json:"total_events"`
		}
		decodeJSON(t, resp, &analytics)
		assert.Equal(t, int64(3), analytics.TotalEvents)
	})

	t.Run("invalid filter", func(t *testing.T) {
		resp := fix.get(t, "/api/v1/audit/events?from=yesterday")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("investigation workflow", func(t *testing.T) {
		create := fix.post(t, "/api/v1/audit/investigations", map[string]string{
			"event_id":     page.Events[0].ID,
			"requested_by": "auditor-1",
			"reason":       "spot check",
		})
		require.Equal(t, http.StatusCreated, create.StatusCode)

		var inv struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		decodeJSON(t, create, &inv)
		assert.Equal(t, "pending", inv.Status)

		req, err := http.NewRequest(http.MethodPatch,
			fix.server.URL+"/api/v1/audit/investigations/"+inv.ID,
			bytes.NewReader([]byte(`{"assigned_to":"auditor-2"}`)))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		patch, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, patch.StatusCode)

		var updated struct {
			Status     string `json:"status"`
			AssignedTo string `json:"assigned_to"`
		}
		decodeJSON(t, patch, &updated)
		assert.Equal(t, "in_progress", updated.Status)
		assert.Equal(t, "auditor-2", updated.AssignedTo)

		list := fix.get(t, "/api/v1/audit/investigations?status=in_progress")
		require.Equal(t, http.StatusOK, list.StatusCode)

		var listing struct {
			Count int `json:"count"`
		}
		decodeJSON(t, list, &listing)
		assert.Equal(t, 1, listing.Count)
	})

	t.Run("investigation for unknown event", func(t *testing.T) {
		resp := fix.post(t, "/api/v1/audit/investigations", map[string]string{
			"event_id":     uuid.NewString(),
			"requested_by": "auditor-1",
			"reason":       "spot check",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestPrivacyEndpoints(t *testing.T) {
	fix := newTestAPI(t)

	t.Run("anonymize", func(t *testing.T) {
		records := []map[string]interface{}{
			{"age": 34, "city": "Lisbon", "diagnosis": "flu"},
			{"age": 36, "city": "Lisbon", "diagnosis": "asthma"},
			{"age": 35, "city": "Lisbon", "diagnosis": "migraine"},
			{"age": 61, "city": "Porto", "diagnosis": "flu"},
		}
		resp := fix.post(t, "/api/v1/privacy/anonymize", map[string]interface{}{
			"records":           records,
			"quasi_identifiers": []string{"city"},
			"k":                 2,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var dataset struct {
			Records  []map[string]interface{} `json:"records"`
			Metadata struct {
				SuppressedCount int `json:"suppressed_count"`
				KAnonymity      int `json:"k_anonymity"`
			} `json:"metadata"`
		}
		decodeJSON(t, resp, &dataset)
		// The single Porto record cannot satisfy k=2.
		assert.Len(t, dataset.Records, 3)
		assert.Equal(t, 1, dataset.Metadata.SuppressedCount)
		assert.Equal(t, 3, dataset.Metadata.KAnonymity)
	})

	t.Run("generalize", func(t *testing.T) {
		resp := fix.post(t, "/api/v1/privacy/generalize", map[string]interface{}{
			"records": []map[string]interface{}{
				{"age": 37, "admitted": "2024-03-17"},
			},
			"rules": []map[string]interface{}{
				{"field": "age", "kind": "age", "bucket_width": 10},
				{"field": "admitted", "kind": "date", "granularity": "month"},
			},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Records []map[string]interface{} `json:"records"`
		}
		decodeJSON(t, resp, &body)
		require.Len(t, body.Records, 1)
		assert.Equal(t, "30-39", body.Records[0]["age"])
		assert.Equal(t, "2024-03-01", body.Records[0]["admitted"])
	})

	t.Run("noise", func(t *testing.T) {
		resp := fix.post(t, "/api/v1/privacy/noise", map[string]interface{}{
			"value":       1000.0,
			"epsilon":     50.0,
			"sensitivity": 1.0,
			"mechanism":   "laplace",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]float64
		decodeJSON(t, resp, &body)
		assert.InDelta(t, 1000.0, body["value"], 10.0)

		bad := fix.post(t, "/api/v1/privacy/noise", map[string]interface{}{
			"value": 1.0, "epsilon": 0.0, "sensitivity": 1.0, "mechanism": "laplace",
		})
		defer bad.Body.Close()
		assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	})

	t.Run("pseudonym round trip", func(t *testing.T) {
		create := fix.post(t, "/api/v1/privacy/pseudonyms", map[string]interface{}{
			"identifier": "patient-7001",
			"purpose":    "research",
			"reversible": true,
		})
		require.Equal(t, http.StatusCreated, create.StatusCode)

		var pseudonym struct {
			Pseudonym  string `json:"pseudonym"`
			Reversible bool   `json:"reversible"`
		}
		decodeJSON(t, create, &pseudonym)
		assert.True(t, pseudonym.Reversible)

		reverse := fix.post(t, "/api/v1/privacy/pseudonyms/reverse", map[string]interface{}{
			"pseudonym": pseudonym.Pseudonym,
			"purpose":   "research",
			"actor_id":  "auditor-1",
			"grant":     "grant-77",
		})
		require.Equal(t, http.StatusOK, reverse.StatusCode)

		var body map[string]string
		decodeJSON(t, reverse, &body)
		assert.Equal(t, "patient-7001", body["identifier"])
	})

	t.Run("unauthorized reversal", func(t *testing.T) {
		create := fix.post(t, "/api/v1/privacy/pseudonyms", map[string]interface{}{
			"identifier": "patient-7002",
			"purpose":    "research",
			"reversible": true,
		})
		var pseudonym struct {
			Pseudonym string `json:"pseudonym"`
		}
		decodeJSON(t, create, &pseudonym)

		// No grant: the authorizer denies and the engine fails closed.
		resp := fix.post(t, "/api/v1/privacy/pseudonyms/reverse", map[string]interface{}{
			"pseudonym": pseudonym.Pseudonym,
			"purpose":   "research",
			"actor_id":  "auditor-1",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestWithEvaluationMiddleware(t *testing.T) {
	fix := newTestAPI(t)

	protected := WithEvaluation(fix.risk, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "reached")
	}))
	ts := httptest.NewServer(protected)
	defer ts.Close()

	issue := fix.post(t, "/api/v1/tokens", map[string]interface{}{
		"subject":       "dr-moraes",
		"role":          "physician",
		"consent_level": "full",
	})
	var pair struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, issue, &pair)

	t.Run("clean request reaches the handler", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/appointments", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		req.Header.Set("X-Device-Fingerprint", "fp-9912")
		req.Header.Set("User-Agent", "Mozilla/5.0")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "reached", string(body))
		assert.NotEmpty(t, resp.Header.Get("X-Security-Evaluation"))
	})

	t.Run("hostile request never reaches the handler", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet,
			ts.URL+"/records?id=1+union+select+password+from+users", nil)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "sqlmap/1.7")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "REQUEST_BLOCKED")
	})
}
