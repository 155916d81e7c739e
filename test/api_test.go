package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"consultd/internal/api"
	"consultd/internal/bookings"
	"consultd/internal/docstore"
	"consultd/internal/model"
	"consultd/internal/pubsub"
	"consultd/internal/schema"
	"consultd/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestServer(t *testing.T) (*httptest.Server, *docstore.Store, func()) {
	t.Helper()

	store := setupTestStore(t)

	rdb := redis.NewClient(&redis.Options{Addr: getRedisAddr()})

	logger, _ := zap.NewDevelopment()
	bus := pubsub.New(rdb, logger)

	stub := newBookingsStub(t)
	booking := bookings.NewHTTPClient(stub.URL, "test-token", logger)

	requestRepo := docstore.NewRequestRepo(store)
	agentRepo := docstore.NewAgentRepo(store)
	channelRepo := docstore.NewChannelRepo(store)
	mappingRepo := docstore.NewMappingRepo(store)

	requestSvc := service.NewRequestService(requestRepo, agentRepo, mappingRepo, booking, schema.NewValidator(64), bus)
	agentSvc := service.NewAgentService(agentRepo)
	routingSvc := service.NewRoutingService(mappingRepo, channelRepo)

	r := chi.NewRouter()
	r.Mount("/v1", api.Routes(api.Dependencies{
		Requests: requestSvc,
		Agents:   agentSvc,
		Routing:  routingSvc,
		Hub:      nil,
		Log:      logger,
	}))

	server := httptest.NewServer(r)

	cleanup := func() {
		server.Close()
		store.Close()
		rdb.Close()
	}

	return server, store, cleanup
}

func doJSON(t *testing.T, method, url, actorID string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		req.Header.Set("X-Actor-ID", actorID)
		req.Header.Set("X-Actor-Name", "Test "+actorID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestCreateConsult(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, store, cleanup := setupTestServer(t)
	defer cleanup()
	cleanupCollections(t, store)

	seedChannel(t, store, "chan-billing", "team-1")
	seedMapping(t, store, "billing", "chan-billing")

	resp := doJSON(t, "POST", server.URL+"/v1/consults", "agent-1", map[string]interface{}{
		"category":     "billing",
		"query":        "Invoice dispute",
		"customerName": "Pat Doe",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.Request
	decodeBody(t, resp, &created)
	assert.NotEmpty(t, created.ID)
	assert.Len(t, created.FriendlyID, 6)
	assert.Equal(t, model.StatusUnassigned, created.Status)
	assert.Equal(t, "biz-test", created.BookingsBusinessID)
}

func TestCreateConsultRequiresActor(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, store, cleanup := setupTestServer(t)
	defer cleanup()
	cleanupCollections(t, store)

	resp := doJSON(t, "POST", server.URL+"/v1/consults", "", map[string]interface{}{
		"category": "billing",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateConsultRejectsUnknownFields(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, store, cleanup := setupTestServer(t)
	defer cleanup()
	cleanupCollections(t, store)

	seedChannel(t, store, "chan-billing", "team-1")
	seedMapping(t, store, "billing", "chan-billing")

	resp := doJSON(t, "POST", server.URL+"/v1/consults", "agent-1", map[string]interface{}{
		"category": "billing",
		"priority": "high",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetConsultNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	resp := doJSON(t, "GET", server.URL+"/v1/consults/nonexistent", "agent-1", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConsultLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, store, cleanup := setupTestServer(t)
	defer cleanup()
	cleanupCollections(t, store)

	seedChannel(t, store, "chan-billing", "team-1")
	seedMapping(t, store, "billing", "chan-billing")
	seedAgent(t, store, "agent-1", "Sam", "sam@example.test")
	seedAgent(t, store, "agent-2", "Lee", "lee@example.test")

	resp := doJSON(t, "POST", server.URL+"/v1/consults", "agent-1", map[string]interface{}{
		"category": "billing",
		"query":    "Refund status",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created model.Request
	decodeBody(t, resp, &created)

	// Self-assign with a slot. The stub booking service resolves the
	// agent and returns an appointment with a join link.
	resp = doJSON(t, "POST", server.URL+"/v1/consults/"+created.ID+"/assign", "agent-1", map[string]interface{}{
		"startDateTime": "2026-09-01T10:00:00Z",
		"endDateTime":   "2026-09-01T10:30:00Z",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var assigned model.Request
	decodeBody(t, resp, &assigned)
	assert.Equal(t, model.StatusAssigned, assigned.Status)
	assert.Equal(t, "agent-1", assigned.AssignedToID)
	assert.NotEmpty(t, assigned.BookingsAppointmentID)
	assert.NotEmpty(t, assigned.JoinURI)

	// Assigning an already assigned consult is rejected.
	resp = doJSON(t, "POST", server.URL+"/v1/consults/"+created.ID+"/assign", "agent-2", map[string]interface{}{
		"startDateTime": "2026-09-01T11:00:00Z",
		"endDateTime":   "2026-09-01T11:30:00Z",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, "POST", server.URL+"/v1/consults/"+created.ID+"/reassign", "agent-1", map[string]interface{}{
		"comment": "Out of my depth here",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reassigning model.Request
	decodeBody(t, resp, &reassigning)
	assert.Equal(t, model.StatusReassignRequested, reassigning.Status)

	// Anyone may pick up a consult waiting for reassignment.
	resp = doJSON(t, "POST", server.URL+"/v1/consults/"+created.ID+"/assign", "agent-2", map[string]interface{}{
		"startDateTime": "2026-09-01T12:00:00Z",
		"endDateTime":   "2026-09-01T12:30:00Z",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var picked model.Request
	decodeBody(t, resp, &picked)
	assert.Equal(t, "agent-2", picked.AssignedToID)
	assert.Equal(t, assigned.BookingsAppointmentID, picked.BookingsAppointmentID)

	resp = doJSON(t, "POST", server.URL+"/v1/consults/"+created.ID+"/notes", "agent-2", map[string]interface{}{
		"text": "Customer called back",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, "POST", server.URL+"/v1/consults/"+created.ID+"/complete", "agent-2", map[string]interface{}{
		"comment": "Resolved over the phone",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var completed model.Request
	decodeBody(t, resp, &completed)
	assert.Equal(t, model.StatusCompleted, completed.Status)

	// Completed is terminal.
	resp = doJSON(t, "POST", server.URL+"/v1/consults/"+created.ID+"/assign", "agent-1", map[string]interface{}{
		"startDateTime": "2026-09-02T10:00:00Z",
		"endDateTime":   "2026-09-02T10:30:00Z",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestIsSupervisor(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, store, cleanup := setupTestServer(t)
	defer cleanup()
	cleanupCollections(t, store)

	seedChannel(t, store, "chan-billing", "team-1")
	seedMapping(t, store, "billing", "chan-billing", model.IdName{ID: "sup-1", Name: "Supervisor"})

	resp := doJSON(t, "GET", server.URL+"/v1/consults/issupervisor?category=billing", "sup-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var answer map[string]bool
	decodeBody(t, resp, &answer)
	assert.True(t, answer["isSupervisor"])

	resp = doJSON(t, "GET", server.URL+"/v1/consults/issupervisor?category=billing", "agent-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &answer)
	assert.False(t, answer["isSupervisor"])

	resp = doJSON(t, "GET", server.URL+"/v1/consults/issupervisor", "sup-1", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "category is required")
	resp.Body.Close()
}

func TestChannelMappingAdmin(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	server, store, cleanup := setupTestServer(t)
	defer cleanup()
	cleanupCollections(t, store)

	resp := doJSON(t, "POST", server.URL+"/v1/channels", "admin-1", map[string]interface{}{
		"channelId": "chan-tax",
		"teamId":    "team-1",
		"name":      "Tax questions",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, "POST", server.URL+"/v1/channelmappings", "admin-1", map[string]interface{}{
		"channelId": "chan-tax",
		"category":  "tax",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mapping model.ChannelMapping
	decodeBody(t, resp, &mapping)
	assert.Equal(t, "tax", mapping.Category)

	// A mapping cannot point at an unregistered channel.
	resp = doJSON(t, "POST", server.URL+"/v1/channelmappings", "admin-1", map[string]interface{}{
		"channelId": "chan-ghost",
		"category":  "ghost",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, "GET", server.URL+"/v1/categories", "admin-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var categories []string
	decodeBody(t, resp, &categories)
	assert.Contains(t, categories, "tax")
}
