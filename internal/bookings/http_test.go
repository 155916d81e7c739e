package bookings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "test-token", zap.NewNop())
}

func TestResolveStaffIDSingleMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "sam@example.com", r.URL.Query().Get("email"))
		json.NewEncoder(w).Encode(staffListResponse{Value: []staffMember{
			{ID: "staff-42", EmailAddress: "sam@example.com"},
		}})
	})

	id, err := c.ResolveStaffID(context.Background(), "biz-1", "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, "staff-42", id)
}

func TestResolveStaffIDAmbiguousIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(staffListResponse{Value: []staffMember{
			{ID: "staff-1"}, {ID: "staff-2"},
		}})
	})

	id, err := c.ResolveStaffID(context.Background(), "biz-1", "sam@example.com")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestCreateAppointment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body appointmentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"staff-42"}, body.StaffIDs)
		assert.True(t, body.IsOnline)
		json.NewEncoder(w).Encode(appointmentResponse{
			ID:            "appt-7",
			OnlineMeeting: "https://meet.example/abc",
		})
	})

	appt, err := c.CreateAppointment(context.Background(), AppointmentParams{
		BusinessID: "biz-1",
		ServiceID:  "svc-1",
		StaffID:    "staff-42",
		Start:      time.Now(),
		End:        time.Now().Add(30 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, "appt-7", appt.ID)
	assert.Equal(t, "https://meet.example/abc", appt.JoinURL)
}

func TestRejectionIsServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"staffMemberNotFound","message":"unknown staff member"}}`))
	})

	err := c.UpdateAppointment(context.Background(), "biz-1", "appt-7", "staff-stale")
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
	assert.Equal(t, "staffMemberNotFound", svcErr.Code)
}
