package bookings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// HTTPClient implements Client against the booking service's REST API.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

func NewHTTPClient(baseURL, token string, log *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

type staffMember struct {
	ID           string `json:"id"`
	EmailAddress string `json:"emailAddress"`
}

type staffListResponse struct {
	Value []staffMember `json:"value"`
}

func (c *HTTPClient) ResolveStaffID(ctx context.Context, businessID, principalName string) (string, error) {
	endpoint := fmt.Sprintf("%s/businesses/%s/staffMembers?email=%s",
		c.baseURL, url.PathEscape(businessID), url.QueryEscape(principalName))

	var list staffListResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &list); err != nil {
		return "", err
	}
	// A principal must resolve unambiguously. Zero or several matches
	// mean the caller cannot be scheduled under this business.
	if len(list.Value) != 1 {
		c.log.Warn("staff lookup did not resolve to one member",
			zap.String("business", businessID),
			zap.Int("matches", len(list.Value)))
		return "", nil
	}
	return list.Value[0].ID, nil
}

type appointmentRequest struct {
	ServiceID     string   `json:"serviceId"`
	StaffIDs      []string `json:"staffMemberIds"`
	Start         string   `json:"startDateTime"`
	End           string   `json:"endDateTime"`
	CustomerName  string   `json:"customerName,omitempty"`
	CustomerEmail string   `json:"customerEmailAddress,omitempty"`
	CustomerPhone string   `json:"customerPhone,omitempty"`
	Subject       string   `json:"serviceNotes,omitempty"`
	IsOnline      bool     `json:"isOnlineMeeting"`
}

type appointmentResponse struct {
	ID            string `json:"id"`
	OnlineMeeting string `json:"onlineMeetingUrl"`
}

func (c *HTTPClient) CreateAppointment(ctx context.Context, p AppointmentParams) (*Appointment, error) {
	endpoint := fmt.Sprintf("%s/businesses/%s/appointments", c.baseURL, url.PathEscape(p.BusinessID))
	body := appointmentRequest{
		ServiceID:     p.ServiceID,
		StaffIDs:      []string{p.StaffID},
		Start:         p.Start.UTC().Format(time.RFC3339),
		End:           p.End.UTC().Format(time.RFC3339),
		CustomerName:  p.CustomerName,
		CustomerEmail: p.CustomerEmail,
		CustomerPhone: p.CustomerPhone,
		Subject:       p.Subject,
		IsOnline:      true,
	}
	var resp appointmentResponse
	if err := c.do(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}
	return &Appointment{ID: resp.ID, JoinURL: resp.OnlineMeeting}, nil
}

func (c *HTTPClient) UpdateAppointment(ctx context.Context, businessID, appointmentID, staffID string) error {
	endpoint := fmt.Sprintf("%s/businesses/%s/appointments/%s",
		c.baseURL, url.PathEscape(businessID), url.PathEscape(appointmentID))
	body := map[string]any{"staffMemberIds": []string{staffID}}
	return c.do(ctx, http.MethodPatch, endpoint, body, nil)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("booking service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env errorEnvelope
		raw, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(raw, &env)
		return &ServiceError{
			StatusCode: resp.StatusCode,
			Code:       env.Error.Code,
			Message:    env.Error.Message,
		}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode booking service response: %w", err)
		}
	}
	return nil
}
