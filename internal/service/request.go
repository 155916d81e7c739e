package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"consultd/internal/bookings"
	"consultd/internal/docstore"
	"consultd/internal/model"
	"consultd/internal/storage"

	"github.com/oklog/ulid/v2"
)

// Stores are the narrow persistence surfaces the service needs, so
// tests can swap in fakes.
type RequestStore interface {
	GetByID(ctx context.Context, id string) (*model.Request, error)
	Add(ctx context.Context, r *model.Request) error
	UpdateVersioned(ctx context.Context, r *model.Request) error
	GetByAssignedTo(ctx context.Context, agentID string) ([]model.Request, error)
	GetByConversationID(ctx context.Context, conversationID string) (*model.Request, error)
	GetFiltered(ctx context.Context, categories []string, statuses []model.Status) ([]model.Request, error)
}

type AgentStore interface {
	GetByDirectoryID(ctx context.Context, directoryID string) (*model.Agent, error)
	Upsert(ctx context.Context, a *model.Agent) error
}

type MappingStore interface {
	GetByCategory(ctx context.Context, category string) (*model.ChannelMapping, error)
}

type EventBus interface {
	PublishRequest(requestID string, event map[string]interface{}) error
	PublishChannel(channelID string, event map[string]interface{}) error
	PublishAgent(agentID string, event map[string]interface{}) error
}

type PayloadValidator interface {
	ValidateConsultRequest(payload map[string]interface{}) error
}

type RequestService struct {
	requests  RequestStore
	agents    AgentStore
	mappings  MappingStore
	bookings  bookings.Client
	validator PayloadValidator
	bus       EventBus
	jobClient JobClient
}

func NewRequestService(requests RequestStore, agents AgentStore, mappings MappingStore, booking bookings.Client, validator PayloadValidator, bus EventBus) *RequestService {
	return &RequestService{
		requests:  requests,
		agents:    agents,
		mappings:  mappings,
		bookings:  booking,
		validator: validator,
		bus:       bus,
	}
}

// SetJobClient sets the job client for scheduling background jobs
func (s *RequestService) SetJobClient(client JobClient) {
	s.jobClient = client
}

// nudgeAfter is how long a consult may sit unassigned before the
// channel gets a reminder.
const nudgeAfter = time.Hour

type CreateRequestInput struct {
	Category       string                 `json:"category"`
	Query          string                 `json:"query,omitempty"`
	CustomerName   string                 `json:"customerName,omitempty"`
	CustomerPhone  string                 `json:"customerPhone,omitempty"`
	CustomerEmail  string                 `json:"customerEmail,omitempty"`
	PreferredTimes []model.TimeBlock      `json:"preferredTimes,omitempty"`
	Fields         map[string]interface{} `json:"fields,omitempty"`
}

// Create validates an untrusted payload, routes it through the
// category's channel mapping, and persists a new unassigned consult.
func (s *RequestService) Create(ctx context.Context, payload map[string]interface{}) (*model.Request, error) {
	if err := s.validator.ValidateConsultRequest(payload); err != nil {
		return nil, validationErr("The consult request payload is invalid.", err)
	}

	var input CreateRequestInput
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, validationErr("The consult request payload is invalid.", err)
	}

	mapping, err := s.mappings.GetByCategory(ctx, input.Category)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFoundErr("No channel is configured for this category.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel mapping: %w", err)
	}

	now := time.Now().UTC()
	req := &model.Request{
		ID:             ulid.Make().String(),
		FriendlyID:     newFriendlyID(),
		Status:         model.StatusUnassigned,
		Category:       input.Category,
		Query:          input.Query,
		CustomerName:   input.CustomerName,
		CustomerPhone:  input.CustomerPhone,
		CustomerEmail:  input.CustomerEmail,
		PreferredTimes: input.PreferredTimes,
		Fields:         input.Fields,
		// Frozen now so later mapping edits never reroute an existing
		// consult's appointments.
		BookingsBusinessID: mapping.BookingsBusinessID,
		BookingsServiceID:  mapping.BookingsServiceID,
		CreatedDateTime:    now,
		UpdatedDateTime:    now,
	}

	if err := s.requests.Add(ctx, req); err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return nil, conflictErr("A consult with this id already exists.")
		}
		return nil, fmt.Errorf("failed to create consult: %w", err)
	}

	s.notify(ctx, "created", req)

	if s.jobClient != nil {
		_ = s.jobClient.ScheduleUnassignedNudge(req.ID, nudgeAfter)
	}

	return req, nil
}

type AssignInput struct {
	RequestID    string
	AssigneeID   string // directory id; empty means the actor assigns themselves
	AssigneeName string
	Slot         model.TimeBlock
	Comment      string
}

// Assign moves a consult to an agent, reconciling the assignment with
// the booking service. A cached staff id that the booking service
// rejects is refreshed exactly once; a second rejection fails the
// whole operation with nothing persisted.
func (s *RequestService) Assign(ctx context.Context, actor model.IdName, in AssignInput) (*model.Request, error) {
	req, err := s.loadRequest(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if !req.CanAssign() {
		return nil, invalidStateErr("The consult is already assigned.")
	}

	assignee := actor
	if in.AssigneeID != "" && in.AssigneeID != actor.ID {
		assignee = model.IdName{ID: in.AssigneeID, Name: in.AssigneeName}
		ok, err := s.IsSupervisor(ctx, req.Category, actor.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, unauthorizedErr("Only a supervisor may assign this consult to someone else.")
		}
	}

	agent, err := s.agents.GetByDirectoryID(ctx, assignee.ID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFoundErr("The assignee is not a registered agent.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}
	if assignee.Name == "" {
		assignee.Name = agent.Name
	}

	staffID, appt, err := s.reconcileBooking(ctx, req, agent, in.Slot)
	if err != nil {
		return nil, err
	}

	if agent.BookingsStaffID != staffID {
		agent.BookingsStaffID = staffID
		agent.UpdatedDateTime = time.Now().UTC()
		if err := s.agents.Upsert(ctx, agent); err != nil {
			return nil, fmt.Errorf("failed to persist staff id: %w", err)
		}
	}

	now := time.Now().UTC()
	// Appointment id and join link are written once, on the consult's
	// first assignment. Reassignments move the same appointment.
	if appt != nil {
		req.BookingsAppointmentID = appt.ID
		req.JoinURI = appt.JoinURL
	}
	req.ApplyAssign(assignee, actor, in.Slot, in.Comment, ulid.Make().String(), now)

	if err := s.update(ctx, req); err != nil {
		return nil, err
	}

	s.notify(ctx, "assigned", req)

	if s.jobClient != nil {
		_ = s.jobClient.ScheduleConsultReminder(req.ID, in.Slot.StartDateTime)
	}

	return req, nil
}

// reconcileBooking resolves the agent's staff id and books or moves
// the appointment. The returned appointment is non-nil only when a new
// one was created.
func (s *RequestService) reconcileBooking(ctx context.Context, req *model.Request, agent *model.Agent, slot model.TimeBlock) (string, *bookings.Appointment, error) {
	staffID := agent.BookingsStaffID
	refreshed := false

	for {
		if staffID == "" {
			id, err := s.bookings.ResolveStaffID(ctx, req.BookingsBusinessID, agent.Email)
			if err != nil || id == "" {
				return "", nil, externalErr("The assignee is not a valid staff member in the booking service.", err)
			}
			staffID = id
			refreshed = true
		}

		var appt *bookings.Appointment
		var err error
		if req.Status == model.StatusUnassigned {
			appt, err = s.bookings.CreateAppointment(ctx, bookings.AppointmentParams{
				BusinessID:    req.BookingsBusinessID,
				ServiceID:     req.BookingsServiceID,
				StaffID:       staffID,
				Start:         slot.StartDateTime,
				End:           slot.EndDateTime,
				CustomerName:  req.CustomerName,
				CustomerEmail: req.CustomerEmail,
				CustomerPhone: req.CustomerPhone,
				Subject:       req.Query,
			})
		} else {
			err = s.bookings.UpdateAppointment(ctx, req.BookingsBusinessID, req.BookingsAppointmentID, staffID)
		}
		if err == nil {
			return staffID, appt, nil
		}

		// A service-level rejection of a cached id means the id has
		// likely gone stale. Clear it and resolve afresh, once.
		var svcErr *bookings.ServiceError
		if errors.As(err, &svcErr) && !refreshed {
			staffID = ""
			continue
		}
		return "", nil, externalErr("Could not schedule the appointment with the booking service.", err)
	}
}

// RequestReassign asks for the current assignment to be handed off.
func (s *RequestService) RequestReassign(ctx context.Context, actor model.IdName, requestID, comment string) (*model.Request, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.CanRequestReassign() {
		return nil, invalidStateErr("The consult cannot be reassigned.")
	}

	req.ApplyReassignRequest(actor, comment, ulid.Make().String(), time.Now().UTC())
	if err := s.update(ctx, req); err != nil {
		return nil, err
	}

	s.notify(ctx, "reassign-requested", req)
	return req, nil
}

// Complete closes the consult out.
func (s *RequestService) Complete(ctx context.Context, actor model.IdName, requestID, comment string) (*model.Request, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.CanComplete() {
		return nil, invalidStateErr("The consult cannot be completed.")
	}

	req.ApplyComplete(actor, comment, ulid.Make().String(), time.Now().UTC())
	if err := s.update(ctx, req); err != nil {
		return nil, err
	}

	s.notify(ctx, "completed", req)
	return req, nil
}

// AddNote appends a note. Allowed in every state.
func (s *RequestService) AddNote(ctx context.Context, actor model.IdName, requestID, text string) (*model.Request, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	req.AddNote(ulid.Make().String(), text, actor, time.Now().UTC())
	if err := s.update(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// AddAttachment appends an attachment reference. Allowed in every state.
func (s *RequestService) AddAttachment(ctx context.Context, actor model.IdName, requestID, title, uri string) (*model.Request, error) {
	if err := storage.ValidateAttachment(title, uri); err != nil {
		return nil, validationErr("The attachment is invalid.", err)
	}
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	req.AddAttachment(ulid.Make().String(), title, uri, actor, time.Now().UTC())
	if err := s.update(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// AttachConversation records the delivery-side message handle so later
// notifications can update the posted message in place.
func (s *RequestService) AttachConversation(ctx context.Context, requestID, conversationID, activityID string) (*model.Request, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	req.ConversationID = conversationID
	req.ActivityID = activityID
	req.UpdatedDateTime = time.Now().UTC()
	if err := s.update(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *RequestService) Get(ctx context.Context, requestID string) (*model.Request, error) {
	return s.loadRequest(ctx, requestID)
}

func (s *RequestService) ListByAssignee(ctx context.Context, agentID string) ([]model.Request, error) {
	return s.requests.GetByAssignedTo(ctx, agentID)
}

func (s *RequestService) GetByConversation(ctx context.Context, conversationID string) (*model.Request, error) {
	req, err := s.requests.GetByConversationID(ctx, conversationID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFoundErr("No consult is linked to this conversation.")
	}
	return req, err
}

func (s *RequestService) ListFiltered(ctx context.Context, categories []string, statuses []model.Status) ([]model.Request, error) {
	return s.requests.GetFiltered(ctx, categories, statuses)
}

// IsSupervisor reports whether a user may assign consults of a
// category to others. An empty supervisor list opens the category up
// to everyone.
func (s *RequestService) IsSupervisor(ctx context.Context, category, userID string) (bool, error) {
	mapping, err := s.mappings.GetByCategory(ctx, category)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, notFoundErr("No channel is configured for this category.")
	}
	if err != nil {
		return false, fmt.Errorf("failed to resolve channel mapping: %w", err)
	}
	if len(mapping.Supervisors) == 0 {
		return true, nil
	}
	for _, sup := range mapping.Supervisors {
		if sup.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *RequestService) loadRequest(ctx context.Context, id string) (*model.Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFoundErr("The consult does not exist.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load consult: %w", err)
	}
	return req, nil
}

func (s *RequestService) update(ctx context.Context, req *model.Request) error {
	err := s.requests.UpdateVersioned(ctx, req)
	if errors.Is(err, docstore.ErrConflict) {
		return conflictErr("The consult was changed by someone else. Reload and try again.")
	}
	if err != nil {
		return fmt.Errorf("failed to persist consult: %w", err)
	}
	return nil
}

// notify hands the updated consult to the notification boundary. The
// core does not render or deliver messages; subscribers do.
func (s *RequestService) notify(ctx context.Context, op string, req *model.Request) {
	event := map[string]interface{}{
		"type":       "consult." + op,
		"requestId":  req.ID,
		"friendlyId": req.FriendlyID,
		"status":     string(req.Status),
		"category":   req.Category,
	}
	if req.ConversationID != "" {
		event["conversationId"] = req.ConversationID
		event["activityId"] = req.ActivityID
	}
	_ = s.bus.PublishRequest(req.ID, event)

	if mapping, err := s.mappings.GetByCategory(ctx, req.Category); err == nil {
		_ = s.bus.PublishChannel(mapping.ChannelID, event)
	}

	if req.AssignedToID != "" {
		personal := map[string]interface{}{
			"type":       "consult." + op,
			"requestId":  req.ID,
			"friendlyId": req.FriendlyID,
			"status":     string(req.Status),
		}
		if agent, err := s.agents.GetByDirectoryID(ctx, req.AssignedToID); err == nil {
			personal["locale"] = agent.Locale
		}
		_ = s.bus.PublishAgent(req.AssignedToID, personal)
	}
}

// newFriendlyID returns the short code agents quote over the phone.
// Not unique, just memorable.
func newFriendlyID() string {
	return fmt.Sprintf("%06d", rand.Intn(1000000))
}
