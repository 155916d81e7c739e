package service

import (
	"context"
	"encoding/json"
	"time"

	"consultd/internal/bookings"
	"consultd/internal/docstore"
	"consultd/internal/model"
)

// MockEventBus implements EventBus for testing
type MockEventBus struct {
	events []map[string]interface{}
}

func (m *MockEventBus) PublishRequest(requestID string, event map[string]interface{}) error {
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventBus) PublishChannel(channelID string, event map[string]interface{}) error {
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventBus) PublishAgent(agentID string, event map[string]interface{}) error {
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventBus) typesSeen() []string {
	seen := make([]string, 0, len(m.events))
	for _, e := range m.events {
		seen = append(seen, e["type"].(string))
	}
	return seen
}

// FakeRequestStore keeps requests in memory with the same versioning
// contract as the real store.
type FakeRequestStore struct {
	docs map[string]model.Request
	// beforeUpdate runs just before the version check, so tests can
	// interleave a competing write.
	beforeUpdate func()
}

func NewFakeRequestStore() *FakeRequestStore {
	return &FakeRequestStore{docs: make(map[string]model.Request)}
}

func clone(r *model.Request) model.Request {
	raw, _ := json.Marshal(r)
	var out model.Request
	_ = json.Unmarshal(raw, &out)
	return out
}

func (f *FakeRequestStore) GetByID(ctx context.Context, id string) (*model.Request, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	out := clone(&doc)
	return &out, nil
}

func (f *FakeRequestStore) Add(ctx context.Context, r *model.Request) error {
	if _, ok := f.docs[r.ID]; ok {
		return docstore.ErrConflict
	}
	f.docs[r.ID] = clone(r)
	return nil
}

func (f *FakeRequestStore) UpdateVersioned(ctx context.Context, r *model.Request) error {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}
	stored, ok := f.docs[r.ID]
	if !ok || stored.Version != r.Version {
		return docstore.ErrConflict
	}
	r.Version++
	f.docs[r.ID] = clone(r)
	return nil
}

func (f *FakeRequestStore) GetByAssignedTo(ctx context.Context, agentID string) ([]model.Request, error) {
	out := make([]model.Request, 0)
	for _, d := range f.docs {
		if d.AssignedToID == agentID &&
			(d.Status == model.StatusAssigned || d.Status == model.StatusReassignRequested) {
			out = append(out, clone(&d))
		}
	}
	return out, nil
}

func (f *FakeRequestStore) GetByConversationID(ctx context.Context, conversationID string) (*model.Request, error) {
	for _, d := range f.docs {
		if d.ConversationID == conversationID {
			out := clone(&d)
			return &out, nil
		}
	}
	return nil, docstore.ErrNotFound
}

func (f *FakeRequestStore) GetFiltered(ctx context.Context, categories []string, statuses []model.Status) ([]model.Request, error) {
	match := func(needle string, hay []string) bool {
		if len(hay) == 0 {
			return true
		}
		for _, h := range hay {
			if h == needle {
				return true
			}
		}
		return false
	}
	ss := make([]string, 0, len(statuses))
	for _, s := range statuses {
		ss = append(ss, string(s))
	}
	out := make([]model.Request, 0)
	for _, d := range f.docs {
		if match(d.Category, categories) && match(string(d.Status), ss) {
			out = append(out, clone(&d))
		}
	}
	return out, nil
}

// FakeAgentStore keeps agents in memory keyed by directory id.
type FakeAgentStore struct {
	agents  map[string]model.Agent
	upserts int
}

func NewFakeAgentStore(agents ...model.Agent) *FakeAgentStore {
	f := &FakeAgentStore{agents: make(map[string]model.Agent)}
	for _, a := range agents {
		f.agents[a.DirectoryID] = a
	}
	return f
}

func (f *FakeAgentStore) GetByDirectoryID(ctx context.Context, directoryID string) (*model.Agent, error) {
	a, ok := f.agents[directoryID]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	out := a
	return &out, nil
}

func (f *FakeAgentStore) Upsert(ctx context.Context, a *model.Agent) error {
	f.agents[a.DirectoryID] = *a
	f.upserts++
	return nil
}

// FakeMappingStore serves mappings by category.
type FakeMappingStore struct {
	mappings map[string]model.ChannelMapping
}

func NewFakeMappingStore(mappings ...model.ChannelMapping) *FakeMappingStore {
	f := &FakeMappingStore{mappings: make(map[string]model.ChannelMapping)}
	for _, m := range mappings {
		f.mappings[m.Category] = m
	}
	return f
}

func (f *FakeMappingStore) GetByCategory(ctx context.Context, category string) (*model.ChannelMapping, error) {
	m, ok := f.mappings[category]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	out := m
	return &out, nil
}

// bookingCall records one call to the fake booking client.
type bookingCall struct {
	op      string
	staffID string
}

// FakeBookings scripts the booking service. rejectStaff holds staff
// ids the service turns away with a ServiceError.
type FakeBookings struct {
	staffByEmail map[string]string
	rejectStaff  map[string]bool
	resolveErr   error
	calls        []bookingCall
}

func NewFakeBookings() *FakeBookings {
	return &FakeBookings{
		staffByEmail: make(map[string]string),
		rejectStaff:  make(map[string]bool),
	}
}

func (f *FakeBookings) ResolveStaffID(ctx context.Context, businessID, principalName string) (string, error) {
	f.calls = append(f.calls, bookingCall{op: "resolve"})
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return f.staffByEmail[principalName], nil
}

func (f *FakeBookings) CreateAppointment(ctx context.Context, p bookings.AppointmentParams) (*bookings.Appointment, error) {
	f.calls = append(f.calls, bookingCall{op: "create", staffID: p.StaffID})
	if f.rejectStaff[p.StaffID] {
		return nil, &bookings.ServiceError{StatusCode: 400, Code: "staffMemberNotFound"}
	}
	return &bookings.Appointment{ID: "appt-1", JoinURL: "https://meet.example/x"}, nil
}

func (f *FakeBookings) UpdateAppointment(ctx context.Context, businessID, appointmentID, staffID string) error {
	f.calls = append(f.calls, bookingCall{op: "update", staffID: staffID})
	if f.rejectStaff[staffID] {
		return &bookings.ServiceError{StatusCode: 400, Code: "staffMemberNotFound"}
	}
	return nil
}

func (f *FakeBookings) ops() []string {
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.op)
	}
	return out
}

// FakeValidator accepts everything unless told otherwise.
type FakeValidator struct {
	err error
}

func (f *FakeValidator) ValidateConsultRequest(payload map[string]interface{}) error {
	return f.err
}

// FakeJobClient records scheduled jobs.
type FakeJobClient struct {
	reminders []string
	nudges    []string
}

func (f *FakeJobClient) ScheduleConsultReminder(requestID string, startAt time.Time) error {
	f.reminders = append(f.reminders, requestID)
	return nil
}

func (f *FakeJobClient) ScheduleUnassignedNudge(requestID string, after time.Duration) error {
	f.nudges = append(f.nudges, requestID)
	return nil
}
