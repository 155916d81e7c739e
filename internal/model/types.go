package model

import "time"

// Status represents consult request status
type Status string

const (
	StatusUnassigned        Status = "Unassigned"
	StatusAssigned          Status = "Assigned"
	StatusReassignRequested Status = "ReassignRequested"
	StatusCompleted         Status = "Completed"
)

// ActivityType identifies an entry in a request's activity log
type ActivityType string

const (
	ActivityAssigned          ActivityType = "Assigned"
	ActivityReassignRequested ActivityType = "ReassignRequested"
	ActivityCompleted         ActivityType = "Completed"
)

// IdName is an id with a display name, used for actor references
type IdName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TimeBlock is a half-open [Start, End) slot
type TimeBlock struct {
	StartDateTime time.Time `json:"startDateTime"`
	EndDateTime   time.Time `json:"endDateTime"`
}

// Activity is one append-only log entry on a request
type Activity struct {
	ID                string       `json:"id"`
	Type              ActivityType `json:"type"`
	CreatedBy         IdName       `json:"createdBy"`
	ActivityForUserID string       `json:"activityForUserId,omitempty"`
	Comment           string       `json:"comment,omitempty"`
	CreatedDateTime   time.Time    `json:"createdDateTime"`
}

// Note is free-text commentary appended to a request
type Note struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	CreatedBy       IdName    `json:"createdBy"`
	CreatedDateTime time.Time `json:"createdDateTime"`
}

// Attachment is an external artifact reference appended to a request
type Attachment struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	URI             string    `json:"uri"`
	CreatedBy       IdName    `json:"createdBy"`
	CreatedDateTime time.Time `json:"createdDateTime"`
}

// Request is a consult request and its full lifecycle record
type Request struct {
	ID         string `json:"id"`
	FriendlyID string `json:"friendlyId"`
	Status     Status `json:"status"`

	Category       string                 `json:"category"`
	Query          string                 `json:"query,omitempty"`
	CustomerName   string                 `json:"customerName,omitempty"`
	CustomerPhone  string                 `json:"customerPhone,omitempty"`
	CustomerEmail  string                 `json:"customerEmail,omitempty"`
	PreferredTimes []TimeBlock            `json:"preferredTimes,omitempty"`
	Fields         map[string]interface{} `json:"fields,omitempty"`

	// Frozen from the channel mapping at creation time.
	BookingsBusinessID string `json:"bookingsBusinessId,omitempty"`
	BookingsServiceID  string `json:"bookingsServiceId,omitempty"`

	AssignedToID      string     `json:"assignedToId,omitempty"`
	AssignedToName    string     `json:"assignedToName,omitempty"`
	AssignedTimeBlock *TimeBlock `json:"assignedTimeBlock,omitempty"`

	// Set once, on the first successful assignment.
	BookingsAppointmentID string `json:"bookingsAppointmentId,omitempty"`
	JoinURI               string `json:"joinUri,omitempty"`

	// Handle of the message posted for this request, reported back by
	// the delivery side so later notifications can update it in place.
	ConversationID string `json:"conversationId,omitempty"`
	ActivityID     string `json:"activityId,omitempty"`

	Activities  []Activity   `json:"activities,omitempty"`
	Notes       []Note       `json:"notes,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// Version guards read-modify-write updates; see docstore.RequestRepo.
	Version         int64     `json:"version"`
	CreatedDateTime time.Time `json:"createdDateTime"`
	UpdatedDateTime time.Time `json:"updatedDateTime"`
}

// Agent is a registered consultant
type Agent struct {
	ID          string    `json:"id"`
	DirectoryID string    `json:"directoryId"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Locale      string    `json:"locale,omitempty"`
	ChatID      string    `json:"chatId,omitempty"`
	ServiceURL  string    `json:"serviceUrl,omitempty"`
	// Cached booking-service staff id; may go stale and is refreshed
	// at most once per assignment attempt.
	BookingsStaffID string    `json:"bookingsStaffMemberId,omitempty"`
	CreatedDateTime time.Time `json:"createdDateTime"`
	UpdatedDateTime time.Time `json:"updatedDateTime"`
}

// Channel is a destination the notification boundary can post to
type Channel struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channelId"`
	TeamID     string    `json:"teamId"`
	TenantID   string    `json:"tenantId,omitempty"`
	Name       string    `json:"name,omitempty"`
	ServiceURL string    `json:"serviceUrl,omitempty"`
	CreatedDateTime time.Time `json:"createdDateTime"`
}

// ChannelMapping routes a request category to a channel and a booking business
type ChannelMapping struct {
	ID                 string    `json:"id"`
	ChannelID          string    `json:"channelId"`
	Category           string    `json:"category"`
	Supervisors        []IdName  `json:"supervisors,omitempty"`
	BookingsBusinessID string    `json:"bookingsBusinessId,omitempty"`
	BookingsServiceID  string    `json:"bookingsServiceId,omitempty"`
	CreatedDateTime    time.Time `json:"createdDateTime"`
	UpdatedDateTime    time.Time `json:"updatedDateTime"`
}
