// Package bookings talks to the external booking service that owns
// staff directories and appointment scheduling.
package bookings

import (
	"context"
	"fmt"
	"time"
)

// ServiceError is a rejection by the booking service itself, as
// opposed to a transport failure. When appointment scheduling fails
// with a ServiceError the cached staff id is treated as stale.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("booking service rejected request (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// AppointmentParams describes the appointment to create for an
// assignment.
type AppointmentParams struct {
	BusinessID    string
	ServiceID     string
	StaffID       string
	Start         time.Time
	End           time.Time
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Subject       string
}

// Appointment is the scheduled result handed back to the caller.
type Appointment struct {
	ID      string
	JoinURL string
}

// Client is the booking-service surface the assignment flow needs.
type Client interface {
	// ResolveStaffID maps a directory principal to the staff member id
	// inside a booking business. Exactly one match is expected; zero or
	// several resolve to an empty id with no error.
	ResolveStaffID(ctx context.Context, businessID, principalName string) (string, error)

	// CreateAppointment books a new appointment.
	CreateAppointment(ctx context.Context, p AppointmentParams) (*Appointment, error)

	// UpdateAppointment moves an existing appointment to another staff
	// member.
	UpdateAppointment(ctx context.Context, businessID, appointmentID, staffID string) error
}
