// Package records holds the business records the specialists read and
// write: user profiles, support calls and appointments.
package records

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrSlotTaken = errors.New("appointment slot is already taken")
)

type UserInfo struct {
	ID        string    `json:"id"`
	Nickname  string    `json:"nickname"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Plan      string    `json:"plan,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupportCall struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Nickname         string    `json:"nickname"`
	IssueDescription string    `json:"issue_description"`
	CreatedAt        time.Time `json:"created_at"`
}

type Appointment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	GetUserInfo(ctx context.Context, nickname string) (UserInfo, error)
	InsertSupportCall(ctx context.Context, call SupportCall) (SupportCall, error)
	// ListAppointments returns appointments overlapping [from, to),
	// ordered by start time.
	ListAppointments(ctx context.Context, from, to time.Time) ([]Appointment, error)
	// InsertAppointment fails with ErrSlotTaken when the interval overlaps
	// an existing appointment.
	InsertAppointment(ctx context.Context, appt Appointment) (Appointment, error)
}
