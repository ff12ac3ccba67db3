package domain

import (
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status represents the lifecycle state of an incident.
type Status string

// Incident statuses. The values are display strings and are stored as-is.
const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "In Progress"
	StatusClosed     Status = "Closed"
)

// Statuses lists all valid statuses in lifecycle order.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusClosed}

// IsValid checks if the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return true
	}
	return false
}

var statusCaser = cases.Title(language.English)

// ParseStatus canonicalizes raw input ("open", "IN PROGRESS") to a Status.
// Returns an error for values outside the enumeration.
func ParseStatus(raw string) (Status, error) {
	s := Status(statusCaser.String(raw))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Incident represents a reported incident record.
//
// ClosedOn and TotalTime are set together when a closing update supplies a
// closed-on timestamp; a status change alone never touches them.
type Incident struct {
	ID          int64      `json:"id"`
	ReportedBy  string     `json:"reported_by"`
	AssignedTo  string     `json:"assigned_to"`
	DateTime    time.Time  `json:"date_time"`
	Description string     `json:"description"`
	Attachment  *string    `json:"attachment"`
	Status      Status     `json:"status"`
	ClosedOn    *time.Time `json:"closed_on"`
	TotalTime   *string    `json:"total_time"`
	CreatedAt   time.Time  `json:"created_at"`
}
