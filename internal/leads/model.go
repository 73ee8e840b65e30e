package leads

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/sdr-ai-platform/internal/qualification"
)

// Status is the pipeline position of a lead.
type Status string

const (
	StatusNew                Status = "NEW"
	StatusFirstContact       Status = "FIRST_CONTACT"
	StatusQualifying         Status = "QUALIFYING"
	StatusQualified          Status = "QUALIFIED"
	StatusAwaitingSlotChoice Status = "AWAITING_SLOT_CHOICE"
	StatusMeetingBooked      Status = "MEETING_BOOKED"
	StatusWon                Status = "WON"
	StatusLost               Status = "LOST"
)

var allStatuses = []Status{
	StatusNew, StatusFirstContact, StatusQualifying, StatusQualified,
	StatusAwaitingSlotChoice, StatusMeetingBooked, StatusWon, StatusLost,
}

// ParseStatus converts a stored status string. It is called once when rows
// are loaded; everything past that point uses the typed value.
func ParseStatus(s string) (Status, error) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range allStatuses {
		if st == normalized {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Message roles in the conversation history.
const (
	RoleLead  = "user"
	RoleAgent = "assistant"
)

// Message is one entry in a lead's conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Lead is an inbound prospect, identified by an E.164 phone number.
type Lead struct {
	ID            string                    `json:"id"`
	Phone         string                    `json:"phone"`
	Name          string                    `json:"name"`
	Company       string                    `json:"company"`
	Email         string                    `json:"email"`
	Source        string                    `json:"source"`
	Status        Status                    `json:"status"`
	Temperature   qualification.Temperature `json:"temperature"`
	Score         int                       `json:"score"`
	Qualification *qualification.Data       `json:"qualification,omitempty"`
	History       []Message                 `json:"history"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// CreateLeadRequest is what the core knows on first contact.
type CreateLeadRequest struct {
	Phone  string
	Name   string
	Source string
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.Phone) == "" {
		return ErrMissingContact
	}
	return nil
}

// Update is a partial write; nil fields are left untouched.
type Update struct {
	Name          *string
	Company       *string
	Email         *string
	Status        *Status
	Temperature   *qualification.Temperature
	Score         *int
	Qualification *qualification.Data
}

// IsEmpty reports whether the update would change nothing.
func (u Update) IsEmpty() bool {
	return u == Update{}
}

// Apply copies the set fields onto l.
func (l *Lead) Apply(u Update) {
	if u.Name != nil {
		l.Name = *u.Name
	}
	if u.Company != nil {
		l.Company = *u.Company
	}
	if u.Email != nil {
		l.Email = *u.Email
	}
	if u.Status != nil {
		l.Status = *u.Status
	}
	if u.Temperature != nil {
		l.Temperature = *u.Temperature
	}
	if u.Score != nil {
		l.Score = *u.Score
	}
	if u.Qualification != nil {
		q := *u.Qualification
		l.Qualification = &q
	}
}
