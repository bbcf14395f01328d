package support

import (
	"strings"
	"time"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
)

const (
	StatusOpen      ledger.Status = "open"
	StatusResponded ledger.Status = "responded"
	StatusClosed    ledger.Status = "closed"
)

var TicketMachine = ledger.NewMachine("support_ticket", map[ledger.Status][]ledger.Status{
	StatusOpen:      {StatusResponded, StatusClosed},
	StatusResponded: {StatusClosed},
	StatusClosed:    {},
})

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

type Ticket struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Priority      Priority      `json:"priority"`
	Status        ledger.Status `json:"status"`
	AdminResponse *string       `json:"admin_response,omitempty"`
	RespondedBy   string        `json:"responded_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ApplyTicketTransition returns t moved to target. Moving to responded
// requires a non-empty response. It performs no I/O.
func ApplyTicketTransition(t Ticket, target ledger.Status, actor auth.Actor, response string, now time.Time) (Ticket, error) {
	if err := TicketMachine.Validate(t.Status, target); err != nil {
		return t, err
	}
	response = strings.TrimSpace(response)
	if target == StatusResponded && response == "" {
		return t, &ledger.ValidationError{Entity: "support_ticket", Field: "admin_response", Reason: "a response is required"}
	}
	next := t
	next.Status = target
	next.UpdatedAt = now
	if response != "" {
		next.AdminResponse = &response
		next.RespondedBy = actor.ID
	}
	return next, nil
}

type AlertType string

const (
	AlertInfo    AlertType = "info"
	AlertWarning AlertType = "warning"
	AlertError   AlertType = "error"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert is a system alert. is_resolved toggles freely in both directions.
type Alert struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Type       AlertType  `json:"type"`
	Severity   Severity   `json:"severity"`
	IsResolved bool       `json:"is_resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewAlert is the input for raising an alert.
type NewAlert struct {
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Type     AlertType `json:"type"`
	Severity Severity  `json:"severity"`
}

func (a NewAlert) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return &ledger.ValidationError{Entity: "system_alert", Field: "title", Reason: "is required"}
	}
	switch a.Type {
	case AlertInfo, AlertWarning, AlertError:
	default:
		return &ledger.ValidationError{Entity: "system_alert", Field: "type", Reason: "must be info, warning or error"}
	}
	switch a.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh:
	default:
		return &ledger.ValidationError{Entity: "system_alert", Field: "severity", Reason: "must be low, medium or high"}
	}
	return nil
}

// ToggleResolved returns a with is_resolved set. Resolving stamps the time
// and actor; reopening clears them.
func ToggleResolved(a Alert, resolved bool, actor auth.Actor, now time.Time) Alert {
	a.IsResolved = resolved
	a.UpdatedAt = now
	if resolved {
		a.ResolvedAt = &now
		a.ResolvedBy = actor.ID
	} else {
		a.ResolvedAt = nil
		a.ResolvedBy = ""
	}
	return a
}
