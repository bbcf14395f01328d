package bloodbank

import (
	"strings"
	"time"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
)

const (
	StatusPending  ledger.Status = "pending"
	StatusApproved ledger.Status = "approved"
	StatusRejected ledger.Status = "rejected"
)

// Machine governs both donor applications and blood requests.
var Machine = ledger.NewMachine("blood", map[ledger.Status][]ledger.Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {},
	StatusRejected: {},
})

type Donor struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Name          string        `json:"name"`
	BloodGroup    string        `json:"blood_group"`
	Phone         string        `json:"phone"`
	Age           int           `json:"age"`
	LastDonation  *time.Time    `json:"last_donation,omitempty"`
	Status        ledger.Status `json:"status"`
	AdminResponse *string       `json:"admin_response,omitempty"`
	ReviewedBy    string        `json:"reviewed_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type Request struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	PatientName   string        `json:"patient_name"`
	BloodGroup    string        `json:"blood_group"`
	Units         int           `json:"units"`
	Hospital      string        `json:"hospital"`
	Urgency       string        `json:"urgency"`
	Phone         string        `json:"phone"`
	Status        ledger.Status `json:"status"`
	AdminResponse *string       `json:"admin_response,omitempty"`
	ReviewedBy    string        `json:"reviewed_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Review is the admin's decision on a donor application or blood request.
type Review struct {
	Status   ledger.Status `json:"status"`
	Response string        `json:"response"`
}

func (r Review) normalizedResponse() string { return strings.TrimSpace(r.Response) }

type reviewable[T any] interface {
	key() string
	status() ledger.Status
	withReview(status ledger.Status, response *string, by string, now time.Time) T
}

func (d Donor) key() string             { return d.ID }
func (d Donor) status() ledger.Status   { return d.Status }
func (r Request) key() string           { return r.ID }
func (r Request) status() ledger.Status { return r.Status }

func (d Donor) withReview(status ledger.Status, response *string, by string, now time.Time) Donor {
	d.Status, d.ReviewedBy, d.UpdatedAt = status, by, now
	if response != nil {
		d.AdminResponse = response
	}
	return d
}

func (r Request) withReview(status ledger.Status, response *string, by string, now time.Time) Request {
	r.Status, r.ReviewedBy, r.UpdatedAt = status, by, now
	if response != nil {
		r.AdminResponse = response
	}
	return r
}

// ApplyReview returns item moved to the reviewed status. It performs no I/O.
func ApplyReview[T reviewable[T]](item T, review Review, actor auth.Actor, now time.Time) (T, error) {
	if err := Machine.Validate(item.status(), review.Status); err != nil {
		return item, err
	}
	var response *string
	if msg := review.normalizedResponse(); msg != "" {
		response = &msg
	}
	return item.withReview(review.Status, response, actor.ID, now), nil
}
