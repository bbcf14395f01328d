// Package credentials promotes pending doctor credentials into verified,
// publicly listed doctor profiles.
package credentials

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carehub/ledger/internal/ledger"
)

const (
	StatusPending  ledger.Status = "pending"
	StatusApproved ledger.Status = "approved"
	StatusRejected ledger.Status = "rejected"
)

var Machine = ledger.NewMachine("credential_request", map[ledger.Status][]ledger.Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {},
	StatusRejected: {},
})

// Origin says which table a pending credential was read from.
type Origin string

const (
	OriginRequest Origin = "request"
	OriginProfile Origin = "profile"
)

func ParseOrigin(s string) (Origin, bool) {
	switch Origin(s) {
	case OriginRequest, OriginProfile:
		return Origin(s), true
	}
	return "", false
}

// CredentialRequest is a dedicated verification request row.
type CredentialRequest struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	FullName        string          `json:"full_name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Specialization  string          `json:"specialization"`
	ExperienceYears int             `json:"experience_years"`
	LicenseNumber   string          `json:"license_number"`
	Hospital        string          `json:"hospital"`
	ConsultationFee decimal.Decimal `json:"consultation_fee"`
	Status          ledger.Status   `json:"status"`
	ReviewedBy      *string         `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// DoctorProfile is a profile row created at registration and not yet approved.
type DoctorProfile struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Specialization  string          `json:"specialization"`
	ExperienceYears int             `json:"experience_years"`
	LicenseNumber   string          `json:"license_number"`
	Hospital        string          `json:"hospital"`
	ConsultationFee decimal.Decimal `json:"consultation_fee"`
	IsApproved      bool            `json:"is_approved"`
	CreatedAt       time.Time       `json:"created_at"`
}

// VerifiedDoctor is the public listing produced by an approval.
type VerifiedDoctor struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Specialization  string          `json:"specialization"`
	Hospital        string          `json:"hospital"`
	ExperienceYears int             `json:"experience_years"`
	ConsultationFee decimal.Decimal `json:"consultation_fee"`
	LicenseNumber   string          `json:"license_number"`
	VerifiedBy      string          `json:"verified_by"`
	VerifiedAt      time.Time       `json:"verified_at"`
}

// Source is a pending credential as read from one of its two tables.
type Source interface {
	normalize() PendingCredential
}

type RequestSource struct{ Row CredentialRequest }

type ProfileSource struct{ Row DoctorProfile }

// PendingCredential is the single shape the orchestrator works on,
// whichever table it came from.
type PendingCredential struct {
	Origin          Origin          `json:"origin"`
	SourceID        string          `json:"source_id"`
	ApplicantID     string          `json:"applicant_id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Specialization  string          `json:"specialization"`
	ExperienceYears int             `json:"experience_years"`
	LicenseNumber   string          `json:"license_number"`
	Hospital        string          `json:"hospital"`
	ConsultationFee decimal.Decimal `json:"consultation_fee"`
	Status          ledger.Status   `json:"status"`
	SubmittedAt     time.Time       `json:"submitted_at"`
}

// Key identifies a pending credential across both origins.
func (p PendingCredential) Key() string { return pendingKey(p.Origin, p.SourceID) }

func pendingKey(o Origin, id string) string { return string(o) + ":" + id }

func Normalize(src Source) PendingCredential { return src.normalize() }

func (s RequestSource) normalize() PendingCredential {
	r := s.Row
	return PendingCredential{
		Origin:          OriginRequest,
		SourceID:        r.ID,
		ApplicantID:     r.UserID,
		Name:            r.FullName,
		Email:           r.Email,
		Phone:           r.Phone,
		Specialization:  r.Specialization,
		ExperienceYears: r.ExperienceYears,
		LicenseNumber:   r.LicenseNumber,
		Hospital:        r.Hospital,
		ConsultationFee: r.ConsultationFee,
		Status:          r.Status,
		SubmittedAt:     r.CreatedAt,
	}
}

// Profile rows carry no status; an unapproved row is pending.
func (s ProfileSource) normalize() PendingCredential {
	r := s.Row
	status := StatusPending
	if r.IsApproved {
		status = StatusApproved
	}
	return PendingCredential{
		Origin:          OriginProfile,
		SourceID:        r.ID,
		ApplicantID:     r.UserID,
		Name:            r.Name,
		Email:           r.Email,
		Phone:           r.Phone,
		Specialization:  r.Specialization,
		ExperienceYears: r.ExperienceYears,
		LicenseNumber:   r.LicenseNumber,
		Hospital:        r.Hospital,
		ConsultationFee: r.ConsultationFee,
		Status:          status,
		SubmittedAt:     r.CreatedAt,
	}
}

// Terms are the listing details the admin confirms at approval. Empty
// fields fall back to what the applicant submitted.
type Terms struct {
	Specialization  string           `json:"specialization"`
	Hospital        string           `json:"hospital"`
	ExperienceYears *int             `json:"experience_years"`
	Phone           string           `json:"phone"`
	ConsultationFee *decimal.Decimal `json:"consultation_fee"`
}

// Listing builds the verified profile for p under terms.
func (p PendingCredential) Listing(t Terms, verifiedBy string, now time.Time) (VerifiedDoctor, error) {
	d := VerifiedDoctor{
		UserID:          p.ApplicantID,
		Name:            p.Name,
		Email:           p.Email,
		Phone:           firstNonEmpty(t.Phone, p.Phone),
		Specialization:  firstNonEmpty(t.Specialization, p.Specialization),
		Hospital:        firstNonEmpty(t.Hospital, p.Hospital),
		ExperienceYears: p.ExperienceYears,
		ConsultationFee: p.ConsultationFee,
		LicenseNumber:   p.LicenseNumber,
		VerifiedBy:      verifiedBy,
		VerifiedAt:      now,
	}
	if t.ExperienceYears != nil {
		d.ExperienceYears = *t.ExperienceYears
	}
	if t.ConsultationFee != nil {
		d.ConsultationFee = *t.ConsultationFee
	}

	switch {
	case strings.TrimSpace(d.Name) == "":
		return d, &ledger.ValidationError{Entity: "verified_doctor", Field: "name", Reason: "is required"}
	case d.Specialization == "":
		return d, &ledger.ValidationError{Entity: "verified_doctor", Field: "specialization", Reason: "is required"}
	case d.ExperienceYears < 0:
		return d, &ledger.ValidationError{Entity: "verified_doctor", Field: "experience_years", Reason: "must not be negative"}
	case d.ConsultationFee.IsNegative():
		return d, &ledger.ValidationError{Entity: "verified_doctor", Field: "consultation_fee", Reason: "must not be negative"}
	}
	return d, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ApprovalResult reports an approval. The verified profile is always
// committed; RequestMarked is false when the request row could not be
// stamped afterwards.
type ApprovalResult struct {
	Doctor        VerifiedDoctor `json:"doctor"`
	RequestMarked bool           `json:"request_marked"`
}

// RemovalResult reports a doctor removal. The listing is always deleted;
// AccountDemoted is false when the role change did not go through.
type RemovalResult struct {
	DoctorID       string `json:"doctor_id"`
	AccountDemoted bool   `json:"account_demoted"`
}
