package credentials

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carehub/ledger/internal/ledger"
)

func TestNormalize(t *testing.T) {
	ts := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	fee := decimal.RequireFromString("450.50")

	req := Normalize(RequestSource{Row: CredentialRequest{ID: "r1", UserID: "u1", FullName: "Dr. A", Specialization: "ENT", ConsultationFee: fee, Status: StatusPending, CreatedAt: ts}})
	if req.Key() != "request:r1" || req.Name != "Dr. A" || req.ApplicantID != "u1" || !req.ConsultationFee.Equal(fee) {
		t.Errorf("unexpected request credential %+v", req)
	}

	prof := Normalize(ProfileSource{Row: DoctorProfile{ID: "p1", UserID: "u2", Name: "Dr. B", CreatedAt: ts}})
	if prof.Key() != "profile:p1" || prof.Status != StatusPending || !prof.SubmittedAt.Equal(ts) {
		t.Errorf("unexpected profile credential %+v", prof)
	}

	approved := Normalize(ProfileSource{Row: DoctorProfile{ID: "p2", IsApproved: true}})
	if approved.Status != StatusApproved {
		t.Errorf("expected approved status, got %s", approved.Status)
	}
}

func TestParseOrigin(t *testing.T) {
	if o, ok := ParseOrigin("profile"); !ok || o != OriginProfile {
		t.Errorf("expected profile origin, got %q %v", o, ok)
	}
	if _, ok := ParseOrigin("doctor"); ok {
		t.Error("expected unknown origin to be rejected")
	}
}

func TestListing_TermsOverrideSubmission(t *testing.T) {
	now := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	p := PendingCredential{ApplicantID: "u1", Name: "Dr. A", Specialization: "ENT", Hospital: "Old", ExperienceYears: 3, ConsultationFee: decimal.NewFromInt(300)}
	years := 5
	fee := decimal.NewFromInt(600)

	d, err := p.Listing(Terms{Hospital: "  New  ", ExperienceYears: &years, ConsultationFee: &fee}, "admin-1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Hospital != "New" || d.Specialization != "ENT" || d.ExperienceYears != 5 || !d.ConsultationFee.Equal(fee) {
		t.Errorf("unexpected listing %+v", d)
	}
	if d.VerifiedBy != "admin-1" || !d.VerifiedAt.Equal(now) {
		t.Errorf("unexpected verification stamp %+v", d)
	}
}

func TestListing_Validation(t *testing.T) {
	negFee := decimal.NewFromInt(-1)
	tests := []struct {
		name  string
		p     PendingCredential
		terms Terms
		field string
	}{
		{"missing name", PendingCredential{Specialization: "ENT"}, Terms{}, "name"},
		{"missing specialization", PendingCredential{Name: "Dr. A"}, Terms{}, "specialization"},
		{"negative fee", PendingCredential{Name: "Dr. A", Specialization: "ENT"}, Terms{ConsultationFee: &negFee}, "consultation_fee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.p.Listing(tt.terms, "admin-1", time.Now())
			var ve *ledger.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("expected ValidationError on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestMachine_TerminalOutcomes(t *testing.T) {
	if !Machine.Terminal(StatusApproved) || !Machine.Terminal(StatusRejected) {
		t.Error("approved and rejected are terminal")
	}
	if err := Machine.Validate(StatusRejected, StatusApproved); err == nil {
		t.Error("expected rejected -> approved to fail")
	}
}
