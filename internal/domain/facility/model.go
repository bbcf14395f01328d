package facility

import (
	"fmt"
	"strings"
	"time"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
)

// BedInventory is one physical row of the per-bed-type inventory. Several
// rows may exist for the same bed type; see ledger.Canonicalize.
type BedInventory struct {
	ID            string    `json:"id"`
	BedType       string    `json:"bed_type"`
	TotalBeds     int       `json:"total_beds"`
	AvailableBeds int       `json:"available_beds"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (b BedInventory) LogicalKey() string     { return b.BedType }
func (b BedInventory) RowID() string          { return b.ID }
func (b BedInventory) UpdatedTime() time.Time { return b.UpdatedAt }

// Occupied is the number of beds currently in use.
func (b BedInventory) Occupied() int { return b.TotalBeds - b.AvailableBeds }

// Validate enforces 0 <= available_beds <= total_beds.
func (b BedInventory) Validate() error {
	switch {
	case b.TotalBeds < 0:
		return &ledger.ValidationError{Entity: "bed_inventory", Field: "total_beds", Reason: "must not be negative"}
	case b.AvailableBeds < 0:
		return &ledger.ValidationError{Entity: "bed_inventory", Field: "available_beds", Reason: "must not be negative"}
	case b.AvailableBeds > b.TotalBeds:
		return &ledger.ValidationError{
			Entity: "bed_inventory",
			Field:  "available_beds",
			Reason: fmt.Sprintf("%d exceeds total_beds %d for %s", b.AvailableBeds, b.TotalBeds, b.BedType),
		}
	}
	return nil
}

// BedUpdate sets either or both counts. Nil fields keep their current value.
type BedUpdate struct {
	AvailableBeds *int `json:"available_beds"`
	TotalBeds     *int `json:"total_beds"`
}

func (u BedUpdate) empty() bool { return u.AvailableBeds == nil && u.TotalBeds == nil }

// Apply returns b with u applied. The result is not validated.
func (b BedInventory) Apply(u BedUpdate) BedInventory {
	if u.AvailableBeds != nil {
		b.AvailableBeds = *u.AvailableBeds
	}
	if u.TotalBeds != nil {
		b.TotalBeds = *u.TotalBeds
	}
	return b
}

// Theater is one physical row for an operation theater, keyed by name.
type Theater struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IsAvailable bool      `json:"is_available"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (t Theater) LogicalKey() string     { return t.Name }
func (t Theater) RowID() string          { return t.ID }
func (t Theater) UpdatedTime() time.Time { return t.UpdatedAt }

const (
	AdmissionPending   ledger.Status = "pending"
	AdmissionConfirmed ledger.Status = "confirmed"
	AdmissionRejected  ledger.Status = "rejected"
)

var BookingMachine = ledger.NewMachine("bed_booking", map[ledger.Status][]ledger.Status{
	AdmissionPending:   {AdmissionConfirmed, AdmissionRejected},
	AdmissionConfirmed: {},
	AdmissionRejected:  {},
})

// Booking is a patient's bed booking. Admins only move admission_status.
type Booking struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	PatientName     string        `json:"patient_name"`
	PatientAge      int           `json:"patient_age"`
	PatientGender   string        `json:"patient_gender"`
	ContactPhone    string        `json:"contact_phone"`
	BedType         string        `json:"bed_type"`
	IsEmergency     bool          `json:"is_emergency"`
	AdmissionStatus ledger.Status `json:"admission_status"`
	PaymentStatus   string        `json:"payment_status"`
	AdmissionNote   *string       `json:"admission_note,omitempty"`
	ReviewedBy      string        `json:"reviewed_by,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ApplyBookingTransition returns b moved to target. It performs no I/O.
func ApplyBookingTransition(b Booking, target ledger.Status, actor auth.Actor, message string, now time.Time) (Booking, error) {
	if err := BookingMachine.Validate(b.AdmissionStatus, target); err != nil {
		return b, err
	}
	next := b
	next.AdmissionStatus = target
	next.ReviewedBy = actor.ID
	next.UpdatedAt = now
	if msg := strings.TrimSpace(message); msg != "" {
		next.AdmissionNote = &msg
	}
	return next, nil
}
