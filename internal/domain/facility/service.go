package facility

import (
	"context"
	"fmt"
	"sort"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
	"github.com/carehub/ledger/internal/platform/remote"
)

type Service struct {
	updater  *ledger.Updater
	beds     *ledger.Collection[BedInventory]
	theaters *ledger.Collection[Theater]
	bookings *ledger.Collection[Booking]
}

func NewService(repo Repository, updater *ledger.Updater, opts ledger.CollectionOptions) *Service {
	return &Service{
		updater:  updater,
		beds:     ledger.NewCollection("bed_inventory", repo.ListBeds, BedInventory.RowID, opts),
		theaters: ledger.NewCollection("operation_theaters", repo.ListTheaters, Theater.RowID, opts),
		bookings: ledger.NewCollection("bed_bookings", repo.ListBookings, func(b Booking) string { return b.ID }, opts),
	}
}

// Collections returns the reconciled collections for the periodic sweep.
func (s *Service) Collections() []ledger.Refreshable {
	return []ledger.Refreshable{s.beds, s.theaters, s.bookings}
}

// Stop cancels pending scheduled refreshes.
func (s *Service) Stop() {
	s.beds.Stop()
	s.theaters.Stop()
	s.bookings.Stop()
}

// ListBeds returns one canonical row per bed type, ordered by bed type.
func (s *Service) ListBeds(ctx context.Context, actor auth.Actor) ([]BedInventory, error) {
	canon, err := s.canonicalBeds(ctx, actor)
	if err != nil {
		return nil, err
	}
	return ledger.Sorted(canon), nil
}

// BedDuplicates reports the superseded rows per bed type.
func (s *Service) BedDuplicates(ctx context.Context, actor auth.Actor) (map[string][]BedInventory, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return nil, err
	}
	rows, err := s.beds.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.Duplicates(rows), nil
}

func (s *Service) canonicalBeds(ctx context.Context, actor auth.Actor) (map[string]BedInventory, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return nil, err
	}
	rows, err := s.beds.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.Canonicalize(rows), nil
}

// UpdateBeds changes the counts of the canonical row for bedType. The
// resulting counts are checked before anything is written.
func (s *Service) UpdateBeds(ctx context.Context, actor auth.Actor, bedType string, u BedUpdate) (BedInventory, ledger.Outcome, error) {
	canon, err := s.canonicalBeds(ctx, actor)
	if err != nil {
		return BedInventory{}, ledger.Outcome{Path: ledger.PathNone}, err
	}
	current, ok := canon[bedType]
	if !ok {
		return BedInventory{}, ledger.Outcome{Path: ledger.PathNone}, fmt.Errorf("bed type %q: %w", bedType, ledger.ErrNotFound)
	}

	next := current.Apply(u)
	next.UpdatedAt = s.updater.Now()
	validate := func() error {
		if u.empty() {
			return &ledger.ValidationError{Entity: "bed_inventory", Field: "available_beds", Reason: "no change requested"}
		}
		return next.Validate()
	}

	out, err := s.updater.Apply(ctx, actor, ledger.Mutation{
		Entity:    "bed_inventory",
		ID:        current.ID,
		Procedure: procUpdateBeds,
		Args: map[string]any{
			"p_id":             current.ID,
			"p_available_beds": next.AvailableBeds,
			"p_total_beds":     next.TotalBeds,
		},
		Table:    bedsTable,
		Set:      map[string]any{"available_beds": next.AvailableBeds, "total_beds": next.TotalBeds},
		Validate: validate,
		Audit: []ledger.AuditTask{ledger.TrailTask(s.updater.Store(), ledger.TrailEntry{
			Entity:     "bed_inventory",
			EntityID:   current.ID,
			NewStatus:  fmt.Sprintf("available=%d total=%d", next.AvailableBeds, next.TotalBeds),
			Message:    bedType,
			Actor:      actor.ID,
			RecordedAt: next.UpdatedAt,
		})},
		Merge: func() { s.beds.Merge(current.ID, next) },
		View:  s.beds,
	})
	if err != nil {
		return current, out, err
	}
	return next, out, nil
}

// ListTheaters returns one canonical row per theater name.
func (s *Service) ListTheaters(ctx context.Context, actor auth.Actor) ([]Theater, error) {
	canon, err := s.canonicalTheaters(ctx, actor)
	if err != nil {
		return nil, err
	}
	return ledger.Sorted(canon), nil
}

func (s *Service) canonicalTheaters(ctx context.Context, actor auth.Actor) (map[string]Theater, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return nil, err
	}
	rows, err := s.theaters.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.Canonicalize(rows), nil
}

// SetTheaterAvailability toggles the canonical row for the named theater.
func (s *Service) SetTheaterAvailability(ctx context.Context, actor auth.Actor, name string, available bool) (Theater, ledger.Outcome, error) {
	canon, err := s.canonicalTheaters(ctx, actor)
	if err != nil {
		return Theater{}, ledger.Outcome{Path: ledger.PathNone}, err
	}
	current, ok := canon[name]
	if !ok {
		return Theater{}, ledger.Outcome{Path: ledger.PathNone}, fmt.Errorf("theater %q: %w", name, ledger.ErrNotFound)
	}

	next := current
	next.IsAvailable = available
	next.UpdatedAt = s.updater.Now()

	state := "unavailable"
	if available {
		state = "available"
	}
	out, err := s.updater.Apply(ctx, actor, ledger.Mutation{
		Entity:    "operation_theater",
		ID:        current.ID,
		Procedure: procSetTheater,
		Args:      map[string]any{"p_id": current.ID, "p_is_available": available},
		Table:     theatersTable,
		Set:       map[string]any{"is_available": available},
		Audit: []ledger.AuditTask{ledger.TrailTask(s.updater.Store(), ledger.TrailEntry{
			Entity:     "operation_theater",
			EntityID:   current.ID,
			NewStatus:  state,
			Message:    name,
			Actor:      actor.ID,
			RecordedAt: next.UpdatedAt,
		})},
		Merge: func() { s.theaters.Merge(current.ID, next) },
		View:  s.theaters,
	})
	if err != nil {
		return current, out, err
	}
	return next, out, nil
}

// ListBookings returns bookings with emergencies first, then newest first.
func (s *Service) ListBookings(ctx context.Context, actor auth.Actor, status ledger.Status) ([]Booking, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return nil, err
	}
	all, err := s.bookings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Booking, 0, len(all))
	for _, b := range all {
		if status == "" || b.AdmissionStatus == status {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsEmergency != out[j].IsEmergency {
			return out[i].IsEmergency
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// TransitionBooking confirms or rejects a pending admission.
func (s *Service) TransitionBooking(ctx context.Context, actor auth.Actor, id string, target ledger.Status, message string) (Booking, ledger.Outcome, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return Booking{}, ledger.Outcome{Path: ledger.PathNone}, err
	}
	current, err := s.bookings.Lookup(ctx, id)
	if err != nil {
		return Booking{}, ledger.Outcome{Path: ledger.PathNone}, err
	}

	next, applyErr := ApplyBookingTransition(current, target, actor, message, s.updater.Now())
	note := ""
	if applyErr == nil && next.AdmissionNote != nil {
		note = *next.AdmissionNote
	}
	set := map[string]any{"admission_status": string(target), "reviewed_by": actor.ID}
	if note != "" {
		set["admission_note"] = note
	}

	out, err := s.updater.Apply(ctx, actor, ledger.Mutation{
		Entity:    BookingMachine.Entity(),
		ID:        id,
		Procedure: procUpdateBooking,
		Args: map[string]any{
			"p_booking_id":      id,
			"p_status":          string(target),
			"p_expected_status": string(current.AdmissionStatus),
			"p_note":            note,
			"p_actor":           actor.ID,
		},
		Table:    bookingsTable,
		Set:      set,
		Guard:    []remote.Cond{remote.Eq("admission_status", string(current.AdmissionStatus))},
		Validate: func() error { return applyErr },
		Audit: []ledger.AuditTask{ledger.TrailTask(s.updater.Store(), ledger.TrailEntry{
			Entity:     BookingMachine.Entity(),
			EntityID:   id,
			NewStatus:  string(target),
			Message:    note,
			Actor:      actor.ID,
			RecordedAt: next.UpdatedAt,
		})},
		Merge: func() { s.bookings.Merge(id, next) },
		View:  s.bookings,
	})
	if err != nil {
		return current, out, err
	}
	return next, out, nil
}
