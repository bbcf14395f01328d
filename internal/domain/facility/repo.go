package facility

import (
	"context"
	"fmt"

	"github.com/carehub/ledger/internal/platform/remote"
)

const (
	bedsTable     = "bed_inventory"
	theatersTable = "operation_theaters"
	bookingsTable = "bed_bookings"

	procUpdateBeds    = "admin_update_bed_inventory"
	procSetTheater    = "admin_set_theater_availability"
	procUpdateBooking = "admin_update_booking_status"
)

// Repository reads raw facility rows. Bed and theater rows are returned
// with their duplicates; callers canonicalize.
type Repository interface {
	ListBeds(ctx context.Context) ([]BedInventory, error)
	ListTheaters(ctx context.Context) ([]Theater, error)
	ListBookings(ctx context.Context) ([]Booking, error)
}

type remoteRepo struct {
	store remote.Store
}

func NewRepository(store remote.Store) Repository {
	return &remoteRepo{store: store}
}

func (r *remoteRepo) ListBeds(ctx context.Context) ([]BedInventory, error) {
	return list[BedInventory](ctx, r.store, bedsTable)
}

func (r *remoteRepo) ListTheaters(ctx context.Context) ([]Theater, error) {
	return list[Theater](ctx, r.store, theatersTable)
}

func (r *remoteRepo) ListBookings(ctx context.Context) ([]Booking, error) {
	return list[Booking](ctx, r.store, bookingsTable)
}

func list[T any](ctx context.Context, store remote.Store, table string) ([]T, error) {
	raws, err := store.Select(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return remote.Decode[T](raws)
}
