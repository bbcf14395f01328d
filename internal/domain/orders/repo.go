package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/remote"
)

const (
	ordersTable  = "orders"
	historyTable = "order_status_history"

	procUpdateStatus = "admin_update_order_status"
)

type Repository interface {
	List(ctx context.Context) ([]Order, error)
	Get(ctx context.Context, id string) (Order, error)
	History(ctx context.Context, orderID string) ([]HistoryEntry, error)
}

// HistoryEntry is one row of the order status history shown to patients.
type HistoryEntry struct {
	ID        string        `json:"id"`
	OrderID   string        `json:"order_id"`
	Status    ledger.Status `json:"status"`
	Message   string        `json:"message"`
	ChangedBy string        `json:"changed_by"`
	CreatedAt time.Time     `json:"created_at"`
}

type remoteRepo struct {
	store remote.Store
}

func NewRepository(store remote.Store) Repository {
	return &remoteRepo{store: store}
}

func (r *remoteRepo) List(ctx context.Context) ([]Order, error) {
	raws, err := r.store.Select(ctx, ordersTable)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return remote.Decode[Order](raws)
}

func (r *remoteRepo) Get(ctx context.Context, id string) (Order, error) {
	raws, err := r.store.Select(ctx, ordersTable, remote.Eq("id", id))
	if err != nil {
		return Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	o, ok, err := remote.First[Order](raws)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", id, ledger.ErrNotFound)
	}
	return o, nil
}

func (r *remoteRepo) History(ctx context.Context, orderID string) ([]HistoryEntry, error) {
	raws, err := r.store.Select(ctx, historyTable, remote.Eq("order_id", orderID))
	if err != nil {
		return nil, fmt.Errorf("order %s history: %w", orderID, err)
	}
	return remote.Decode[HistoryEntry](raws)
}

// historyTask appends the patient-visible history row for a committed transition.
func historyTask(store remote.Store, o Order, message string) ledger.AuditTask {
	return ledger.AuditTask{
		Entity:   Machine.Entity(),
		EntityID: o.ID,
		Name:     "status_history",
		Run: func(ctx context.Context) error {
			return store.Insert(ctx, historyTable, map[string]any{
				"id":         uuid.NewString(),
				"order_id":   o.ID,
				"status":     string(o.Status),
				"message":    message,
				"changed_by": o.UpdatedBy,
				"created_at": o.UpdatedAt.UTC(),
			})
		},
	}
}
