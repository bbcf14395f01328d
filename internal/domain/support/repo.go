package support

import (
	"context"
	"fmt"

	"github.com/carehub/ledger/internal/platform/remote"
)

const (
	ticketsTable = "support_tickets"
	alertsTable  = "system_alerts"

	procUpdateTicket = "admin_update_ticket_status"
	procResolveAlert = "admin_set_alert_resolved"
)

type Repository interface {
	ListTickets(ctx context.Context) ([]Ticket, error)
	ListAlerts(ctx context.Context) ([]Alert, error)
	CreateAlert(ctx context.Context, a Alert) error
}

type remoteRepo struct {
	store remote.Store
}

func NewRepository(store remote.Store) Repository {
	return &remoteRepo{store: store}
}

func (r *remoteRepo) ListTickets(ctx context.Context) ([]Ticket, error) {
	raws, err := r.store.Select(ctx, ticketsTable)
	if err != nil {
		return nil, fmt.Errorf("list support tickets: %w", err)
	}
	return remote.Decode[Ticket](raws)
}

func (r *remoteRepo) ListAlerts(ctx context.Context) ([]Alert, error) {
	raws, err := r.store.Select(ctx, alertsTable)
	if err != nil {
		return nil, fmt.Errorf("list system alerts: %w", err)
	}
	return remote.Decode[Alert](raws)
}

func (r *remoteRepo) CreateAlert(ctx context.Context, a Alert) error {
	err := r.store.Insert(ctx, alertsTable, map[string]any{
		"id":          a.ID,
		"title":       a.Title,
		"message":     a.Message,
		"type":        string(a.Type),
		"severity":    string(a.Severity),
		"is_resolved": a.IsResolved,
		"created_at":  a.CreatedAt.UTC(),
		"updated_at":  a.UpdatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("create system alert: %w", err)
	}
	return nil
}
