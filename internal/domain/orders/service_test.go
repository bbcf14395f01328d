package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
	"github.com/carehub/ledger/internal/platform/remote"
	"github.com/carehub/ledger/internal/platform/remote/remotetest"
)

func newTestService(t *testing.T) (*Service, *remotetest.Store, *ledger.AuditQueue) {
	t.Helper()
	store := remotetest.New()
	store.Seed(ordersTable,
		map[string]any{"id": "o1", "status": "pending", "total": "25.00", "customer_name": "Asha", "created_at": "2026-04-01T10:00:00Z"},
		map[string]any{"id": "o2", "status": "shipped", "total": "9.50", "customer_name": "Ben", "created_at": "2026-04-02T10:00:00Z"},
		map[string]any{"id": "o3", "status": "delivered", "total": "3.10", "customer_name": "Chen", "created_at": "2026-03-30T10:00:00Z"},
	)
	q := ledger.NewAuditQueue(16, time.Second, zerolog.Nop(), nil)
	q.Start()
	t.Cleanup(q.Close)
	u := ledger.NewUpdater(store, q, zerolog.Nop(), nil)
	svc := NewService(NewRepository(store), u, ledger.CollectionOptions{Delay: time.Hour, MaxAge: time.Hour, Logger: zerolog.Nop()})
	t.Cleanup(svc.Stop)
	return svc, store, q
}

func TestService_ListFiltersAndSorts(t *testing.T) {
	svc, _, _ := newTestService(t)

	all, err := svc.List(context.Background(), admin, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 || all[0].ID != "o2" || all[2].ID != "o3" {
		t.Errorf("expected newest first, got %v", ids(all))
	}

	pending, _ := svc.List(context.Background(), admin, StatusPending)
	if len(pending) != 1 || pending[0].ID != "o1" {
		t.Errorf("unexpected pending orders %v", ids(pending))
	}
}

func TestService_ListSeesExternalCheckout(t *testing.T) {
	store := remotetest.New()
	store.Seed(ordersTable,
		map[string]any{"id": "o1", "status": "pending", "total": "25.00", "created_at": "2026-04-01T10:00:00Z"},
	)
	now := time.Date(2026, 4, 5, 12, 0, 0, 0, time.UTC)
	u := ledger.NewUpdater(store, nil, zerolog.Nop(), nil)
	svc := NewService(NewRepository(store), u, ledger.CollectionOptions{
		Delay:  time.Hour,
		MaxAge: time.Second,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return now },
	})
	t.Cleanup(svc.Stop)

	before, err := svc.List(context.Background(), admin, "")
	if err != nil || len(before) != 1 {
		t.Fatalf("unexpected first list %v (%v)", ids(before), err)
	}

	store.Seed(ordersTable,
		map[string]any{"id": "o4", "status": "pending", "total": "12.00", "created_at": "2026-04-05T11:59:00Z"},
	)
	now = now.Add(2 * time.Second)

	after, err := svc.List(context.Background(), admin, StatusPending)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(after) != 2 || after[0].ID != "o4" {
		t.Errorf("expected the new checkout first, got %v", ids(after))
	}
}

func TestService_ListRequiresAdmin(t *testing.T) {
	svc, store, _ := newTestService(t)

	_, err := svc.List(context.Background(), auth.Actor{ID: "p1", Roles: []string{auth.RolePatient}}, "")
	if !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if len(store.Ops()) != 0 {
		t.Error("unauthorized list must not reach the store")
	}
}

func TestService_TransitionPendingToDeliveredIsNoOp(t *testing.T) {
	svc, store, _ := newTestService(t)

	_, out, err := svc.Transition(context.Background(), admin, "o1", TransitionRequest{Status: StatusDelivered})

	var te *ledger.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if out.Path != ledger.PathNone {
		t.Errorf("expected no write path, got %s", out.Path)
	}
	if store.Writes() != 0 {
		t.Errorf("rejected transition must not write, saw %d writes", store.Writes())
	}
	row, _ := store.Row(ordersTable, "o1")
	if row["status"] != "pending" {
		t.Errorf("order must stay pending, got %v", row["status"])
	}
}

func TestService_TransitionViaProcedure(t *testing.T) {
	svc, store, q := newTestService(t)
	store.Register(procUpdateStatus, func(ctx context.Context, s *remotetest.Store, args map[string]any) (int64, error) {
		return s.Update(ctx, ordersTable, map[string]any{"status": args["p_status"]}, remote.Eq("id", args["p_order_id"]))
	})

	got, out, err := svc.Transition(context.Background(), admin, "o1", TransitionRequest{Status: StatusShipped, Message: "on its way", TrackingNumber: "TRK1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q.Close()

	if out.Path != ledger.PathProcedure {
		t.Errorf("expected procedure path, got %s", out.Path)
	}
	if got.Status != StatusShipped {
		t.Errorf("expected shipped, got %s", got.Status)
	}
	if store.Count("update", ordersTable) != 1 {
		t.Error("expected only the procedure's own update")
	}
	if cached, _ := svc.orders.Get("o1"); cached.Status != StatusShipped {
		t.Errorf("expected optimistic merge, cached status %s", cached.Status)
	}

	history := store.Rows(historyTable)
	if len(history) != 1 || history[0]["status"] != "shipped" || history[0]["message"] != "on its way" {
		t.Errorf("unexpected history %v", history)
	}
	if len(store.Rows("ledger_audit")) != 1 {
		t.Error("expected an audit trail row")
	}
}

func TestService_TransitionFallsBackWhenProcedureMissing(t *testing.T) {
	svc, store, _ := newTestService(t)

	got, out, err := svc.Transition(context.Background(), admin, "o2", TransitionRequest{Status: StatusDelivered})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Path != ledger.PathFallback {
		t.Errorf("expected fallback path, got %s", out.Path)
	}
	row, _ := store.Row(ordersTable, "o2")
	if row["status"] != "delivered" || row["updated_by"] != "admin-1" {
		t.Errorf("unexpected row %v", row)
	}
	if got.Status != StatusDelivered {
		t.Errorf("expected delivered, got %s", got.Status)
	}
}

func TestService_TransitionRacingSessionIsNotApplied(t *testing.T) {
	svc, store, _ := newTestService(t)
	if _, err := svc.List(context.Background(), admin, ""); err != nil {
		t.Fatal(err)
	}

	// Another admin cancels o1 after our copy was loaded.
	if _, err := store.Update(context.Background(), ordersTable, map[string]any{"status": "cancelled"}, remote.Eq("id", "o1")); err != nil {
		t.Fatal(err)
	}

	_, _, err := svc.Transition(context.Background(), admin, "o1", TransitionRequest{Status: StatusShipped})

	var na *ledger.NotAppliedError
	if !errors.As(err, &na) {
		t.Fatalf("expected NotAppliedError, got %v", err)
	}
	if cached, _ := svc.orders.Get("o1"); cached.Status != StatusCancelled {
		t.Errorf("expected forced refresh to surface the cancellation, got %s", cached.Status)
	}
}

func TestService_TransitionAuditFailureDoesNotFail(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.FailInsert[historyTable] = errors.New("permission denied")

	if _, _, err := svc.Transition(context.Background(), admin, "o1", TransitionRequest{Status: StatusCancelled}); err != nil {
		t.Fatalf("audit failure must not surface: %v", err)
	}
	row, _ := store.Row(ordersTable, "o1")
	if row["status"] != "cancelled" {
		t.Errorf("expected cancelled, got %v", row["status"])
	}
}

func TestService_TransitionUnknownOrder(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.Transition(context.Background(), admin, "missing", TransitionRequest{Status: StatusShipped})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_AllowedTransitions(t *testing.T) {
	svc, _, _ := newTestService(t)

	got, err := svc.AllowedTransitions(context.Background(), admin, "o2")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != StatusDelivered || got[1] != StatusCancelled {
		t.Errorf("unexpected transitions %v", got)
	}
}

func ids(orders []Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}
