package bloodbank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
	"github.com/carehub/ledger/internal/platform/remote/remotetest"
)

var admin = auth.Actor{ID: "admin-1", Roles: []string{auth.RoleAdmin}}

func newTestService(t *testing.T) (*Service, *remotetest.Store) {
	t.Helper()
	store := remotetest.New()
	store.Seed(donorKind.table,
		map[string]any{"id": "d1", "name": "Kiran", "blood_group": "O+", "status": "pending", "created_at": "2026-04-01T08:00:00Z"},
		map[string]any{"id": "d2", "name": "Lea", "blood_group": "A-", "status": "approved", "created_at": "2026-04-02T08:00:00Z"},
	)
	store.Seed(requestKind.table,
		map[string]any{"id": "r1", "patient_name": "Omar", "blood_group": "B+", "units": 2, "status": "pending", "created_at": "2026-04-03T08:00:00Z"},
	)
	q := ledger.NewAuditQueue(16, time.Second, zerolog.Nop(), nil)
	q.Start()
	t.Cleanup(q.Close)
	u := ledger.NewUpdater(store, q, zerolog.Nop(), nil)
	svc := NewService(NewRepository(store), u, ledger.CollectionOptions{Delay: time.Hour, MaxAge: time.Hour, Logger: zerolog.Nop()})
	t.Cleanup(svc.Stop)
	return svc, store
}

func TestApplyReview(t *testing.T) {
	d := Donor{ID: "d1", Status: StatusPending}

	got, err := ApplyReview(d, Review{Status: StatusApproved, Response: " see you Monday "}, admin, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusApproved || got.AdminResponse == nil || *got.AdminResponse != "see you Monday" {
		t.Errorf("unexpected donor %+v", got)
	}

	_, err = ApplyReview(Request{Status: StatusRejected}, Review{Status: StatusApproved}, admin, time.Now())
	var te *ledger.TransitionError
	if !errors.As(err, &te) {
		t.Errorf("expected TransitionError, got %v", err)
	}
}

func TestService_ReviewDonorWithResponse(t *testing.T) {
	svc, store := newTestService(t)

	got, out, err := svc.ReviewDonor(context.Background(), admin, "d1", Review{Status: StatusApproved, Response: "Please visit the centre"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Path != ledger.PathFallback || got.Status != StatusApproved {
		t.Errorf("unexpected result %+v via %s", got, out.Path)
	}
	row, _ := store.Row(donorKind.table, "d1")
	if row["status"] != "approved" || row["admin_response"] != "Please visit the centre" || row["reviewed_by"] != "admin-1" {
		t.Errorf("unexpected row %v", row)
	}
}

func TestService_ReviewTerminalIsNoOp(t *testing.T) {
	svc, store := newTestService(t)

	_, _, err := svc.ReviewDonor(context.Background(), admin, "d2", Review{Status: StatusRejected})
	var te *ledger.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if store.Writes() != 0 {
		t.Errorf("expected no writes, got %d", store.Writes())
	}
}

func TestService_ReviewRequestViaProcedure(t *testing.T) {
	svc, store := newTestService(t)
	store.Register(requestKind.procedure, func(context.Context, *remotetest.Store, map[string]any) (int64, error) {
		return 1, nil
	})

	got, out, err := svc.ReviewRequest(context.Background(), admin, "r1", Review{Status: StatusRejected, Response: "no stock"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Path != ledger.PathProcedure || got.Status != StatusRejected {
		t.Errorf("unexpected result %+v via %s", got, out.Path)
	}
	if store.Count("update", "") != 0 {
		t.Error("fallback must not run after the procedure succeeded")
	}
	calls := store.Ops()
	var args map[string]any
	for _, op := range calls {
		if op.Kind == "call" {
			args = op.Args
		}
	}
	if args["p_admin_response"] != "no stock" || args["p_expected_status"] != "pending" {
		t.Errorf("unexpected procedure args %v", args)
	}
}

func TestService_ListFilters(t *testing.T) {
	svc, _ := newTestService(t)

	pending, err := svc.ListDonors(context.Background(), admin, StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != "d1" {
		t.Errorf("unexpected donors %+v", pending)
	}

	all, _ := svc.ListDonors(context.Background(), admin, "")
	if len(all) != 2 || all[0].ID != "d2" {
		t.Errorf("expected newest first, got %+v", all)
	}
}

func TestService_ReviewUnknown(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.ReviewRequest(context.Background(), admin, "r9", Review{Status: StatusApproved})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
