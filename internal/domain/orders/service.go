package orders

import (
	"context"
	"sort"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
	"github.com/carehub/ledger/internal/platform/remote"
)

type Service struct {
	repo    Repository
	updater *ledger.Updater
	orders  *ledger.Collection[Order]
}

func NewService(repo Repository, updater *ledger.Updater, opts ledger.CollectionOptions) *Service {
	return &Service{
		repo:    repo,
		updater: updater,
		orders:  ledger.NewCollection("orders", repo.List, func(o Order) string { return o.ID }, opts),
	}
}

// Collections exposes the reconciled order list for the periodic sweep.
func (s *Service) Collections() []ledger.Refreshable { return []ledger.Refreshable{s.orders} }

func (s *Service) Stop() { s.orders.Stop() }

// List returns orders newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, actor auth.Actor, status ledger.Status) ([]Order, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return nil, err
	}
	all, err := s.orders.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(all))
	for _, o := range all {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id string) (Order, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return Order{}, err
	}
	return s.orders.Lookup(ctx, id)
}

func (s *Service) History(ctx context.Context, actor auth.Actor, id string) ([]HistoryEntry, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return nil, err
	}
	entries, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, nil
}

// AllowedTransitions lists the statuses the order can move to next.
func (s *Service) AllowedTransitions(ctx context.Context, actor auth.Actor, id string) ([]ledger.Status, error) {
	o, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return Machine.AllowedTransitions(o.Status), nil
}

// Transition moves an order through the resilient update protocol. The
// direct update is guarded on the status the transition was validated
// against so a concurrent change surfaces as not applied.
func (s *Service) Transition(ctx context.Context, actor auth.Actor, id string, req TransitionRequest) (Order, ledger.Outcome, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return Order{}, ledger.Outcome{Path: ledger.PathNone}, err
	}
	current, err := s.orders.Lookup(ctx, id)
	if err != nil {
		return Order{}, ledger.Outcome{Path: ledger.PathNone}, err
	}

	next, applyErr := ApplyTransition(current, req, actor, s.updater.Now())
	message := ""
	if next.StatusMessage != nil && applyErr == nil {
		message = *next.StatusMessage
	}

	set := map[string]any{"status": string(req.Status), "updated_by": actor.ID}
	if next.TrackingNumber != nil {
		set["tracking_number"] = *next.TrackingNumber
	}
	if next.Carrier != nil {
		set["carrier"] = *next.Carrier
	}
	if message != "" {
		set["status_message"] = message
	}

	store := s.updater.Store()
	out, err := s.updater.Apply(ctx, actor, ledger.Mutation{
		Entity:    Machine.Entity(),
		ID:        id,
		Procedure: procUpdateStatus,
		Args: map[string]any{
			"p_order_id":        id,
			"p_status":          string(req.Status),
			"p_expected_status": string(current.Status),
			"p_message":         message,
			"p_tracking_number": deref(next.TrackingNumber),
			"p_carrier":         deref(next.Carrier),
			"p_actor":           actor.ID,
		},
		Table:    ordersTable,
		Set:      set,
		Guard:    []remote.Cond{remote.Eq("status", string(current.Status))},
		Validate: func() error { return applyErr },
		Audit: []ledger.AuditTask{
			historyTask(store, next, message),
			ledger.TrailTask(store, ledger.TrailEntry{
				Entity:     Machine.Entity(),
				EntityID:   id,
				NewStatus:  string(req.Status),
				Message:    message,
				Actor:      actor.ID,
				RecordedAt: next.UpdatedAt,
			}),
		},
		Merge: func() { s.orders.Merge(id, next) },
		View:  s.orders,
	})
	if err != nil {
		return current, out, err
	}
	return next, out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
