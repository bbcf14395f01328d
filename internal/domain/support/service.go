package support

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
	"github.com/carehub/ledger/internal/platform/remote"
)

type Service struct {
	repo    Repository
	updater *ledger.Updater
	tickets *ledger.Collection[Ticket]
	alerts  *ledger.Collection[Alert]
}

func NewService(repo Repository, updater *ledger.Updater, opts ledger.CollectionOptions) *Service {
	return &Service{
		repo:    repo,
		updater: updater,
		tickets: ledger.NewCollection(ticketsTable, repo.ListTickets, func(t Ticket) string { return t.ID }, opts),
		alerts:  ledger.NewCollection(alertsTable, repo.ListAlerts, func(a Alert) string { return a.ID }, opts),
	}
}

func (s *Service) Collections() []ledger.Refreshable {
	return []ledger.Refreshable{s.tickets, s.alerts}
}

func (s *Service) Stop() {
	s.tickets.Stop()
	s.alerts.Stop()
}

// ListTickets returns tickets by priority, high first, then newest first.
func (s *Service) ListTickets(ctx context.Context, actor auth.Actor, status ledger.Status) ([]Ticket, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return nil, err
	}
	all, err := s.tickets.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Ticket, 0, len(all))
	for _, t := range all {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if ri, rj := out[i].Priority.rank(), out[j].Priority.rank(); ri != rj {
			return ri < rj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Service) TransitionTicket(ctx context.Context, actor auth.Actor, id string, target ledger.Status, response string) (Ticket, ledger.Outcome, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return Ticket{}, ledger.Outcome{Path: ledger.PathNone}, err
	}
	current, err := s.tickets.Lookup(ctx, id)
	if err != nil {
		return Ticket{}, ledger.Outcome{Path: ledger.PathNone}, err
	}

	next, applyErr := ApplyTicketTransition(current, target, actor, response, s.updater.Now())
	response = strings.TrimSpace(response)
	set := map[string]any{"status": string(target)}
	if applyErr == nil && response != "" {
		set["admin_response"] = response
		set["responded_by"] = actor.ID
	}

	out, err := s.updater.Apply(ctx, actor, ledger.Mutation{
		Entity:    TicketMachine.Entity(),
		ID:        id,
		Procedure: procUpdateTicket,
		Args: map[string]any{
			"p_ticket_id":       id,
			"p_status":          string(target),
			"p_expected_status": string(current.Status),
			"p_admin_response":  response,
			"p_actor":           actor.ID,
		},
		Table:    ticketsTable,
		Set:      set,
		Guard:    []remote.Cond{remote.Eq("status", string(current.Status))},
		Validate: func() error { return applyErr },
		Audit: []ledger.AuditTask{ledger.TrailTask(s.updater.Store(), ledger.TrailEntry{
			Entity:     TicketMachine.Entity(),
			EntityID:   id,
			NewStatus:  string(target),
			Message:    response,
			Actor:      actor.ID,
			RecordedAt: next.UpdatedAt,
		})},
		Merge: func() { s.tickets.Merge(id, next) },
		View:  s.tickets,
	})
	if err != nil {
		return current, out, err
	}
	return next, out, nil
}

// ListAlerts returns alerts newest first. A nil resolved returns all of them.
func (s *Service) ListAlerts(ctx context.Context, actor auth.Actor, resolved *bool) ([]Alert, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return nil, err
	}
	all, err := s.alerts.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Alert, 0, len(all))
	for _, a := range all {
		if resolved == nil || a.IsResolved == *resolved {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Service) CreateAlert(ctx context.Context, actor auth.Actor, in NewAlert) (Alert, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return Alert{}, err
	}
	if err := in.Validate(); err != nil {
		return Alert{}, err
	}
	now := s.updater.Now()
	a := Alert{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(in.Title),
		Message:   in.Message,
		Type:      in.Type,
		Severity:  in.Severity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateAlert(ctx, a); err != nil {
		return Alert{}, err
	}
	s.updater.Audit(ledger.TrailTask(s.updater.Store(), ledger.TrailEntry{
		Entity: "system_alert", EntityID: a.ID, NewStatus: "active", Message: a.Title, Actor: actor.ID, RecordedAt: now,
	}))
	s.alerts.Merge(a.ID, a)
	s.alerts.ScheduleRefresh()
	return a, nil
}

// SetAlertResolved toggles an alert. Setting the value it already holds
// writes nothing.
func (s *Service) SetAlertResolved(ctx context.Context, actor auth.Actor, id string, resolved bool) (Alert, ledger.Outcome, error) {
	if err := actor.Authorize(s.updater.Now()); err != nil {
		return Alert{}, ledger.Outcome{Path: ledger.PathNone}, err
	}
	current, err := s.alerts.Lookup(ctx, id)
	if err != nil {
		return Alert{}, ledger.Outcome{Path: ledger.PathNone}, err
	}
	if current.IsResolved == resolved {
		return current, ledger.Outcome{Path: ledger.PathNone}, nil
	}

	now := s.updater.Now()
	next := ToggleResolved(current, resolved, actor, now)
	set := map[string]any{"is_resolved": resolved, "resolved_at": nil, "resolved_by": nil}
	state := "active"
	if resolved {
		set["resolved_at"] = now.UTC()
		set["resolved_by"] = actor.ID
		state = "resolved"
	}

	out, err := s.updater.Apply(ctx, actor, ledger.Mutation{
		Entity:    "system_alert",
		ID:        id,
		Procedure: procResolveAlert,
		Args:      map[string]any{"p_id": id, "p_is_resolved": resolved, "p_actor": actor.ID},
		Table:     alertsTable,
		Set:       set,
		Audit: []ledger.AuditTask{ledger.TrailTask(s.updater.Store(), ledger.TrailEntry{
			Entity: "system_alert", EntityID: id, NewStatus: state, Actor: actor.ID, RecordedAt: now,
		})},
		Merge: func() { s.alerts.Merge(id, next) },
		View:  s.alerts,
	})
	if err != nil {
		return current, out, err
	}
	return next, out, nil
}
