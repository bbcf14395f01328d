package bloodbank

import (
	"context"
	"sort"
	"time"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
	"github.com/carehub/ledger/internal/platform/remote"
)

type Service struct {
	updater  *ledger.Updater
	donors   *ledger.Collection[Donor]
	requests *ledger.Collection[Request]
}

func NewService(repo Repository, updater *ledger.Updater, opts ledger.CollectionOptions) *Service {
	return &Service{
		updater:  updater,
		donors:   ledger.NewCollection(donorKind.table, repo.ListDonors, Donor.key, opts),
		requests: ledger.NewCollection(requestKind.table, repo.ListRequests, Request.key, opts),
	}
}

func (s *Service) Collections() []ledger.Refreshable {
	return []ledger.Refreshable{s.donors, s.requests}
}

func (s *Service) Stop() {
	s.donors.Stop()
	s.requests.Stop()
}

func (s *Service) ListDonors(ctx context.Context, actor auth.Actor, status ledger.Status) ([]Donor, error) {
	return list(ctx, s.updater.Now(), actor, s.donors, status, func(d Donor) time.Time { return d.CreatedAt })
}

func (s *Service) ListRequests(ctx context.Context, actor auth.Actor, status ledger.Status) ([]Request, error) {
	return list(ctx, s.updater.Now(), actor, s.requests, status, func(r Request) time.Time { return r.CreatedAt })
}

func (s *Service) ReviewDonor(ctx context.Context, actor auth.Actor, id string, r Review) (Donor, ledger.Outcome, error) {
	return review(ctx, s.updater, actor, s.donors, donorKind, id, r)
}

func (s *Service) ReviewRequest(ctx context.Context, actor auth.Actor, id string, r Review) (Request, ledger.Outcome, error) {
	return review(ctx, s.updater, actor, s.requests, requestKind, id, r)
}

func list[T reviewable[T]](ctx context.Context, now time.Time, actor auth.Actor, col *ledger.Collection[T], status ledger.Status, created func(T) time.Time) ([]T, error) {
	if err := actor.Authorize(now); err != nil {
		return nil, err
	}
	all, err := col.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(all))
	for _, item := range all {
		if status == "" || item.status() == status {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return created(out[i]).After(created(out[j])) })
	return out, nil
}

func review[T reviewable[T]](ctx context.Context, u *ledger.Updater, actor auth.Actor, col *ledger.Collection[T], k kind, id string, r Review) (T, ledger.Outcome, error) {
	if err := actor.Authorize(u.Now()); err != nil {
		var zero T
		return zero, ledger.Outcome{Path: ledger.PathNone}, err
	}
	current, err := col.Lookup(ctx, id)
	if err != nil {
		return current, ledger.Outcome{Path: ledger.PathNone}, err
	}

	now := u.Now()
	next, applyErr := ApplyReview(current, r, actor, now)
	response := ""
	if applyErr == nil {
		response = r.normalizedResponse()
	}
	set := map[string]any{"status": string(r.Status), "reviewed_by": actor.ID}
	if response != "" {
		set["admin_response"] = response
	}

	out, err := u.Apply(ctx, actor, ledger.Mutation{
		Entity:    k.entity,
		ID:        id,
		Procedure: k.procedure,
		Args: map[string]any{
			"p_id":              id,
			"p_status":          string(r.Status),
			"p_expected_status": string(current.status()),
			"p_admin_response":  response,
			"p_actor":           actor.ID,
		},
		Table:    k.table,
		Set:      set,
		Guard:    []remote.Cond{remote.Eq("status", string(current.status()))},
		Validate: func() error { return applyErr },
		Audit: []ledger.AuditTask{ledger.TrailTask(u.Store(), ledger.TrailEntry{
			Entity:     k.entity,
			EntityID:   id,
			NewStatus:  string(r.Status),
			Message:    response,
			Actor:      actor.ID,
			RecordedAt: now,
		})},
		Merge: func() { col.Merge(id, next) },
		View:  col,
	})
	if err != nil {
		return current, out, err
	}
	return next, out, nil
}
