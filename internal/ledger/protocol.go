package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/carehub/ledger/internal/platform/auth"
	"github.com/carehub/ledger/internal/platform/metrics"
	"github.com/carehub/ledger/internal/platform/remote"
)

// Path identifies which write path applied a mutation.
type Path string

const (
	PathNone      Path = "none"
	PathProcedure Path = "procedure"
	PathFallback  Path = "fallback"
)

// Mutation describes one logical write against a single row.
type Mutation struct {
	Entity string
	ID     string

	// Procedure and Args describe the atomic path. An empty Procedure goes
	// straight to the fallback.
	Procedure string
	Args      map[string]any

	// Table and Set describe the fallback row update, conditional on id and
	// Guard. updated_at is stamped automatically.
	Table string
	Set   map[string]any
	Guard []remote.Cond

	// Validate runs before any I/O.
	Validate func() error

	// Audit tasks are queued after the write commits.
	Audit []AuditTask

	// Merge applies the change to the caller's reconciled copy.
	Merge func()
	View  Refresher
}

// Outcome reports how a committed mutation was applied.
type Outcome struct {
	Path     Path
	Affected int64
}

// Updater runs the resilient update protocol.
type Updater struct {
	store   remote.Store
	audit   *AuditQueue
	logger  zerolog.Logger
	metrics *metrics.Ledger
	now     func() time.Time
}

func NewUpdater(store remote.Store, audit *AuditQueue, logger zerolog.Logger, m *metrics.Ledger) *Updater {
	return &Updater{store: store, audit: audit, logger: logger, metrics: m, now: time.Now}
}

// Store exposes the store the updater writes through.
func (u *Updater) Store() remote.Store { return u.store }

// Now returns the updater's clock.
func (u *Updater) Now() time.Time { return u.now() }

// Audit queues a best-effort task outside of a mutation.
func (u *Updater) Audit(task AuditTask) {
	if u.audit != nil {
		u.audit.Enqueue(task)
	}
}

// Apply validates, writes through the procedure or the fallback update,
// checks that a row changed, queues audit tasks, then reconciles the view.
//
// Every surfaced error re-reads the view, at two strengths. A rejected
// mutation (ValidationError, or a TransitionError from Validate) only
// schedules the debounced re-read, so a rejecting call performs no store
// I/O. Write failures and NotAppliedError force a synchronous re-read before
// returning, so the caller's next read reflects the store.
func (u *Updater) Apply(ctx context.Context, actor auth.Actor, m Mutation) (Outcome, error) {
	if err := actor.Authorize(u.now()); err != nil {
		return Outcome{Path: PathNone}, err
	}
	if m.Validate != nil {
		if err := m.Validate(); err != nil {
			u.metrics.ObserveMutation(m.Entity, string(PathNone), "invalid")
			if m.View != nil {
				m.View.ScheduleRefresh()
			}
			return Outcome{Path: PathNone}, err
		}
	}

	out, err := u.write(ctx, m)
	if err != nil {
		u.metrics.ObserveMutation(m.Entity, string(out.Path), outcomeLabel(err))
		u.logger.Error().Err(err).
			Str("entity", m.Entity).
			Str("entity_id", m.ID).
			Str("path", string(out.Path)).
			Str("actor", actor.ID).
			Msg("ledger mutation failed")
		if m.View != nil {
			if rerr := m.View.ForceRefresh(ctx); rerr != nil {
				u.logger.Warn().Err(rerr).Str("entity", m.Entity).Msg("forced refresh after failure did not complete")
			}
		}
		return out, err
	}
	u.metrics.ObserveMutation(m.Entity, string(out.Path), "applied")

	for _, task := range m.Audit {
		u.Audit(task)
	}
	if m.Merge != nil {
		m.Merge()
	}
	if m.View != nil {
		m.View.ScheduleRefresh()
	}
	return out, nil
}

func (u *Updater) write(ctx context.Context, m Mutation) (Outcome, error) {
	var procErr error
	if m.Procedure != "" {
		affected, err := u.store.Call(ctx, m.Procedure, m.Args)
		if err == nil {
			if affected == 0 {
				return Outcome{Path: PathProcedure}, &NotAppliedError{Entity: m.Entity, ID: m.ID, Path: PathProcedure}
			}
			return Outcome{Path: PathProcedure, Affected: affected}, nil
		}
		procErr = &RemoteProcedureError{Procedure: m.Procedure, Err: err}
		u.logger.Warn().Err(procErr).
			Str("entity", m.Entity).
			Str("entity_id", m.ID).
			Msg("remote procedure failed, falling back to direct update")
	}

	set := make(map[string]any, len(m.Set)+1)
	for k, v := range m.Set {
		set[k] = v
	}
	set["updated_at"] = u.now().UTC()

	where := append([]remote.Cond{remote.Eq("id", m.ID)}, m.Guard...)
	affected, err := u.store.Update(ctx, m.Table, set, where...)
	if err != nil {
		return Outcome{Path: PathFallback}, &WriteError{Entity: m.Entity, ID: m.ID, Procedure: procErr, Fallback: err}
	}
	if affected == 0 {
		return Outcome{Path: PathFallback}, &NotAppliedError{Entity: m.Entity, ID: m.ID, Path: PathFallback}
	}
	return Outcome{Path: PathFallback, Affected: affected}, nil
}

func outcomeLabel(err error) string {
	var notApplied *NotAppliedError
	if errors.As(err, &notApplied) {
		return "not_applied"
	}
	return "error"
}
