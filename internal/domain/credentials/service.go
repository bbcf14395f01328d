package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
	"github.com/carehub/ledger/internal/platform/remote"
)

// Orchestrator runs the approval, rejection and removal workflows. Each
// workflow has exactly one critical write; anything after it is best-effort
// and reported in the result rather than as an error.
type Orchestrator struct {
	updater *ledger.Updater
	store   remote.Store
	logger  zerolog.Logger
	pending *ledger.Collection[PendingCredential]
	doctors *ledger.Collection[VerifiedDoctor]
	newID   func() string
}

func NewOrchestrator(repo Repository, updater *ledger.Updater, logger zerolog.Logger, opts ledger.CollectionOptions) *Orchestrator {
	return &Orchestrator{
		updater: updater,
		store:   updater.Store(),
		logger:  logger,
		pending: ledger.NewCollection("pending_credentials", repo.ListPending, PendingCredential.Key, opts),
		doctors: ledger.NewCollection(doctorsTable, repo.ListDoctors, func(d VerifiedDoctor) string { return d.ID }, opts),
		newID:   uuid.NewString,
	}
}

func (o *Orchestrator) Collections() []ledger.Refreshable {
	return []ledger.Refreshable{o.pending, o.doctors}
}

func (o *Orchestrator) Stop() {
	o.pending.Stop()
	o.doctors.Stop()
}

func (o *Orchestrator) ListPending(ctx context.Context, actor auth.Actor) ([]PendingCredential, error) {
	if err := actor.Authorize(o.updater.Now()); err != nil {
		return nil, err
	}
	return o.pending.Snapshot(ctx)
}

func (o *Orchestrator) ListDoctors(ctx context.Context, actor auth.Actor) ([]VerifiedDoctor, error) {
	if err := actor.Authorize(o.updater.Now()); err != nil {
		return nil, err
	}
	return o.doctors.Snapshot(ctx)
}

func (o *Orchestrator) lookupPending(ctx context.Context, origin Origin, id string) (PendingCredential, error) {
	p, err := o.pending.Lookup(ctx, pendingKey(origin, id))
	if err != nil {
		return p, fmt.Errorf("pending credential: %w", err)
	}
	return p, nil
}

// Approve promotes a pending credential. The verified profile upsert is
// critical: if it fails nothing else is written. Stamping the request row
// afterwards is best-effort.
func (o *Orchestrator) Approve(ctx context.Context, actor auth.Actor, origin Origin, id string, terms Terms) (ApprovalResult, error) {
	now := o.updater.Now()
	if err := actor.Authorize(now); err != nil {
		return ApprovalResult{}, err
	}
	p, err := o.lookupPending(ctx, origin, id)
	if err != nil {
		return ApprovalResult{}, err
	}
	if err := Machine.Validate(p.Status, StatusApproved); err != nil {
		o.pending.ScheduleRefresh()
		return ApprovalResult{}, err
	}

	if p.ApplicantID == "" {
		p.ApplicantID = o.newID()
	}
	doctor, err := p.Listing(terms, actor.ID, now)
	if err != nil {
		o.pending.ScheduleRefresh()
		return ApprovalResult{}, err
	}

	affected, err := o.store.Call(ctx, procUpsertDoctor, map[string]any{
		"p_user_id":          doctor.UserID,
		"p_name":             doctor.Name,
		"p_email":            doctor.Email,
		"p_phone":            doctor.Phone,
		"p_specialization":   doctor.Specialization,
		"p_hospital":         doctor.Hospital,
		"p_experience_years": doctor.ExperienceYears,
		"p_consultation_fee": doctor.ConsultationFee.String(),
		"p_license_number":   doctor.LicenseNumber,
		"p_profile_id":       profileID(p),
		"p_actor":            actor.ID,
	})
	if err == nil && affected == 0 {
		err = &ledger.NotAppliedError{Entity: "verified_doctor", ID: doctor.UserID, Path: ledger.PathProcedure}
	} else if err != nil {
		err = &ledger.RemoteProcedureError{Procedure: procUpsertDoctor, Err: err}
	}
	if err != nil {
		o.logger.Error().Err(err).
			Str("origin", string(origin)).
			Str("source_id", id).
			Str("actor", actor.ID).
			Msg("doctor approval aborted")
		o.forceRefresh(ctx, o.pending)
		return ApprovalResult{}, err
	}

	doctor.ID = doctor.UserID
	result := ApprovalResult{Doctor: doctor, RequestMarked: origin == OriginProfile}
	if origin == OriginRequest {
		result.RequestMarked = o.markRequest(ctx, id, StatusApproved, actor.ID, now)
	}

	o.updater.Audit(ledger.TrailTask(o.store, ledger.TrailEntry{
		Entity: Machine.Entity(), EntityID: id, NewStatus: string(StatusApproved), Message: doctor.Specialization, Actor: actor.ID, RecordedAt: now,
	}))
	o.pending.Remove(p.Key())
	o.doctors.Merge(doctor.ID, doctor)
	o.pending.ScheduleRefresh()
	o.doctors.ScheduleRefresh()
	return result, nil
}

// markRequest stamps the request row after the profile has been committed.
// It reports whether the row changed and never fails the caller.
func (o *Orchestrator) markRequest(ctx context.Context, id string, status ledger.Status, actor string, now time.Time) bool {
	n, err := o.store.Update(ctx, requestsTable, map[string]any{
		"status":      string(status),
		"reviewed_by": actor,
		"reviewed_at": now.UTC(),
	}, remote.Eq("id", id), remote.Eq("status", string(StatusPending)))
	if err == nil && n == 0 {
		err = errors.New("no pending request row matched")
	}
	if err != nil {
		o.logger.Warn().Err(err).
			Str("entity", Machine.Entity()).
			Str("entity_id", id).
			Msg("verified profile committed but request row not marked")
		return false
	}
	return true
}

// Reject performs the single critical write for the credential's origin:
// a request row is marked rejected, a pending profile row is deleted.
func (o *Orchestrator) Reject(ctx context.Context, actor auth.Actor, origin Origin, id, reason string) (ledger.Outcome, error) {
	now := o.updater.Now()
	if err := actor.Authorize(now); err != nil {
		return ledger.Outcome{Path: ledger.PathNone}, err
	}
	p, err := o.lookupPending(ctx, origin, id)
	if err != nil {
		return ledger.Outcome{Path: ledger.PathNone}, err
	}

	var out ledger.Outcome
	switch origin {
	case OriginRequest:
		out, err = o.updater.Apply(ctx, actor, ledger.Mutation{
			Entity:    Machine.Entity(),
			ID:        id,
			Procedure: procRejectRequest,
			Args:      map[string]any{"p_request_id": id, "p_reason": reason, "p_actor": actor.ID},
			Table:     requestsTable,
			Set:       map[string]any{"status": string(StatusRejected), "reviewed_by": actor.ID, "reviewed_at": now.UTC()},
			Guard:     []remote.Cond{remote.Eq("status", string(StatusPending))},
			Validate:  func() error { return Machine.Validate(p.Status, StatusRejected) },
			Audit: []ledger.AuditTask{ledger.TrailTask(o.store, ledger.TrailEntry{
				Entity: Machine.Entity(), EntityID: id, NewStatus: string(StatusRejected), Message: reason, Actor: actor.ID, RecordedAt: now,
			})},
			Merge: func() { o.pending.Remove(p.Key()) },
			View:  o.pending,
		})
	case OriginProfile:
		out, err = o.deletePendingProfile(ctx, actor, p, reason, now)
	default:
		err = &ledger.ValidationError{Entity: Machine.Entity(), Field: "origin", Reason: fmt.Sprintf("unknown origin %q", origin)}
	}
	return out, err
}

func (o *Orchestrator) deletePendingProfile(ctx context.Context, actor auth.Actor, p PendingCredential, reason string, now time.Time) (ledger.Outcome, error) {
	if err := Machine.Validate(p.Status, StatusRejected); err != nil {
		o.pending.ScheduleRefresh()
		return ledger.Outcome{Path: ledger.PathNone}, err
	}
	n, err := o.store.Delete(ctx, profilesTable, remote.Eq("id", p.SourceID), remote.Eq("is_approved", false))
	if err == nil && n == 0 {
		err = &ledger.NotAppliedError{Entity: "doctor_profile", ID: p.SourceID, Path: ledger.PathFallback}
	}
	if err != nil {
		o.forceRefresh(ctx, o.pending)
		return ledger.Outcome{Path: ledger.PathFallback}, err
	}

	o.updater.Audit(ledger.TrailTask(o.store, ledger.TrailEntry{
		Entity: "doctor_profile", EntityID: p.SourceID, NewStatus: string(StatusRejected), Message: reason, Actor: actor.ID, RecordedAt: now,
	}))
	o.pending.Remove(p.Key())
	o.pending.ScheduleRefresh()
	return ledger.Outcome{Path: ledger.PathFallback, Affected: n}, nil
}

// RemoveDoctor delists an approved doctor. Deleting the listing is critical;
// demoting a doctor account back to patient is best-effort.
func (o *Orchestrator) RemoveDoctor(ctx context.Context, actor auth.Actor, doctorID string) (RemovalResult, error) {
	now := o.updater.Now()
	if err := actor.Authorize(now); err != nil {
		return RemovalResult{}, err
	}
	doctor, err := o.doctors.Lookup(ctx, doctorID)
	if err != nil {
		return RemovalResult{}, err
	}

	n, err := o.store.Delete(ctx, doctorsTable, remote.Eq("id", doctorID))
	if err == nil && n == 0 {
		err = &ledger.NotAppliedError{Entity: "verified_doctor", ID: doctorID, Path: ledger.PathFallback}
	}
	if err != nil {
		o.forceRefresh(ctx, o.doctors)
		return RemovalResult{}, err
	}
	o.doctors.Remove(doctorID)
	o.doctors.ScheduleRefresh()

	result := RemovalResult{DoctorID: doctorID}
	if doctor.UserID != "" {
		// Only doctor accounts are demoted; admins and others keep their role.
		n, err := o.store.Update(ctx, accountsTable,
			map[string]any{"role": auth.RolePatient, "updated_at": now.UTC()},
			remote.Eq("id", doctor.UserID), remote.Eq("role", auth.RoleDoctor))
		switch {
		case err != nil:
			o.logger.Warn().Err(err).Str("user_id", doctor.UserID).Msg("doctor removed but account role not demoted")
		case n == 0:
			o.logger.Info().Str("user_id", doctor.UserID).Msg("doctor removed; account holds no doctor role to demote")
		default:
			result.AccountDemoted = true
		}
	}

	o.updater.Audit(ledger.TrailTask(o.store, ledger.TrailEntry{
		Entity: "verified_doctor", EntityID: doctorID, NewStatus: "removed", Actor: actor.ID, RecordedAt: now,
	}))
	return result, nil
}

func (o *Orchestrator) forceRefresh(ctx context.Context, v ledger.Refresher) {
	if err := v.ForceRefresh(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("forced refresh after failure did not complete")
	}
}

func profileID(p PendingCredential) any {
	if p.Origin == OriginProfile {
		return p.SourceID
	}
	return nil
}
