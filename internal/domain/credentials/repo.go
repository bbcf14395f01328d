package credentials

import (
	"context"
	"fmt"
	"sort"

	"github.com/carehub/ledger/internal/platform/remote"
)

const (
	requestsTable = "credential_requests"
	profilesTable = "doctor_profiles"
	doctorsTable  = "verified_doctors"
	accountsTable = "user_accounts"

	procUpsertDoctor  = "admin_upsert_verified_doctor"
	procRejectRequest = "admin_reject_credential_request"
)

type Repository interface {
	// ListPending returns pending credentials from both origins, oldest first.
	ListPending(ctx context.Context) ([]PendingCredential, error)
	ListDoctors(ctx context.Context) ([]VerifiedDoctor, error)
}

type remoteRepo struct {
	store remote.Store
}

func NewRepository(store remote.Store) Repository {
	return &remoteRepo{store: store}
}

func (r *remoteRepo) ListPending(ctx context.Context) ([]PendingCredential, error) {
	reqRaws, err := r.store.Select(ctx, requestsTable, remote.Eq("status", string(StatusPending)))
	if err != nil {
		return nil, fmt.Errorf("list credential requests: %w", err)
	}
	requests, err := remote.Decode[CredentialRequest](reqRaws)
	if err != nil {
		return nil, err
	}

	profRaws, err := r.store.Select(ctx, profilesTable, remote.Eq("is_approved", false))
	if err != nil {
		return nil, fmt.Errorf("list pending doctor profiles: %w", err)
	}
	profiles, err := remote.Decode[DoctorProfile](profRaws)
	if err != nil {
		return nil, err
	}

	out := make([]PendingCredential, 0, len(requests)+len(profiles))
	for _, row := range requests {
		out = append(out, Normalize(RequestSource{Row: row}))
	}
	for _, row := range profiles {
		out = append(out, Normalize(ProfileSource{Row: row}))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (r *remoteRepo) ListDoctors(ctx context.Context) ([]VerifiedDoctor, error) {
	raws, err := r.store.Select(ctx, doctorsTable)
	if err != nil {
		return nil, fmt.Errorf("list verified doctors: %w", err)
	}
	return remote.Decode[VerifiedDoctor](raws)
}
