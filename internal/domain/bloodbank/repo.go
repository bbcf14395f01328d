package bloodbank

import (
	"context"
	"fmt"

	"github.com/carehub/ledger/internal/platform/remote"
)

// kind names the table and procedure behind one reviewable collection.
type kind struct {
	entity    string
	table     string
	procedure string
}

var (
	donorKind   = kind{entity: "blood_donor", table: "blood_donors", procedure: "admin_review_blood_donor"}
	requestKind = kind{entity: "blood_request", table: "blood_requests", procedure: "admin_review_blood_request"}
)

type Repository interface {
	ListDonors(ctx context.Context) ([]Donor, error)
	ListRequests(ctx context.Context) ([]Request, error)
}

type remoteRepo struct {
	store remote.Store
}

func NewRepository(store remote.Store) Repository {
	return &remoteRepo{store: store}
}

func (r *remoteRepo) ListDonors(ctx context.Context) ([]Donor, error) {
	raws, err := r.store.Select(ctx, donorKind.table)
	if err != nil {
		return nil, fmt.Errorf("list blood donors: %w", err)
	}
	return remote.Decode[Donor](raws)
}

func (r *remoteRepo) ListRequests(ctx context.Context) ([]Request, error) {
	raws, err := r.store.Select(ctx, requestKind.table)
	if err != nil {
		return nil, fmt.Errorf("list blood requests: %w", err)
	}
	return remote.Decode[Request](raws)
}
