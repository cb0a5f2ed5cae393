package profile

import (
	"context"

	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
)

// store is the consumer interface (ISP)
type store interface {
	SaveProfile(ctx context.Context, p applicant.Profile) (bool, error)
	GetProfile(ctx context.Context, ownerID, id string) (applicant.Profile, error)
	DeleteProfile(ctx context.Context, ownerID, id string) error
}
