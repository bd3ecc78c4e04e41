package port

import (
	"context"

	"triarb/internal/domain/model"
)

// OpportunitySink receives every accepted opportunity of a pass. Delivery
// errors are logged by the caller and never abort the pass.
type OpportunitySink interface {
	Name() string
	Publish(ctx context.Context, opp *model.Opportunity) error
}
