package detector

import (
	"context"

	"triarb/internal/application/port"
	"triarb/internal/domain/model"
)

type noopSink struct{}

func NewNoopSink() port.OpportunitySink { return noopSink{} }

func (noopSink) Name() string { return "noop" }

func (noopSink) Publish(ctx context.Context, opp *model.Opportunity) error { return nil }
