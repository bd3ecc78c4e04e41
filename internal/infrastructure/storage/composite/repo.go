package composite

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"triarb/internal/application/port"
	"triarb/internal/domain/model"
)

// Sink 依次投递给所有下游，单个失败不影响其余
type Sink struct {
	sinks []port.OpportunitySink
}

func New(sinks ...port.OpportunitySink) *Sink {
	// nil sinks are allowed; filter in constructor for safety
	out := make([]port.OpportunitySink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Sink{sinks: out}
}

func (s *Sink) Name() string { return "composite" }

func (s *Sink) Len() int { return len(s.sinks) }

func (s *Sink) Publish(ctx context.Context, opp *model.Opportunity) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, opp); err != nil {
			log.Warn().Str("sink", sink.Name()).Str("opportunity", opp.ID).Err(err).Msg("publish failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", sink.Name(), err)
			}
		}
	}
	return firstErr
}

var _ port.OpportunitySink = (*Sink)(nil)
