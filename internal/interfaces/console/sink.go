package console

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"triarb/internal/application/port"
	"triarb/internal/application/usecase/detector"
	"triarb/internal/domain/model"
)

// Sink 控制台输出：每个机会一条结构化日志，完整明细走 debug
type Sink struct {
	logger zerolog.Logger
	fmt    *detector.Formatter
}

func NewSink() *Sink { return NewSinkWith(log.Logger) }

func NewSinkWith(l zerolog.Logger) *Sink {
	return &Sink{logger: l, fmt: detector.NewFormatter()}
}

func (s *Sink) Name() string { return "console" }

func (s *Sink) Publish(_ context.Context, opp *model.Opportunity) error {
	s.logger.Info().
		Str("id", opp.ID).
		Str("path", opp.Cycle.Path()).
		Str("start", opp.StartAmount.String()).
		Str("final", opp.FinalAmount.String()).
		Str("profit_pct", opp.ProfitPercent.StringFixed(4)).
		Strs("symbols", []string{opp.Legs[0].Symbol, opp.Legs[1].Symbol, opp.Legs[2].Symbol}).
		Msg(s.fmt.Line(opp))
	s.logger.Debug().Str("id", opp.ID).Msg("\n" + s.fmt.Render(opp, detector.RenderPlain))
	return nil
}

var _ port.OpportunitySink = (*Sink)(nil)
