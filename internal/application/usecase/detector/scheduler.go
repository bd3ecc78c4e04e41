package detector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
)

const (
	defaultInterval     = 5 * time.Second
	defaultInitialDelay = time.Second
)

// Runner 调度器驱动的检测器
type Runner interface {
	Reload(ctx context.Context) error
	RunPass(ctx context.Context) (*PassResult, error)
}

// Scheduler runs detection passes on a fixed interval, one at a time.
// Ticks that arrive while a pass is running are dropped.
type Scheduler struct {
	runner       Runner
	interval     time.Duration
	initialDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(r Runner, interval, initialDelay time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if initialDelay < 0 {
		initialDelay = defaultInitialDelay
	}
	return &Scheduler{runner: r, interval: interval, initialDelay: initialDelay}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.loop(loopCtx, done)

	log.Info().Dur("interval", s.interval).Msg("scheduler started")
	return nil
}

// Stop cancels the loop and waits for it to exit. A pass already in progress
// runs to completion first.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	<-done
	log.Info().Msg("scheduler stopped")
	return nil
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.cancel()
			s.cancel, s.done = nil, nil
		}
		s.mu.Unlock()
		close(done)
	}()

	first := time.NewTimer(s.initialDelay)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-first.C:
	}
	s.tick(ctx)

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	// 停止调度不打断正在进行的一轮
	passCtx := context.WithoutCancel(ctx)

	res, err := s.runner.RunPass(passCtx)
	if errors.Is(err, ErrNotLoaded) {
		if err := s.runner.Reload(passCtx); err != nil {
			log.Error().Err(err).Msg("market load failed")
			return
		}
		res, err = s.runner.RunPass(passCtx)
	}

	switch {
	case errors.Is(err, ErrPassInFlight):
		log.Debug().Msg("pass in flight, tick dropped")
	case errors.Is(err, ErrPassSkipped):
		// already logged by the detector
	case err != nil:
		log.Error().Err(err).Msg("detection pass failed")
	case len(res.Opportunities) > 0:
		log.Info().
			Int("opportunities", len(res.Opportunities)).
			Int("evaluated", res.Evaluated).
			Int("skipped", res.Skipped).
			Dur("took", res.Duration).
			Msg("pass done")
	default:
		log.Debug().
			Int("evaluated", res.Evaluated).
			Int("skipped", res.Skipped).
			Int("below_threshold", res.BelowThreshold).
			Int("below_minimum", res.BelowMinimum).
			Dur("took", res.Duration).
			Msg("pass done")
	}
}
