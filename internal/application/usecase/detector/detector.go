package detector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"triarb/internal/application/port"
	"triarb/internal/domain/model"
	dsvc "triarb/internal/domain/service"
)

var (
	ErrNotLoaded      = errors.New("market not loaded")
	ErrPassSkipped    = errors.New("detection pass skipped")
	ErrPassInFlight   = errors.New("detection pass already running")
	ErrNoInstruments  = errors.New("no tradable instruments")
	ErrInvalidSetting = errors.New("invalid setting")
)

const (
	defaultWorkers      = 4
	defaultPriceTimeout = 10 * time.Second
)

// Settings 每轮开始时读取的可调参数
type Settings struct {
	StartAmount      decimal.Decimal
	MinProfitPercent decimal.Decimal
	FeeRate          decimal.Decimal
}

type Deps struct {
	Instruments  port.InstrumentSource
	Prices       port.PriceSource
	Sink         port.OpportunitySink
	Evaluator    *dsvc.Evaluator
	Anchors      []string // 起始币种优先级，如 USDT
	Workers      int
	PriceTimeout time.Duration
	Settings     Settings
}

// Market 一次加载得到的不可变市场：目录 + 循环
type Market struct {
	Catalog  *dsvc.Catalog
	Cycles   []model.Cycle
	Symbols  []string // 循环中用到的交易对，每轮只拉这些报价
	Rejected []dsvc.RejectedInstrument
	LoadedAt time.Time
}

// PassResult 一轮检测的统计
type PassResult struct {
	StartedAt      time.Time
	Duration       time.Duration
	Quotes         int
	Evaluated      int
	Skipped        int
	BelowThreshold int
	BelowMinimum   int
	Opportunities  []*model.Opportunity
}

type Detector struct {
	deps Deps
	eval *dsvc.Evaluator

	market atomic.Pointer[Market]
	last   atomic.Pointer[PassResult]
	guard  *semaphore.Weighted

	mu       sync.RWMutex
	settings Settings

	now func() time.Time
}

func New(deps Deps) *Detector {
	if deps.Workers <= 0 {
		deps.Workers = defaultWorkers
	}
	if deps.PriceTimeout <= 0 {
		deps.PriceTimeout = defaultPriceTimeout
	}
	if deps.Sink == nil {
		deps.Sink = NewNoopSink()
	}
	eval := deps.Evaluator
	if eval == nil {
		eval = dsvc.NewEvaluator()
	}
	return &Detector{
		deps:     deps,
		eval:     eval,
		guard:    semaphore.NewWeighted(1),
		settings: deps.Settings,
		now:      time.Now,
	}
}

// Reload fetches instruments, rebuilds the catalog and cycle set and swaps
// them in. On any failure the previously loaded market stays active.
func (d *Detector) Reload(ctx context.Context) error {
	instruments, err := d.deps.Instruments.ListActiveInstruments(ctx)
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}

	cat, rejected := dsvc.NewCatalog(instruments)
	for _, r := range rejected {
		log.Warn().Str("symbol", r.Symbol).Str("reason", r.Reason).Msg("instrument dropped")
	}
	if cat.Len() == 0 {
		return fmt.Errorf("load instruments: %w", ErrNoInstruments)
	}

	cycles := dsvc.BuildCycles(cat, d.deps.Anchors...)
	m := &Market{
		Catalog:  cat,
		Cycles:   cycles,
		Symbols:  cycleSymbols(cycles),
		Rejected: rejected,
		LoadedAt: d.now(),
	}
	d.market.Store(m)

	log.Info().
		Int("instruments", cat.Len()).
		Int("currencies", len(cat.Currencies())).
		Int("cycles", len(cycles)).
		Int("rejected", len(rejected)).
		Msg("market loaded")
	return nil
}

// Market 当前市场，未加载时为 nil
func (d *Detector) Market() *Market { return d.market.Load() }

// LastPass 最近一次成功完成的检测
func (d *Detector) LastPass() *PassResult { return d.last.Load() }

func (d *Detector) Settings() Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// SetStartAmount takes effect from the next pass.
func (d *Detector) SetStartAmount(v decimal.Decimal) error {
	if !v.IsPositive() {
		return fmt.Errorf("%w: start amount must be positive", ErrInvalidSetting)
	}
	d.mu.Lock()
	d.settings.StartAmount = v
	d.mu.Unlock()
	return nil
}

// SetMinProfitPercent takes effect from the next pass.
func (d *Detector) SetMinProfitPercent(v decimal.Decimal) error {
	if v.IsNegative() {
		return fmt.Errorf("%w: min profit percent must not be negative", ErrInvalidSetting)
	}
	d.mu.Lock()
	d.settings.MinProfitPercent = v
	d.mu.Unlock()
	return nil
}

// RunPass refreshes prices once and evaluates every cycle of the current
// market. Missing quotes only skip the affected cycles; a failed price fetch
// skips the whole pass with ErrPassSkipped.
func (d *Detector) RunPass(ctx context.Context) (*PassResult, error) {
	if !d.guard.TryAcquire(1) {
		return nil, ErrPassInFlight
	}
	defer d.guard.Release(1)

	m := d.market.Load()
	if m == nil {
		return nil, ErrNotLoaded
	}
	s := d.Settings()
	params := dsvc.EvalParams{
		StartAmount:      s.StartAmount,
		MinProfitPercent: s.MinProfitPercent,
		FeeRate:          s.FeeRate,
	}

	res := &PassResult{StartedAt: d.now()}

	fetchCtx, cancel := context.WithTimeout(ctx, d.deps.PriceTimeout)
	snap, err := d.deps.Prices.FetchTickers(fetchCtx, m.Symbols)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("source", d.deps.Prices.Name()).Msg("price fetch failed, pass skipped")
		return nil, fmt.Errorf("%w: %w", ErrPassSkipped, err)
	}
	res.Quotes = len(snap)

	type evalResult struct {
		opp *model.Opportunity
		out dsvc.Outcome
	}
	results := make([]evalResult, len(m.Cycles))

	var g errgroup.Group
	g.SetLimit(d.deps.Workers)
	for i := range m.Cycles {
		g.Go(func() error {
			opp, out := d.eval.Evaluate(m.Cycles[i], m.Catalog, snap, params)
			results[i] = evalResult{opp: opp, out: out}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		res.Evaluated++
		switch r.out {
		case dsvc.OutcomeAccepted:
			res.Opportunities = append(res.Opportunities, r.opp)
		case dsvc.OutcomeNoData:
			res.Skipped++
		case dsvc.OutcomeBelowThreshold:
			res.BelowThreshold++
		case dsvc.OutcomeBelowMinimum:
			res.BelowMinimum++
		}
	}

	for _, opp := range res.Opportunities {
		if err := d.deps.Sink.Publish(ctx, opp); err != nil {
			log.Error().Err(err).Str("sink", d.deps.Sink.Name()).Str("cycle", opp.Cycle.Key()).Msg("publish opportunity failed")
		}
	}

	res.Duration = d.now().Sub(res.StartedAt)
	d.last.Store(res)
	return res, nil
}

func cycleSymbols(cycles []model.Cycle) []string {
	seen := make(map[string]struct{})
	for _, c := range cycles {
		for _, leg := range c.Legs {
			seen[leg.Symbol] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
