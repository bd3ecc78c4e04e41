package detector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"triarb/internal/domain/model"
)

type fakeInstruments struct {
	mu   sync.Mutex
	list []model.Instrument
	err  error
}

func (f *fakeInstruments) ListActiveInstruments(ctx context.Context) ([]model.Instrument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list, f.err
}

func (f *fakeInstruments) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakePrices struct {
	snap    model.PriceSnapshot
	err     error
	entered chan struct{}
	release chan struct{}
	symbols []string
}

func (f *fakePrices) Name() string { return "fake" }

func (f *fakePrices) FetchTickers(ctx context.Context, symbols []string) (model.PriceSnapshot, error) {
	f.symbols = symbols
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.snap, f.err
}

type recordingSink struct {
	mu   sync.Mutex
	opps []*model.Opportunity
	err  error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(ctx context.Context, opp *model.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opps = append(s.opps, opp)
	return s.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func instrument(base, quote, minQty string) model.Instrument {
	return model.Instrument{
		Symbol:        model.PairSymbol(base, quote),
		BaseCurrency:  base,
		QuoteCurrency: quote,
		MinOrderQty:   dec(minQty),
		Status:        model.InstrumentStatusTrading,
	}
}

func testInstruments() []model.Instrument {
	return []model.Instrument{
		instrument("BTC", "USDT", "0.0001"),
		instrument("ETH", "BTC", "0.01"),
		instrument("ETH", "USDT", "0.001"),
		instrument("SOL", "USDT", "0.01"),
		instrument("SOL", "BTC", "0.01"),
	}
}

// SOL quotes are missing on purpose
func testSnapshot() model.PriceSnapshot {
	return model.PriceSnapshot{
		"BTCUSDT": {BestBid: dec("9.9"), BestAsk: dec("10")},
		"ETHBTC":  {BestBid: dec("4.9"), BestAsk: dec("5")},
		"ETHUSDT": {BestBid: dec("51"), BestAsk: dec("51.5")},
	}
}

func newTestDetector(src *fakeInstruments, prices *fakePrices, sink *recordingSink) *Detector {
	return New(Deps{
		Instruments: src,
		Prices:      prices,
		Sink:        sink,
		Anchors:     []string{"USDT"},
		Workers:     2,
		Settings: Settings{
			StartAmount:      dec("100"),
			MinProfitPercent: dec("0.5"),
		},
	})
}

func TestRunPassBeforeLoad(t *testing.T) {
	d := newTestDetector(&fakeInstruments{}, &fakePrices{}, &recordingSink{})
	if _, err := d.RunPass(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestRunPassFindsOpportunity(t *testing.T) {
	sink := &recordingSink{}
	prices := &fakePrices{snap: testSnapshot()}
	d := newTestDetector(&fakeInstruments{list: testInstruments()}, prices, sink)

	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	m := d.Market()
	if len(m.Cycles) != 4 {
		t.Fatalf("expected 4 cycles, got %d", len(m.Cycles))
	}
	if len(prices.symbols) != 0 {
		t.Fatal("reload should not fetch prices")
	}

	res, err := d.RunPass(context.Background())
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if res.Evaluated != 4 {
		t.Errorf("evaluated = %d, want 4", res.Evaluated)
	}
	// both SOL cycles lack quotes, the rest are still evaluated
	if res.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", res.Skipped)
	}
	if len(res.Opportunities) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(res.Opportunities))
	}
	opp := res.Opportunities[0]
	if opp.Cycle.Key() != "USDT>BTC>ETH" {
		t.Errorf("unexpected cycle %s", opp.Cycle.Key())
	}
	if !opp.FinalAmount.Equal(dec("102")) || !opp.ProfitPercent.Equal(dec("2")) {
		t.Errorf("unexpected result final=%s pct=%s", opp.FinalAmount, opp.ProfitPercent)
	}
	if len(sink.opps) != 1 || sink.opps[0] != opp {
		t.Errorf("sink should receive the opportunity, got %d", len(sink.opps))
	}
	if d.LastPass() != res {
		t.Error("last pass should be recorded")
	}

	wantSymbols := []string{"BTCUSDT", "ETHBTC", "ETHUSDT", "SOLBTC", "SOLUSDT"}
	if len(prices.symbols) != len(wantSymbols) {
		t.Fatalf("fetched symbols %v, want %v", prices.symbols, wantSymbols)
	}
	for i := range wantSymbols {
		if prices.symbols[i] != wantSymbols[i] {
			t.Errorf("fetched symbols %v, want %v", prices.symbols, wantSymbols)
			break
		}
	}
}

func TestReloadFailureKeepsMarket(t *testing.T) {
	src := &fakeInstruments{list: testInstruments()}
	d := newTestDetector(src, &fakePrices{snap: testSnapshot()}, &recordingSink{})

	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	before := d.Market()

	cause := errors.New("exchange down")
	src.fail(cause)
	if err := d.Reload(context.Background()); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if d.Market() != before {
		t.Fatal("failed reload must keep the previous market")
	}
	if _, err := d.RunPass(context.Background()); err != nil {
		t.Fatalf("pass after failed reload: %v", err)
	}
}

func TestReloadEmptyCatalog(t *testing.T) {
	d := newTestDetector(&fakeInstruments{}, &fakePrices{}, &recordingSink{})
	if err := d.Reload(context.Background()); !errors.Is(err, ErrNoInstruments) {
		t.Fatalf("expected ErrNoInstruments, got %v", err)
	}
	if d.Market() != nil {
		t.Error("market should stay unloaded")
	}
}

func TestRunPassPriceFailure(t *testing.T) {
	cause := errors.New("timeout")
	sink := &recordingSink{}
	d := newTestDetector(&fakeInstruments{list: testInstruments()}, &fakePrices{err: cause}, sink)
	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	_, err := d.RunPass(context.Background())
	if !errors.Is(err, ErrPassSkipped) || !errors.Is(err, cause) {
		t.Fatalf("expected ErrPassSkipped wrapping cause, got %v", err)
	}
	if len(sink.opps) != 0 {
		t.Error("skipped pass must not publish")
	}
}

func TestRunPassPriceTimeout(t *testing.T) {
	prices := &fakePrices{snap: testSnapshot(), release: make(chan struct{})}
	d := newTestDetector(&fakeInstruments{list: testInstruments()}, prices, &recordingSink{})
	d.deps.PriceTimeout = 20 * time.Millisecond
	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	_, err := d.RunPass(context.Background())
	if !errors.Is(err, ErrPassSkipped) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected skipped pass on deadline, got %v", err)
	}
}

func TestRunPassSinkErrorDoesNotAbort(t *testing.T) {
	sink := &recordingSink{err: errors.New("telegram down")}
	d := newTestDetector(&fakeInstruments{list: testInstruments()}, &fakePrices{snap: testSnapshot()}, sink)
	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	res, err := d.RunPass(context.Background())
	if err != nil {
		t.Fatalf("sink error must not fail the pass: %v", err)
	}
	if len(res.Opportunities) != 1 || len(sink.opps) != 1 {
		t.Errorf("expected 1 opportunity delivered, got %d/%d", len(res.Opportunities), len(sink.opps))
	}
}

func TestSettingsApplyToNextPass(t *testing.T) {
	d := newTestDetector(&fakeInstruments{list: testInstruments()}, &fakePrices{snap: testSnapshot()}, &recordingSink{})
	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if err := d.SetStartAmount(decimal.Zero); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("zero start amount should be rejected, got %v", err)
	}
	if err := d.SetMinProfitPercent(dec("-1")); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("negative threshold should be rejected, got %v", err)
	}

	if err := d.SetMinProfitPercent(dec("3")); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
	res, err := d.RunPass(context.Background())
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if len(res.Opportunities) != 0 || res.BelowThreshold != 2 {
		t.Errorf("2%% cycle must not pass a 3%% threshold: %+v", res)
	}

	if err := d.SetMinProfitPercent(dec("0.5")); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
	if err := d.SetStartAmount(dec("0.001")); err != nil {
		t.Fatalf("set amount: %v", err)
	}
	res, err = d.RunPass(context.Background())
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if len(res.Opportunities) != 0 || res.BelowMinimum != 1 {
		t.Errorf("tiny start amount should fail minimums: %+v", res)
	}
}

func TestRunPassSingleFlight(t *testing.T) {
	prices := &fakePrices{
		snap:    testSnapshot(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	d := newTestDetector(&fakeInstruments{list: testInstruments()}, prices, &recordingSink{})
	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := d.RunPass(context.Background())
		errc <- err
	}()
	<-prices.entered

	if _, err := d.RunPass(context.Background()); !errors.Is(err, ErrPassInFlight) {
		t.Fatalf("expected ErrPassInFlight, got %v", err)
	}

	close(prices.release)
	if err := <-errc; err != nil {
		t.Fatalf("first pass: %v", err)
	}
}
