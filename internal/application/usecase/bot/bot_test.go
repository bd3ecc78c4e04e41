package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"triarb/internal/application/port"
	"triarb/internal/application/usecase/detector"
	"triarb/internal/domain/model"
	dsvc "triarb/internal/domain/service"
)

type fakeDetector struct {
	market    *detector.Market
	reloadErr error
	reloads   int
	settings  detector.Settings
}

func (f *fakeDetector) Reload(ctx context.Context) error {
	f.reloads++
	if f.reloadErr != nil {
		return f.reloadErr
	}
	cat, _ := dsvc.NewCatalog([]model.Instrument{{
		Symbol: "BTCUSDT", BaseCurrency: "BTC", QuoteCurrency: "USDT",
		MinOrderQty: decimal.RequireFromString("0.0001"),
	}})
	f.market = &detector.Market{Catalog: cat}
	return nil
}

func (f *fakeDetector) Market() *detector.Market { return f.market }

func (f *fakeDetector) LastPass() *detector.PassResult { return nil }

func (f *fakeDetector) Settings() detector.Settings { return f.settings }

func (f *fakeDetector) SetStartAmount(v decimal.Decimal) error {
	if !v.IsPositive() {
		return detector.ErrInvalidSetting
	}
	f.settings.StartAmount = v
	return nil
}

func (f *fakeDetector) SetMinProfitPercent(v decimal.Decimal) error {
	if v.IsNegative() {
		return detector.ErrInvalidSetting
	}
	f.settings.MinProfitPercent = v
	return nil
}

type fakeScheduler struct{ running bool }

func (f *fakeScheduler) Start(ctx context.Context) error {
	if f.running {
		return detector.ErrAlreadyRunning
	}
	f.running = true
	return nil
}

func (f *fakeScheduler) Stop() error {
	if !f.running {
		return detector.ErrNotRunning
	}
	f.running = false
	return nil
}

func (f *fakeScheduler) Running() bool { return f.running }

type fakeBalance struct{}

func (fakeBalance) USDTBalance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.RequireFromString("1234.567"), nil
}

const admin = int64(42)

func newTestBot() (*Bot, *fakeDetector, *fakeScheduler) {
	det := &fakeDetector{settings: detector.Settings{
		StartAmount:      decimal.NewFromInt(100),
		MinProfitPercent: decimal.RequireFromString("0.5"),
	}}
	sch := &fakeScheduler{}
	return New(Deps{Detector: det, Scheduler: sch, Balance: fakeBalance{}, AdminChatID: admin}), det, sch
}

func msg(user int64, text string) port.ChatMessage {
	return port.ChatMessage{ChatID: user, UserID: user, UserName: "Ann", Text: text}
}

func TestStartLoadsMarketOnce(t *testing.T) {
	b, det, _ := newTestBot()

	out := b.Handle(context.Background(), msg(7, "/start"))
	if len(out) != 2 || !strings.Contains(out[0], "Hi, Ann") || !strings.Contains(out[1], "1 pairs") {
		t.Fatalf("unexpected replies %q", out)
	}
	b.Handle(context.Background(), msg(7, "/start"))
	if det.reloads != 1 {
		t.Errorf("market should load once, got %d", det.reloads)
	}
}

func TestStatus(t *testing.T) {
	b, _, sch := newTestBot()
	sch.running = true

	out := b.Handle(context.Background(), msg(7, "/status"))
	if len(out) != 1 {
		t.Fatalf("expected one reply, got %q", out)
	}
	for _, want := range []string{"✅ running", "*Pairs tracked:* 0", "*Start amount:* 100", "1234.57 USDT"} {
		if !strings.Contains(out[0], want) {
			t.Errorf("status missing %q:\n%s", want, out[0])
		}
	}
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	b, det, sch := newTestBot()
	for _, cmd := range []string{"/set_amount 50", "/set_profit 1", "/reload", "/start_arb", "/stop_arb"} {
		out := b.Handle(context.Background(), msg(7, cmd))
		if len(out) != 1 || !strings.Contains(out[0], "not allowed") {
			t.Errorf("%s: expected refusal, got %q", cmd, out)
		}
	}
	if sch.running || det.reloads != 0 || !det.settings.StartAmount.Equal(decimal.NewFromInt(100)) {
		t.Error("refused commands must not change state")
	}
}

func TestSetAmountAndProfit(t *testing.T) {
	b, det, _ := newTestBot()
	ctx := context.Background()

	if out := b.Handle(ctx, msg(admin, "/set_amount 250,5")); !strings.Contains(out[0], "250.5") {
		t.Errorf("unexpected reply %q", out)
	}
	if !det.settings.StartAmount.Equal(decimal.RequireFromString("250.5")) {
		t.Errorf("start amount = %s", det.settings.StartAmount)
	}
	if out := b.Handle(ctx, msg(admin, "/set_amount -1")); !strings.Contains(out[0], "greater than zero") {
		t.Errorf("negative amount should be rejected, got %q", out)
	}
	if out := b.Handle(ctx, msg(admin, "/set_amount abc")); !strings.Contains(out[0], "Usage") {
		t.Errorf("bad amount should show usage, got %q", out)
	}
	if out := b.Handle(ctx, msg(admin, "/set_profit@TriBot 0")); !strings.Contains(out[0], "set to 0%") {
		t.Errorf("unexpected reply %q", out)
	}
	if !det.settings.MinProfitPercent.IsZero() {
		t.Errorf("min profit = %s", det.settings.MinProfitPercent)
	}
}

func TestStartStopArb(t *testing.T) {
	b, det, sch := newTestBot()
	ctx := context.Background()

	if out := b.Handle(ctx, msg(admin, "/stop_arb")); !strings.Contains(out[0], "not running") {
		t.Errorf("unexpected reply %q", out)
	}
	if out := b.Handle(ctx, msg(admin, "/start_arb")); !strings.Contains(out[0], "started") {
		t.Errorf("unexpected reply %q", out)
	}
	if !sch.running || det.market == nil {
		t.Error("start_arb should load markets and start the scheduler")
	}
	if out := b.Handle(ctx, msg(admin, "/start_arb")); !strings.Contains(out[0], "already running") {
		t.Errorf("unexpected reply %q", out)
	}
	if out := b.Handle(ctx, msg(admin, "/stop_arb")); !strings.Contains(out[0], "stopped") {
		t.Errorf("unexpected reply %q", out)
	}
}

func TestStartArbLoadFailure(t *testing.T) {
	b, det, sch := newTestBot()
	det.reloadErr = errors.New("bybit down")

	out := b.Handle(context.Background(), msg(admin, "/start_arb"))
	if !strings.Contains(out[0], "Failed to load") || sch.running {
		t.Errorf("scheduler must not start without markets: %q", out)
	}
}

func TestParseCommand(t *testing.T) {
	cmd, args := parseCommand("  /Set_Amount@bot  10  ")
	if cmd != "set_amount" || len(args) != 1 || args[0] != "10" {
		t.Errorf("got %q %v", cmd, args)
	}
	if cmd, _ := parseCommand("hello"); cmd != "" {
		t.Errorf("plain text is not a command, got %q", cmd)
	}
}

type fakeTransport struct {
	mu      sync.Mutex
	batches [][]port.ChatMessage
	offsets []int64
	sent    []string
}

func (f *fakeTransport) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]port.ChatMessage, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	if len(f.batches) > 0 {
		next := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return next, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func TestRunAdvancesOffset(t *testing.T) {
	tr := &fakeTransport{batches: [][]port.ChatMessage{
		{{UpdateID: 10, ChatID: 7, UserID: 7, Text: "/status"}, {UpdateID: 11}},
	}}
	b, _, _ := newTestBot()
	b.deps.Transport = tr

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := b.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run should end with ctx error, got %v", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.offsets) < 2 || tr.offsets[0] != 0 || tr.offsets[1] != 12 {
		t.Errorf("unexpected offsets %v", tr.offsets)
	}
	if len(tr.sent) != 1 || !strings.Contains(tr.sent[0], "Status") {
		t.Errorf("unexpected replies %q", tr.sent)
	}
}
