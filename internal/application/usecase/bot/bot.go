package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"triarb/internal/application/port"
	"triarb/internal/application/usecase/detector"
)

const balanceTimeout = 10 * time.Second

// Detector 机器人需要的检测器能力
type Detector interface {
	Reload(ctx context.Context) error
	Market() *detector.Market
	LastPass() *detector.PassResult
	Settings() detector.Settings
	SetStartAmount(v decimal.Decimal) error
	SetMinProfitPercent(v decimal.Decimal) error
}

type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

type Deps struct {
	Transport      port.ChatTransport
	Detector       Detector
	Scheduler      Scheduler
	Balance        port.BalanceSource // 可选
	AdminChatID    int64
	PollTimeoutSec int
}

// Bot 聊天命令前端：长轮询收消息，分发命令，回复结果
type Bot struct {
	deps   Deps
	offset int64
}

func New(deps Deps) *Bot {
	if deps.PollTimeoutSec <= 0 {
		deps.PollTimeoutSec = 30
	}
	return &Bot{deps: deps}
}

// Run long-polls until ctx is cancelled. Transport errors are logged and
// retried with a doubling backoff.
func (b *Bot) Run(ctx context.Context) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	log.Info().Int64("admin_chat", b.deps.AdminChatID).Msg("telegram bot polling")
	for {
		msgs, err := b.deps.Transport.GetUpdates(ctx, b.offset, b.deps.PollTimeoutSec)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("telegram poll failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		for _, m := range msgs {
			if m.UpdateID >= b.offset {
				b.offset = m.UpdateID + 1
			}
			if m.Text == "" {
				continue
			}
			for _, reply := range b.Handle(ctx, m) {
				if err := b.deps.Transport.SendMessage(ctx, m.ChatID, reply); err != nil {
					log.Error().Err(err).Int64("chat", m.ChatID).Msg("telegram reply failed")
				}
			}
		}
	}
}

// Handle 分发一条命令，返回要发送的回复（按顺序）
func (b *Bot) Handle(ctx context.Context, m port.ChatMessage) []string {
	cmd, args := parseCommand(m.Text)
	if cmd == "" {
		return nil
	}
	log.Info().Str("cmd", cmd).Int64("user", m.UserID).Int64("chat", m.ChatID).Msg("bot command")

	switch cmd {
	case "start", "help":
		return b.cmdStart(ctx, m)
	case "status", "info":
		return []string{b.cmdStatus(ctx)}
	}

	if !b.isAdmin(m) {
		switch cmd {
		case "set_amount", "set_profit", "reload", "start_arb", "stop_arb":
			return []string{"⛔️ You are not allowed to run this command."}
		}
		return []string{unknownCommand}
	}

	switch cmd {
	case "set_amount":
		return []string{b.cmdSetAmount(args)}
	case "set_profit":
		return []string{b.cmdSetProfit(args)}
	case "reload":
		return []string{b.cmdReload(ctx)}
	case "start_arb":
		return []string{b.cmdStartArb(ctx)}
	case "stop_arb":
		return []string{b.cmdStopArb()}
	default:
		return []string{unknownCommand}
	}
}

const unknownCommand = "Unknown command. Send /start for the list of commands."

const helpText = "I scan Bybit spot pairs for triangular arbitrage.\n\n" +
	"*Commands:*\n" +
	"/start - show this message\n" +
	"/status - show current status\n" +
	"/set\\_amount <amount> - set the start amount (admin)\n" +
	"/set\\_profit <percent> - set the minimum profit percent (admin)\n" +
	"/reload - reload markets (admin)\n" +
	"/start\\_arb - start monitoring (admin)\n" +
	"/stop\\_arb - stop monitoring (admin)"

func (b *Bot) cmdStart(ctx context.Context, m port.ChatMessage) []string {
	name := m.UserName
	if name == "" {
		name = "there"
	}
	out := []string{fmt.Sprintf("👋 Hi, %s!\n\n%s", name, helpText)}
	if b.deps.Detector.Market() == nil {
		if err := b.deps.Detector.Reload(ctx); err != nil {
			log.Error().Err(err).Msg("market load failed")
			out = append(out, "❌ Failed to load Bybit markets. Check the logs.")
		} else {
			out = append(out, b.marketLoadedText())
		}
	}
	return out
}

func (b *Bot) cmdStatus(ctx context.Context) string {
	status := "⛔️ stopped"
	if b.deps.Scheduler.Running() {
		status = "✅ running"
	}

	pairs, cycles := 0, 0
	if m := b.deps.Detector.Market(); m != nil {
		pairs, cycles = m.Catalog.Len(), len(m.Cycles)
	}
	s := b.deps.Detector.Settings()

	var sb strings.Builder
	sb.WriteString("*📊 Status*\n\n")
	fmt.Fprintf(&sb, "*Monitoring:* %s\n", status)
	fmt.Fprintf(&sb, "*Pairs tracked:* %d\n", pairs)
	fmt.Fprintf(&sb, "*Triangular cycles:* %d\n", cycles)
	fmt.Fprintf(&sb, "*Start amount:* %s\n", s.StartAmount.String())
	fmt.Fprintf(&sb, "*Min profit:* %s%%\n", s.MinProfitPercent.String())
	if p := b.deps.Detector.LastPass(); p != nil {
		fmt.Fprintf(&sb, "*Last pass:* %s, %d evaluated, %d skipped, %d found\n",
			p.StartedAt.UTC().Format(time.RFC3339), p.Evaluated, p.Skipped, len(p.Opportunities))
	}
	fmt.Fprintf(&sb, "*Bybit balance:* %s", b.balanceText(ctx))
	return sb.String()
}

func (b *Bot) balanceText(ctx context.Context) string {
	if b.deps.Balance == nil {
		return "n/a"
	}
	bctx, cancel := context.WithTimeout(ctx, balanceTimeout)
	defer cancel()
	bal, err := b.deps.Balance.USDTBalance(bctx)
	if err != nil {
		log.Warn().Err(err).Msg("balance fetch failed")
		return "unavailable"
	}
	return bal.StringFixed(2) + " USDT"
}

func (b *Bot) cmdSetAmount(args []string) string {
	v, ok := parseDecimalArg(args)
	if !ok {
		return "⚠️ Usage: /set\\_amount 100"
	}
	if err := b.deps.Detector.SetStartAmount(v); err != nil {
		return "⚠️ Amount must be greater than zero."
	}
	return fmt.Sprintf("✅ Start amount set to %s", v.String())
}

func (b *Bot) cmdSetProfit(args []string) string {
	v, ok := parseDecimalArg(args)
	if !ok {
		return "⚠️ Usage: /set\\_profit 0.5"
	}
	if err := b.deps.Detector.SetMinProfitPercent(v); err != nil {
		return "⚠️ Percent must not be negative."
	}
	return fmt.Sprintf("✅ Minimum profit set to %s%%", v.String())
}

func (b *Bot) cmdReload(ctx context.Context) string {
	if err := b.deps.Detector.Reload(ctx); err != nil {
		log.Error().Err(err).Msg("market reload failed")
		return "❌ Reload failed, previous markets kept."
	}
	return b.marketLoadedText()
}

func (b *Bot) cmdStartArb(ctx context.Context) string {
	if b.deps.Detector.Market() == nil {
		if err := b.deps.Detector.Reload(ctx); err != nil {
			log.Error().Err(err).Msg("market load failed")
			return "❌ Failed to load Bybit markets. Check the logs."
		}
	}
	if err := b.deps.Scheduler.Start(ctx); err != nil {
		if errors.Is(err, detector.ErrAlreadyRunning) {
			return "⚠️ Monitoring is already running."
		}
		return "❌ Failed to start monitoring."
	}
	return "✅ Arbitrage monitoring started."
}

func (b *Bot) cmdStopArb() string {
	if err := b.deps.Scheduler.Stop(); err != nil {
		if errors.Is(err, detector.ErrNotRunning) {
			return "⚠️ Monitoring was not running."
		}
		return "❌ Failed to stop monitoring."
	}
	return "⛔️ Arbitrage monitoring stopped."
}

func (b *Bot) marketLoadedText() string {
	m := b.deps.Detector.Market()
	if m == nil {
		return "✅ Markets loaded."
	}
	return fmt.Sprintf("✅ Markets loaded: %d pairs, %d cycles.", m.Catalog.Len(), len(m.Cycles))
}

func (b *Bot) isAdmin(m port.ChatMessage) bool {
	if b.deps.AdminChatID == 0 {
		return false
	}
	return m.UserID == b.deps.AdminChatID || m.ChatID == b.deps.AdminChatID
}

// parseCommand "/set_amount@MyBot 100" -> ("set_amount", ["100"])
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:]
}

func parseDecimalArg(args []string) (decimal.Decimal, bool) {
	if len(args) == 0 {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(strings.ReplaceAll(args[0], ",", "."))
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}
