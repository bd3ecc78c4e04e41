package detector

import (
	"fmt"
	"strings"

	"triarb/internal/domain/model"
)

type RenderMode int

const (
	RenderPlain RenderMode = iota
	RenderMarkdown
)

// Formatter 把机会渲染成一条可读消息（控制台 / Telegram）
type Formatter struct {
	Places int32 // 数量小数位
}

func NewFormatter() *Formatter {
	return &Formatter{Places: 6}
}

func (f *Formatter) Render(opp *model.Opportunity, mode RenderMode) string {
	if opp == nil {
		return ""
	}
	code := func(s string) string { return s }
	bold := func(s string) string { return s }
	if mode == RenderMarkdown {
		code = func(s string) string { return "`" + s + "`" }
		bold = func(s string) string { return "*" + s + "*" }
	}

	start := opp.StartCurrency()
	var sb strings.Builder
	sb.WriteString(bold("Triangular arbitrage opportunity"))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "%s %s\n", bold("Path:"), code(opp.Cycle.Path()))
	fmt.Fprintf(&sb, "%s %s (%s%%)\n", bold("Profit:"),
		code(opp.Profit.StringFixed(4)+" "+start), opp.ProfitPercent.StringFixed(4))
	fmt.Fprintf(&sb, "%s %s\n\n", bold("Start amount:"), code(opp.StartAmount.String()+" "+start))

	for i, leg := range opp.Legs {
		verb := "Buy"
		asset, with := leg.To, leg.From
		if leg.Side == model.SideSell {
			verb = "Sell"
			asset, with = leg.From, leg.To
		}
		fmt.Fprintf(&sb, "%s %s %s for %s @ %s\n",
			bold(fmt.Sprintf("Step %d (%s):", i+1, leg.Symbol)), verb, code(asset), code(with), leg.Price.String())
	}

	sb.WriteString("\n")
	sb.WriteString(bold("Quantities (qty >= min):"))
	for i, leg := range opp.Legs {
		fmt.Fprintf(&sb, "\n%d. %s >= %s", i+1, code(leg.Quantity.StringFixed(f.Places)), code(leg.MinQuantity.String()))
	}
	return sb.String()
}

// Line 单行摘要，用于日志与控制台
func (f *Formatter) Line(opp *model.Opportunity) string {
	if opp == nil {
		return ""
	}
	return fmt.Sprintf("[TRIARB] %s profit=%s %s (%s%%) start=%s",
		opp.Cycle.Path(), opp.Profit.StringFixed(4), opp.StartCurrency(),
		opp.ProfitPercent.StringFixed(4), opp.StartAmount.String())
}
