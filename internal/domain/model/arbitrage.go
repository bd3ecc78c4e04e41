package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ========== Cycle Models ==========

// Side 单腿方向
type Side string

const (
	// SideBuy symbol == to+from: buy the base with the quote at best ask.
	SideBuy Side = "buy"
	// SideSell symbol == from+to: sell the base for the quote at best bid.
	SideSell Side = "sell"
)

// Leg 三角套利中的一步兑换 from -> to
type Leg struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Symbol string `json:"symbol"`
	Side   Side   `json:"side"`
}

// Reversed reports whether the matched symbol names (from,to), i.e. the leg
// sells the instrument's base currency.
func (l Leg) Reversed() bool { return l.Side == SideSell }

// Cycle 三角循环 c1 -> c2 -> c3 -> c1，三条腿已解析
type Cycle struct {
	Currencies [3]string `json:"currencies"`
	Legs       [3]Leg    `json:"legs"`
}

// Key 唯一标识，如 "USDT>BTC>ETH"
func (c Cycle) Key() string {
	return strings.Join(c.Currencies[:], ">")
}

// Path 人类可读路径，如 "USDT → BTC → ETH → USDT"
func (c Cycle) Path() string {
	return strings.Join(append(c.Currencies[:], c.Currencies[0]), " → ")
}

// ========== Opportunity Models ==========

// OpportunityLeg 单腿计算结果
type OpportunityLeg struct {
	Leg
	Price       decimal.Decimal `json:"price"`        // 使用的 ask 或 bid
	AmountIn    decimal.Decimal `json:"amount_in"`    // from 币种数量
	AmountOut   decimal.Decimal `json:"amount_out"`   // to 币种数量
	Quantity    decimal.Decimal `json:"quantity"`     // 该交易对 base 币种成交数量
	MinQuantity decimal.Decimal `json:"min_quantity"` // 交易所最小下单数量
}

// Opportunity 三角套利机会（瞬时结果，不持久化到核心）
type Opportunity struct {
	ID            string            `json:"id"`
	Cycle         Cycle             `json:"cycle"`
	StartAmount   decimal.Decimal   `json:"start_amount"`
	FinalAmount   decimal.Decimal   `json:"final_amount"`
	Profit        decimal.Decimal   `json:"profit"`
	ProfitPercent decimal.Decimal   `json:"profit_percent"`
	Legs          [3]OpportunityLeg `json:"legs"`
	DetectedAt    time.Time         `json:"detected_at"`
}

// StartCurrency 起始币种
func (o *Opportunity) StartCurrency() string {
	return o.Cycle.Currencies[0]
}
