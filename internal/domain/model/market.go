package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// InstrumentStatusTrading 交易所可交易状态
const InstrumentStatusTrading = "Trading"

// PairSymbol 返回交易对符号：base+quote，无分隔符（Bybit 现货约定）
// Catalog 与 CycleBuilder 都只通过这个函数拼接符号，不从符号中解析币种
func PairSymbol(base, quote string) string {
	return strings.ToUpper(base) + strings.ToUpper(quote)
}

// Instrument 现货交易对元数据
type Instrument struct {
	Symbol         string          `json:"symbol"`
	BaseCurrency   string          `json:"base_currency"`
	QuoteCurrency  string          `json:"quote_currency"`
	MinOrderQty    decimal.Decimal `json:"min_order_qty"`    // 最小下单数量（base 计价）
	MinOrderAmount decimal.Decimal `json:"min_order_amount"` // 最小下单金额（quote 计价），0 表示不检查
	Status         string          `json:"status"`
}

// Quote 最优买卖价
type Quote struct {
	BestBid decimal.Decimal `json:"best_bid"`
	BestAsk decimal.Decimal `json:"best_ask"`
	Ts      int64           `json:"ts_ms"`
}

// Valid reports whether both sides are usable prices.
func (q Quote) Valid() bool {
	return q.BestBid.IsPositive() && q.BestAsk.IsPositive()
}

// PriceSnapshot maps an instrument symbol to its quote for one detection pass.
// A missing symbol means the price is unavailable.
type PriceSnapshot map[string]Quote

// Get returns the quote for symbol when it is present and usable.
func (s PriceSnapshot) Get(symbol string) (Quote, bool) {
	q, ok := s[symbol]
	if !ok || !q.Valid() {
		return Quote{}, false
	}
	return q, true
}
