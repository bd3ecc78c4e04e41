package service

import (
	"sort"
	"strings"

	"triarb/internal/domain/model"
)

// RejectedInstrument 未进入目录的交易对及原因
type RejectedInstrument struct {
	Symbol string
	Reason string
}

// Catalog 市场目录：可交易交易对 + 币种集合，构建后只读
type Catalog struct {
	instruments map[string]model.Instrument
	symbols     []string
	currencies  []string
}

// NewCatalog builds a catalog from active instruments. Instruments that break
// the catalog invariants (symbol != base+quote, non-positive minimum quantity,
// duplicate symbol) are left out and returned as rejected.
func NewCatalog(instruments []model.Instrument) (*Catalog, []RejectedInstrument) {
	c := &Catalog{instruments: make(map[string]model.Instrument, len(instruments))}
	var rejected []RejectedInstrument
	currencies := make(map[string]struct{})

	for _, inst := range instruments {
		inst.BaseCurrency = strings.ToUpper(strings.TrimSpace(inst.BaseCurrency))
		inst.QuoteCurrency = strings.ToUpper(strings.TrimSpace(inst.QuoteCurrency))
		inst.Symbol = strings.ToUpper(strings.TrimSpace(inst.Symbol))

		switch {
		case inst.BaseCurrency == "" || inst.QuoteCurrency == "" || inst.BaseCurrency == inst.QuoteCurrency:
			rejected = append(rejected, RejectedInstrument{Symbol: inst.Symbol, Reason: "invalid currencies"})
			continue
		case inst.Symbol != model.PairSymbol(inst.BaseCurrency, inst.QuoteCurrency):
			rejected = append(rejected, RejectedInstrument{Symbol: inst.Symbol, Reason: "symbol is not base+quote"})
			continue
		case !inst.MinOrderQty.IsPositive():
			rejected = append(rejected, RejectedInstrument{Symbol: inst.Symbol, Reason: "non-positive min order qty"})
			continue
		}
		if _, dup := c.instruments[inst.Symbol]; dup {
			rejected = append(rejected, RejectedInstrument{Symbol: inst.Symbol, Reason: "duplicate symbol"})
			continue
		}

		c.instruments[inst.Symbol] = inst
		c.symbols = append(c.symbols, inst.Symbol)
		currencies[inst.BaseCurrency] = struct{}{}
		currencies[inst.QuoteCurrency] = struct{}{}
	}

	c.currencies = make([]string, 0, len(currencies))
	for cur := range currencies {
		c.currencies = append(c.currencies, cur)
	}
	sort.Strings(c.currencies)
	sort.Strings(c.symbols)
	return c, rejected
}

// Len 交易对数量
func (c *Catalog) Len() int { return len(c.instruments) }

// Symbols returns the sorted list of tradable symbols. The slice is shared and
// must not be modified.
func (c *Catalog) Symbols() []string { return c.symbols }

// Currencies returns the sorted set of currency codes. The slice is shared and
// must not be modified.
func (c *Catalog) Currencies() []string { return c.currencies }

// Instrument 按符号查询
func (c *Catalog) Instrument(symbol string) (model.Instrument, bool) {
	inst, ok := c.instruments[symbol]
	return inst, ok
}

// Lookup resolves the conversion from -> to to a leg. The (to,from) symbol is
// preferred: buying "to" with "from". Otherwise the (from,to) symbol sells
// "from" for "to". The instrument's own base/quote must match, so symbols that
// only collide as strings never resolve.
func (c *Catalog) Lookup(from, to string) (model.Leg, bool) {
	if inst, ok := c.instruments[model.PairSymbol(to, from)]; ok && inst.BaseCurrency == to && inst.QuoteCurrency == from {
		return model.Leg{From: from, To: to, Symbol: inst.Symbol, Side: model.SideBuy}, true
	}
	if inst, ok := c.instruments[model.PairSymbol(from, to)]; ok && inst.BaseCurrency == from && inst.QuoteCurrency == to {
		return model.Leg{From: from, To: to, Symbol: inst.Symbol, Side: model.SideSell}, true
	}
	return model.Leg{}, false
}

// Linked 两个币种之间是否存在任一方向的交易对
func (c *Catalog) Linked(a, b string) bool {
	_, ok := c.Lookup(a, b)
	return ok
}
