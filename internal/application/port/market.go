package port

import (
	"context"

	"github.com/shopspring/decimal"

	"triarb/internal/domain/model"
)

// InstrumentSource 交易所现货交易对元数据
type InstrumentSource interface {
	// ListActiveInstruments returns instruments currently in "Trading" status.
	ListActiveInstruments(ctx context.Context) ([]model.Instrument, error)
}

// PriceSource 批量最优买卖价
type PriceSource interface {
	Name() string
	// FetchTickers returns best bid/ask for the requested symbols in one batch.
	// Symbols with no usable quote are simply absent from the snapshot.
	FetchTickers(ctx context.Context, symbols []string) (model.PriceSnapshot, error)
}

// BalanceSource 账户余额（仅用于状态展示）
type BalanceSource interface {
	USDTBalance(ctx context.Context) (decimal.Decimal, error)
}
