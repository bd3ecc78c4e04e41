package bybit

import (
	"triarb/internal/application/port"
	"triarb/internal/infrastructure/pricesource"
)

const ExchangeName = "bybit"

// init() registers the Bybit price sources so the wiring layer selects them by
// config instead of hard-coding the exchange.
func init() {
	pricesource.Register(pricesource.Key(ExchangeName, "rest"), func(opts pricesource.Options) (port.PriceSource, error) {
		return NewMarketClient(NewAPIClient(ClientOptions{BaseURL: opts.RestURL, Timeout: opts.HTTPTimeout})), nil
	})
	pricesource.Register(pricesource.Key(ExchangeName, "stream"), func(opts pricesource.Options) (port.PriceSource, error) {
		return NewStreamPriceSource(opts.WsURL, opts.MaxAge), nil
	})
}
