package bybit

import (
	"context"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"triarb/internal/application/port"
	"triarb/internal/domain/model"
)

const maxInstrumentPages = 50

var (
	_ port.InstrumentSource = (*MarketClient)(nil)
	_ port.PriceSource      = (*MarketClient)(nil)
)

// MarketClient Bybit 现货行情 REST 客户端
type MarketClient struct {
	*APIClient
}

func NewMarketClient(client *APIClient) *MarketClient {
	return &MarketClient{APIClient: client}
}

func (c *MarketClient) Name() string { return "bybit-rest" }

type instrumentsResult struct {
	Category       string `json:"category"`
	NextPageCursor string `json:"nextPageCursor"`
	List           []struct {
		Symbol        string `json:"symbol"`
		BaseCoin      string `json:"baseCoin"`
		QuoteCoin     string `json:"quoteCoin"`
		Status        string `json:"status"`
		LotSizeFilter struct {
			BasePrecision string `json:"basePrecision"`
			MinOrderQty   string `json:"minOrderQty"`
			MinOrderAmt   string `json:"minOrderAmt"`
		} `json:"lotSizeFilter"`
	} `json:"list"`
}

// ListActiveInstruments 拉取全部现货交易对（跟随 nextPageCursor），只保留 Trading 状态
func (c *MarketClient) ListActiveInstruments(ctx context.Context) ([]model.Instrument, error) {
	var out []model.Instrument
	cursor := ""
	for page := 0; page < maxInstrumentPages; page++ {
		params := url.Values{}
		params.Set("category", "spot")
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		body, err := c.publicGet(ctx, "/v5/market/instruments-info", params)
		if err != nil {
			return nil, err
		}
		res, err := decodeResponse[instrumentsResult](body, "instruments-info")
		if err != nil {
			return nil, err
		}

		for _, it := range res.List {
			if it.Status != model.InstrumentStatusTrading {
				continue
			}
			minQty, err := decimal.NewFromString(it.LotSizeFilter.MinOrderQty)
			if err != nil {
				log.Warn().Str("symbol", it.Symbol).Str("min_qty", it.LotSizeFilter.MinOrderQty).Msg("bad min order qty, skipped")
				continue
			}
			// minOrderAmt 可能缺失，缺失视为不检查
			minAmt, _ := decimal.NewFromString(it.LotSizeFilter.MinOrderAmt)
			out = append(out, model.Instrument{
				Symbol:         it.Symbol,
				BaseCurrency:   it.BaseCoin,
				QuoteCurrency:  it.QuoteCoin,
				MinOrderQty:    minQty,
				MinOrderAmount: minAmt,
				Status:         it.Status,
			})
		}

		cursor = strings.TrimSpace(res.NextPageCursor)
		if cursor == "" {
			break
		}
	}

	log.Debug().Int("instruments", len(out)).Msg("bybit spot instruments fetched")
	return out, nil
}

type tickersResult struct {
	Category string `json:"category"`
	List     []struct {
		Symbol    string `json:"symbol"`
		Bid1Price string `json:"bid1Price"`
		Ask1Price string `json:"ask1Price"`
		LastPrice string `json:"lastPrice"`
	} `json:"list"`
}

// FetchTickers 一次请求拉取全部现货 ticker，再按 symbols 过滤。
// 买一/卖一无法解析或非正的交易对直接缺省。
func (c *MarketClient) FetchTickers(ctx context.Context, symbols []string) (model.PriceSnapshot, error) {
	params := url.Values{}
	params.Set("category", "spot")
	body, err := c.publicGet(ctx, "/v5/market/tickers", params)
	if err != nil {
		return nil, err
	}
	res, err := decodeResponse[tickersResult](body, "tickers")
	if err != nil {
		return nil, err
	}

	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		want[s] = struct{}{}
	}

	ts := c.now().UnixMilli()
	snap := make(model.PriceSnapshot, len(symbols))
	for _, it := range res.List {
		if _, ok := want[it.Symbol]; !ok {
			continue
		}
		bid, err1 := decimal.NewFromString(it.Bid1Price)
		ask, err2 := decimal.NewFromString(it.Ask1Price)
		if err1 != nil || err2 != nil {
			continue
		}
		q := model.Quote{BestBid: bid, BestAsk: ask, Ts: ts}
		if !q.Valid() {
			continue
		}
		snap[it.Symbol] = q
	}
	return snap, nil
}
