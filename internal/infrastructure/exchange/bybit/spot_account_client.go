package bybit

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"triarb/internal/application/port"
)

var _ port.BalanceSource = (*SpotAccountClient)(nil)

// SpotAccountClient Bybit 统一账户余额查询
type SpotAccountClient struct {
	*APIClient
}

func NewSpotAccountClient(client *APIClient) *SpotAccountClient {
	return &SpotAccountClient{APIClient: client}
}

type walletBalanceResult struct {
	List []struct {
		AccountType string `json:"accountType"`
		Coin        []struct {
			Coin                string `json:"coin"`
			Equity              string `json:"equity"`
			WalletBalance       string `json:"walletBalance"`
			AvailableToWithdraw string `json:"availableToWithdraw"`
			Locked              string `json:"locked"`
		} `json:"coin"`
	} `json:"list"`
}

// USDTBalance 统一账户中的 USDT 钱包余额
func (c *SpotAccountClient) USDTBalance(ctx context.Context) (decimal.Decimal, error) {
	res, err := c.fetchWalletBalance(ctx, "UNIFIED", "USDT")
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, account := range res.List {
		for _, coin := range account.Coin {
			if !strings.EqualFold(coin.Coin, "USDT") {
				continue
			}
			v, err := decimal.NewFromString(coin.WalletBalance)
			if err != nil {
				continue
			}
			total = total.Add(v)
		}
	}
	return total, nil
}

// fetchWalletBalance 调用 Bybit wallet-balance 接口
func (c *SpotAccountClient) fetchWalletBalance(ctx context.Context, accountType, coin string) (*walletBalanceResult, error) {
	params := url.Values{}
	params.Set("accountType", accountType)
	if coin != "" {
		params.Set("coin", coin)
	}

	body, err := c.signedQueryRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", params)
	if err != nil {
		return nil, err
	}
	return decodeResponse[walletBalanceResult](body, "wallet-balance")
}
