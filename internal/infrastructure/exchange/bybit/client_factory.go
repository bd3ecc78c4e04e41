package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"
)

var ErrNoCredentials = errors.New("bybit api credentials not configured")

// ===== Credentials 凭证 =====

// Credentials 包含 API 凭证和签名方法
type Credentials struct {
	apiKey    string
	apiSecret string
}

func NewCredentials(apiKey, apiSecret string) *Credentials {
	return &Credentials{apiKey: apiKey, apiSecret: apiSecret}
}

// Sign 生成 HMAC-SHA256 签名
func (c *Credentials) Sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Credentials) APIKey() string { return c.apiKey }

func (c *Credentials) Empty() bool { return c == nil || c.apiKey == "" || c.apiSecret == "" }

// APIClient 共享 HTTP 连接、凭证与 base URL，公共与签名接口都走它
type APIClient struct {
	credentials *Credentials
	httpClient  *http.Client
	baseURL     string
	recvWindow  string
	now         func() time.Time
}

type ClientOptions struct {
	BaseURL      string
	APIKey       string
	APISecret    string
	RecvWindowMs int
	Timeout      time.Duration
}

func NewAPIClient(opts ClientOptions) *APIClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.bybit.com"
	}
	if opts.RecvWindowMs <= 0 {
		opts.RecvWindowMs = 5000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &APIClient{
		credentials: NewCredentials(opts.APIKey, opts.APISecret),
		httpClient:  &http.Client{Timeout: opts.Timeout},
		baseURL:     opts.BaseURL,
		recvWindow:  strconv.Itoa(opts.RecvWindowMs),
		now:         time.Now,
	}
}
