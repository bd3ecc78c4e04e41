package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// apiResponse V5 统一响应信封
type apiResponse[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
	Time    int64  `json:"time"`
}

func decodeResponse[T any](body []byte, what string) (*T, error) {
	var resp apiResponse[T]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode %s response failed: %w", what, err)
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("bybit %s error: [%d] %s", what, resp.RetCode, resp.RetMsg)
	}
	return &resp.Result, nil
}

func (c *APIClient) endpoint(path string, params url.Values) (string, string) {
	var query string
	if params != nil {
		query = params.Encode()
	}
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	if query != "" {
		endpoint += "?" + query
	}
	return endpoint, query
}

// publicGet 行情类公共接口，无需签名
func (c *APIClient) publicGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint, _ := c.endpoint(path, params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// signedQueryRequest 发送带 query 的签名请求
func (c *APIClient) signedQueryRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if c.credentials.Empty() {
		return nil, ErrNoCredentials
	}
	endpoint, query := c.endpoint(path, params)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.doSignedRequest(req, query)
}

func (c *APIClient) doSignedRequest(req *http.Request, payload string) ([]byte, error) {
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)

	// Bybit V5 signature: timestamp + apiKey + recvWindow + payload
	signStr := timestamp + c.credentials.APIKey() + c.recvWindow + payload
	signature := c.credentials.Sign(signStr)

	req.Header.Set("X-BAPI-API-KEY", c.credentials.APIKey())
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", c.recvWindow)
	req.Header.Set("X-BAPI-SIGN", signature)

	return c.do(req)
}

func (c *APIClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bybit http %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
