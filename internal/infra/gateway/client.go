package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"quantbroker/internal/domain"
)

// REST paths of the gateway API.
const (
	pathTime      = "/api/v1/time"
	pathOrders    = "/api/v1/orders"
	pathCancel    = "/api/v1/orders/cancel"
	pathBalance   = "/api/v1/account/balance"
	pathPositions = "/api/v1/account/positions"

	successCode = "00000"
)

// Client is the gateway REST API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger
}

// NewClient creates a new REST client for baseURL.
func NewClient(baseURL string, signer *Signer, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: signer,
		logger: slog.Default().With("module", "gateway_client"),
	}
}

type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Ping checks the gateway answers authenticated requests.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "ping", http.MethodGet, pathTime, nil, nil)
	return err
}

// CreateOrder posts a new order.
func (c *Client) CreateOrder(ctx context.Context, req domain.Payload) (domain.Payload, error) {
	return c.object(ctx, "create_order", http.MethodPost, pathOrders, nil, req)
}

// CancelOrder posts a cancel request.
func (c *Client) CancelOrder(ctx context.Context, req domain.Payload) (domain.Payload, error) {
	return c.object(ctx, "cancel_order", http.MethodPost, pathCancel, nil, req)
}

// FetchOrder reads one order, identified by the request fields.
func (c *Client) FetchOrder(ctx context.Context, req domain.Payload) (domain.Payload, error) {
	return c.object(ctx, "fetch_order", http.MethodGet, pathOrders, toQuery(req), nil)
}

// FetchBalance reads the account balance.
func (c *Client) FetchBalance(ctx context.Context) (domain.Payload, error) {
	return c.object(ctx, "fetch_balance", http.MethodGet, pathBalance, nil, nil)
}

// Positions reads every open position.
func (c *Client) Positions(ctx context.Context) ([]domain.Payload, error) {
	data, err := c.do(ctx, "positions", http.MethodGet, pathPositions, nil, nil)
	if err != nil {
		return nil, err
	}
	var list []domain.Payload
	if err := decode(data, &list); err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	return list, nil
}

func (c *Client) object(ctx context.Context, op, method, path string, query url.Values, body any) (domain.Payload, error) {
	data, err := c.do(ctx, op, method, path, query, body)
	if err != nil {
		return nil, err
	}
	p := domain.Payload{}
	if err := decode(data, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// do sends a signed request and unwraps the response envelope.
// Transport failures and 5xx/429 are retriable NetworkErrors, auth
// failures are fatal, and other rejections are VenueErrors.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBytes)
		bodyStr = string(jsonBytes)
	}

	rawQuery := query.Encode()
	reqURL := c.baseURL + path
	if rawQuery != "" {
		reqURL += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, err
	}

	// Sign Request
	for k, v := range c.signer.GenerateHeaders(method, path, rawQuery, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError(op, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, domain.NewNetworkError(op, fmt.Errorf("status=%d body=%s", resp.StatusCode, bodyBytes))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.NewFatalNetworkError(op, fmt.Errorf("status=%d body=%s", resp.StatusCode, bodyBytes))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &domain.VenueError{Code: strconv.Itoa(resp.StatusCode), Message: string(bodyBytes)}
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Code != successCode {
		return nil, &domain.VenueError{Code: apiResp.Code, Message: apiResp.Msg}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.VenueError{Code: strconv.Itoa(resp.StatusCode), Message: apiResp.Msg}
	}

	c.logger.Debug("Gateway request done", slog.String("op", op), slog.Int("status", resp.StatusCode))
	return apiResp.Data, nil
}

// decode keeps numbers as json.Number so amounts are not rounded.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return errors.New("empty data")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func toQuery(p domain.Payload) url.Values {
	q := url.Values{}
	for k, v := range p {
		if v != nil {
			q.Set(k, fmt.Sprint(v))
		}
	}
	return q
}
