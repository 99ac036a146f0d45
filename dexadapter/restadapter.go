package dexadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RESTAdapter is a real DEX integration speaking an HTTP REST API
// authenticated with an API key header, modeled on a typical
// exchange-with-REST-and-positions-endpoint shape: connect verifies
// credentials against a positions endpoint, health_probe reuses that
// same endpoint, and submit_order POSTs to an orders endpoint and
// returns once the exchange acknowledges receipt.
type RESTAdapter struct {
	BaseAdapter

	id      string
	baseURL string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger
}

// RESTAdapterConfig configures one RESTAdapter instance.
type RESTAdapterConfig struct {
	ID      string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Pool    *ConnectionPool
}

func NewRESTAdapter(cfg RESTAdapterConfig, logger zerolog.Logger) *RESTAdapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	pool := cfg.Pool
	if pool == nil {
		pool = DefaultConnectionPool()
	}
	return &RESTAdapter{
		id:      cfg.ID,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  pool.GetClient(cfg.ID, cfg.Timeout),
		logger:  logger.With().Str("adapter_id", cfg.ID).Logger(),
	}
}

func (a *RESTAdapter) ID() string { return a.id }

func (a *RESTAdapter) setHeaders(req *http.Request) {
	req.Header.Set("X-Api-Key", a.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "dex-gateway/1.0")
}

// Connect verifies credentials by calling the positions endpoint —
// many exchanges have no dedicated health/auth-check route, so a
// cheap authenticated GET stands in for one.
func (a *RESTAdapter) Connect(ctx context.Context) error {
	if already := a.beginConnecting(); already {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/user/positions", nil)
	if err != nil {
		a.markDisconnected()
		return &AdapterError{Kind: ErrConnection, Err: err}
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		a.markDisconnected()
		return &AdapterError{Kind: ErrConnection, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		a.markDisconnected()
		return &AdapterError{Kind: ErrSignature, Err: fmt.Errorf("auth failed: status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 500 {
		a.markDisconnected()
		return &AdapterError{Kind: ErrConnection, Err: fmt.Errorf("server error: status %d", resp.StatusCode)}
	}

	a.markConnected()
	a.logger.Info().Msg("connected to dex")
	return nil
}

func (a *RESTAdapter) Disconnect(ctx context.Context) error {
	a.markDisconnected()
	a.logger.Info().Msg("disconnected from dex")
	return nil
}

func (a *RESTAdapter) SubmitOrder(ctx context.Context, symbol string, side Side, size decimal.Decimal) (*SubmissionResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"symbol": symbol,
		"side":   string(side),
		"size":   size.String(),
	})
	if err != nil {
		return nil, &AdapterError{Kind: ErrConnection, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/user/order", bytes.NewReader(body))
	if err != nil {
		return nil, &AdapterError{Kind: ErrConnection, Err: err}
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AdapterError{Kind: ErrTimeout, Err: err}
		}
		return nil, &AdapterError{Kind: ErrConnection, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &AdapterError{Kind: ErrSignature, Err: fmt.Errorf("signature rejected")}
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusConflict:
		return nil, &AdapterError{Kind: ErrRejection, Reason: RejInsufficientFunds, Err: fmt.Errorf("rejected: %s", respBody)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &AdapterError{Kind: ErrRejection, Err: fmt.Errorf("rejected (%d): %s", resp.StatusCode, respBody)}
	case resp.StatusCode >= 500:
		return nil, &AdapterError{Kind: ErrConnection, Err: fmt.Errorf("server error: %d", resp.StatusCode)}
	}

	var parsed struct {
		OrderID string `json:"order_id"`
	}
	_ = json.Unmarshal(respBody, &parsed)
	if parsed.OrderID == "" {
		parsed.OrderID = fmt.Sprintf("%s-%d", a.id, time.Now().UnixNano())
	}

	return &SubmissionResult{
		ExternalOrderID: parsed.OrderID,
		Status:          StatusSubmitted,
		SubmittedAt:     time.Now().UTC(),
		FilledAmount:    decimal.Zero,
		RawResponse:     map[string]interface{}{"order_id": parsed.OrderID, "status_code": resp.StatusCode},
	}, nil
}

func (a *RESTAdapter) OrderStatus(ctx context.Context, externalOrderID string) (*OrderStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/user/orders/"+externalOrderID, nil)
	if err != nil {
		return nil, &AdapterError{Kind: ErrConnection, Err: err}
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &AdapterError{Kind: ErrConnection, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &AdapterError{Kind: ErrRejection, Reason: RejOrderNotFound, Err: fmt.Errorf("order not found")}
	}

	var parsed struct {
		Status    string `json:"status"`
		Filled    string `json:"filled_amount"`
		Remaining string `json:"remaining_amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &AdapterError{Kind: ErrConnection, Err: err}
	}

	filled, _ := decimal.NewFromString(parsed.Filled)
	remaining, _ := decimal.NewFromString(parsed.Remaining)

	return &OrderStatus{
		ExternalOrderID: externalOrderID,
		Status:          SubmissionStatus(parsed.Status),
		FilledAmount:    filled,
		RemainingAmount: remaining,
	}, nil
}

func (a *RESTAdapter) CancelOrder(ctx context.Context, externalOrderID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.baseURL+"/user/orders/"+externalOrderID, nil)
	if err != nil {
		return &AdapterError{Kind: ErrConnection, Err: err}
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return &AdapterError{Kind: ErrConnection, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &AdapterError{Kind: ErrRejection, Err: fmt.Errorf("cancel rejected: %d", resp.StatusCode)}
	}
	return nil
}

func (a *RESTAdapter) Position(ctx context.Context, symbol string) (*Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/user/positions?symbol="+symbol, nil)
	if err != nil {
		return nil, &AdapterError{Kind: ErrConnection, Err: err}
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &AdapterError{Kind: ErrConnection, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	var parsed struct {
		Size       string `json:"size"`
		EntryPrice string `json:"entry_price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &AdapterError{Kind: ErrConnection, Err: err}
	}
	size, _ := decimal.NewFromString(parsed.Size)
	entry, _ := decimal.NewFromString(parsed.EntryPrice)
	if size.IsZero() {
		return nil, nil
	}
	return &Position{Symbol: symbol, Size: size, EntryPrice: entry}, nil
}

// HealthProbe reuses the positions endpoint as a cheap authenticated
// liveness check, since most DEX REST APIs expose no dedicated
// /health route.
func (a *RESTAdapter) HealthProbe(ctx context.Context) HealthSample {
	start := time.Now()
	now := func() time.Time { return time.Now().UTC() }

	if !a.IsConnected() {
		return HealthSample{Status: HealthOffline, ObservedAt: now(), Error: "not connected"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/user/positions", nil)
	if err != nil {
		return HealthSample{Status: HealthOffline, ObservedAt: now(), Error: err.Error()}
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return HealthSample{Status: HealthOffline, LatencyMS: latency, ObservedAt: now(), Error: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return HealthSample{Status: HealthHealthy, LatencyMS: latency, ObservedAt: now()}
	case resp.StatusCode == http.StatusTooManyRequests:
		return HealthSample{Status: HealthDegraded, LatencyMS: latency, ObservedAt: now(), Error: "rate limited"}
	case resp.StatusCode < 500:
		return HealthSample{Status: HealthDegraded, LatencyMS: latency, ObservedAt: now(), Error: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	default:
		return HealthSample{Status: HealthOffline, LatencyMS: latency, ObservedAt: now(), Error: fmt.Sprintf("server error %d", resp.StatusCode)}
	}
}
