package algolab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/infra"
)

// AlgoLab endpoint paths.
const (
	endpointLogin        = "/api/LoginUser"
	endpointLoginControl = "/api/LoginUserControl"
	endpointRefresh      = "/api/SessionRefresh"
	endpointSendOrder    = "/api/SendOrder"
	endpointModifyOrder  = "/api/ModifyOrder"
	endpointDeleteOrder  = "/api/DeleteOrder"
)

// Client is the AlgoLab REST client. It signs every authenticated request,
// paces order endpoints through the shared order limiter, and routes all
// calls through a circuit breaker. Transport failures and 5xx responses
// come back as transient errors; an unauthorized response comes back as
// ErrSessionInvalid so the caller can re-authenticate and retry.
type Client struct {
	baseURL  string
	username string
	password string

	http    *http.Client
	signer  *Signer
	limiter *infra.RateLimiter
	breaker *infra.CircuitBreaker
}

// NewClient builds the REST client from config. The limiter enforces the
// broker's mandatory spacing between order API calls.
func NewClient(cfg *infra.Config, signer *Signer) *Client {
	return &Client{
		baseURL:  cfg.AlgoLab.BaseURL,
		username: cfg.AlgoLab.Username,
		password: cfg.AlgoLab.Password,
		http:     &http.Client{Timeout: cfg.RequestTimeout()},
		signer:   signer,
		limiter:  infra.NewOrderLimiter(time.Duration(cfg.AlgoLab.OrderIntervalMS) * time.Millisecond),
		breaker:  infra.NewCircuitBreaker("algolab", 5, 1, 30*time.Second),
	}
}

// LoginUser starts the login flow with encrypted credentials and returns
// the short-lived token to be confirmed by SMS code.
func (c *Client) LoginUser(ctx context.Context) (string, error) {
	user, err := c.signer.Encrypt(c.username)
	if err != nil {
		return "", fmt.Errorf("encrypt username: %w", err)
	}
	pass, err := c.signer.Encrypt(c.password)
	if err != nil {
		return "", fmt.Errorf("encrypt password: %w", err)
	}

	resp, err := c.post(ctx, endpointLogin, loginRequest{Username: user, Password: pass}, "")
	if err != nil {
		return "", err
	}
	if !resp.Success {
		// The broker names the credential problem in the message. No retry
		// will fix it.
		return "", &domain.AuthError{Reason: resp.Message, Fatal: true}
	}

	var content loginContent
	if err := json.Unmarshal(resp.Content, &content); err != nil {
		return "", fmt.Errorf("decode login content: %w", err)
	}
	return content.Token, nil
}

// LoginUserControl confirms the login token with the SMS code and returns
// the session hash used on all authenticated calls.
func (c *Client) LoginUserControl(ctx context.Context, token, smsCode string) (string, error) {
	encToken, err := c.signer.Encrypt(token)
	if err != nil {
		return "", fmt.Errorf("encrypt token: %w", err)
	}
	encSMS, err := c.signer.Encrypt(smsCode)
	if err != nil {
		return "", fmt.Errorf("encrypt sms code: %w", err)
	}

	resp, err := c.post(ctx, endpointLoginControl, controlRequest{Token: encToken, Password: encSMS}, "")
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &domain.AuthError{Reason: resp.Message, Fatal: true}
	}

	var content controlContent
	if err := json.Unmarshal(resp.Content, &content); err != nil {
		return "", fmt.Errorf("decode control content: %w", err)
	}
	return content.Hash, nil
}

// SessionRefresh extends the session at the broker. An unsuccessful refresh
// means the session is gone.
func (c *Client) SessionRefresh(ctx context.Context, hash string) error {
	resp, err := c.post(ctx, endpointRefresh, struct{}{}, hash)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", domain.ErrSessionInvalid, resp.Message)
	}
	return nil
}

// SendOrder submits an order and returns the broker-assigned order id.
// Business rejections come back as RejectionError.
func (c *Client) SendOrder(ctx context.Context, hash string, req sendOrderRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := c.post(ctx, endpointSendOrder, req, hash)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &domain.RejectionError{Reason: resp.Message}
	}

	var content orderContent
	if err := json.Unmarshal(resp.Content, &content); err != nil {
		return "", fmt.Errorf("decode send order content: %w", err)
	}
	if content.ID == "" {
		return "", fmt.Errorf("send order: empty order id in response")
	}
	return content.ID, nil
}

// ModifyOrder changes the price or lot of a working order.
func (c *Client) ModifyOrder(ctx context.Context, hash string, req modifyOrderRequest) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.post(ctx, endpointModifyOrder, req, hash)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &domain.RejectionError{Reason: resp.Message}
	}
	return nil
}

// DeleteOrder cancels a working order.
func (c *Client) DeleteOrder(ctx context.Context, hash string, req deleteOrderRequest) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.post(ctx, endpointDeleteOrder, req, hash)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &domain.RejectionError{Reason: resp.Message}
	}
	return nil
}

// post serializes the payload, signs the request, and classifies the
// transport outcome. The returned envelope still carries success=false for
// business failures; callers decide what those mean per endpoint.
func (c *Client) post(ctx context.Context, endpoint string, payload any, hash string) (*envelope, error) {
	if !c.breaker.Allow() {
		return nil, &domain.TransientError{Op: endpoint, Err: infra.ErrCircuitOpen}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("APIKEY", c.signer.APIKey())
	if hash != "" {
		req.Header.Set("Authorization", hash)
		req.Header.Set("Checker", c.signer.Checker(endpoint, body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, &domain.TransientError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.breaker.RecordSuccess()
		return nil, fmt.Errorf("%w: %s returned %d", domain.ErrSessionInvalid, endpoint, resp.StatusCode)
	case resp.StatusCode >= 500:
		c.breaker.RecordFailure()
		return nil, &domain.TransientError{Op: endpoint, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		c.breaker.RecordSuccess()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &domain.RejectionError{Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, raw)}
	}

	c.breaker.RecordSuccess()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	slog.Debug("broker call",
		slog.String("endpoint", endpoint),
		slog.Bool("success", env.Success))

	return &env, nil
}
