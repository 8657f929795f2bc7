// Package mpesa talks to the STK push function that fronts Safaricom Daraja.
package mpesa

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go-storefront-ledger/internal/service"

	"github.com/guonaihong/gout"
	"github.com/pkg/errors"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("mpesa base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		http:    &http.Client{},
	}, nil
}

type stkPushRequest struct {
	PhoneNumber      string `json:"phone_number"`
	Amount           int64  `json:"amount"`
	AccountReference string `json:"account_reference"`
	TransactionDesc  string `json:"transaction_desc"`
}

type stkPushResponse struct {
	Success           bool   `json:"success"`
	CheckoutRequestID string `json:"checkout_request_id"`
	CustomerMessage   string `json:"customer_message"`
	Message           string `json:"message"`
	Error             string `json:"error"`
}

type statusResponse struct {
	Status     string `json:"status"`
	ResultCode *int   `json:"result_code"`
	ResultDesc string `json:"result_desc"`
}

// InitiatePushPayment sends the STK prompt. A 4xx answer is a rejection the
// customer can act on; anything else unexpected is a transport error.
func (c *Client) InitiatePushPayment(ctx context.Context, req service.PushRequest) (*service.PushResult, error) {
	var (
		resp stkPushResponse
		code int
	)
	err := gout.New(c.http).POST(c.baseURL + "/stkpush").
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetHeader(c.headers()).
		SetJSON(stkPushRequest{
			PhoneNumber:      req.Phone,
			Amount:           req.AmountMinor,
			AccountReference: req.Reference,
			TransactionDesc:  req.Description,
		}).
		BindJSON(&resp).
		Code(&code).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "stk push")
	}

	switch {
	case code >= 500:
		return nil, errors.Errorf("stk push: gateway returned %d", code)
	case code >= 400 || !resp.Success:
		msg := resp.Error
		if msg == "" {
			msg = resp.Message
		}
		return &service.PushResult{Accepted: false, Message: msg}, nil
	}

	return &service.PushResult{
		Accepted:         true,
		GatewayReference: resp.CheckoutRequestID,
		Instructions:     resp.CustomerMessage,
		Message:          resp.Message,
	}, nil
}

// CheckStatus maps the Daraja result code: 0 is paid, any other code is a
// failure, no code yet means the customer has not answered the prompt.
func (c *Client) CheckStatus(ctx context.Context, gatewayRef string) (service.GatewayState, error) {
	var (
		resp statusResponse
		code int
	)
	err := gout.New(c.http).GET(c.baseURL + "/status/" + gatewayRef).
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetHeader(c.headers()).
		BindJSON(&resp).
		Code(&code).
		Do()
	if err != nil {
		return "", errors.Wrap(err, "stk status")
	}
	if code != http.StatusOK {
		return "", errors.Errorf("stk status: gateway returned %d", code)
	}
	return stateOf(resp), nil
}

func (c *Client) headers() gout.H {
	h := gout.H{"Accept": "application/json"}
	if c.apiKey != "" {
		h["X-API-Key"] = c.apiKey
	}
	return h
}

func stateOf(resp statusResponse) service.GatewayState {
	switch strings.ToLower(resp.Status) {
	case "completed", "success", "paid":
		return service.GatewayCompleted
	case "failed", "cancelled", "timeout":
		return service.GatewayFailed
	}
	if resp.ResultCode != nil {
		if *resp.ResultCode == 0 {
			return service.GatewayCompleted
		}
		return service.GatewayFailed
	}
	return service.GatewayPending
}
