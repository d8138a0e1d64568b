package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SessionRequest asks the gateway for a QRIS payment session.
type SessionRequest struct {
	GatewayOrderID string
	Amount         int64
}

// SessionResult is what the gateway hands back for a session.
type SessionResult struct {
	Token       string
	RedirectURL string
	QRString    string
	QRCodeURL   string
	StatusURL   string
	FallbackURL string
}

// Gateway opens payment sessions at the provider.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (SessionResult, error)
}

type SnapConfig struct {
	BaseURL       string
	ServerKey     string
	Timeout       time.Duration
	Acquirer      string
	CustomerName  string
	CustomerEmail string
}

// SnapClient talks to the Snap transactions endpoint behind a circuit breaker.
type SnapClient struct {
	cfg     SnapConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[SessionResult]
	logger  *slog.Logger
}

func NewSnapClient(cfg SnapConfig, logger *slog.Logger) *SnapClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Acquirer == "" {
		cfg.Acquirer = "gopay"
	}
	if cfg.CustomerName == "" {
		cfg.CustomerName = "Customer"
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "snap"))
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	breaker := gobreaker.NewCircuitBreaker[SessionResult](gobreaker.Settings{
		Name:        "snap",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("gateway circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &SnapClient{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		logger:  logger,
	}
}

type snapTransactionRequest struct {
	PaymentType        string             `json:"payment_type"`
	TransactionDetails snapTransaction    `json:"transaction_details"`
	CustomerDetails    snapCustomer       `json:"customer_details"`
	QRIS               snapQRISParameters `json:"qris"`
}

type snapTransaction struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type snapCustomer struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email,omitempty"`
}

type snapQRISParameters struct {
	Acquirer string `json:"acquirer"`
}

func (c *SnapClient) CreateSession(ctx context.Context, req SessionRequest) (SessionResult, error) {
	result, err := c.breaker.Execute(func() (SessionResult, error) {
		return c.createSession(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return SessionResult{}, fmt.Errorf("%w: %v", ErrGateway, err)
		}
		return SessionResult{}, err
	}
	return result, nil
}

func (c *SnapClient) createSession(ctx context.Context, req SessionRequest) (SessionResult, error) {
	body, err := json.Marshal(snapTransactionRequest{
		PaymentType:        "qris",
		TransactionDetails: snapTransaction{OrderID: req.GatewayOrderID, GrossAmount: req.Amount},
		CustomerDetails:    snapCustomer{FirstName: c.cfg.CustomerName, Email: c.cfg.CustomerEmail},
		QRIS:               snapQRISParameters{Acquirer: c.cfg.Acquirer},
	})
	if err != nil {
		return SessionResult{}, fmt.Errorf("%w: encode request: %v", ErrGateway, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/snap/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return SessionResult{}, fmt.Errorf("%w: build request: %v", ErrGateway, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(c.cfg.ServerKey, "")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return SessionResult{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SessionResult{}, fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return SessionResult{}, fmt.Errorf("%w: status %d: %s", ErrGateway, resp.StatusCode, gatewayMessage(raw))
	}

	result, err := parseSessionResponse(raw)
	if err != nil {
		return SessionResult{}, err
	}
	c.logger.InfoContext(ctx, "gateway session created",
		slog.String("gateway_order_id", req.GatewayOrderID),
		slog.Int64("amount", req.Amount),
		slog.Bool("has_qr", result.QRString != "" || result.QRCodeURL != ""))
	return result, nil
}

type snapTransactionResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
	QRString    string `json:"qr_string"`
	Actions     []struct {
		Name   string `json:"name"`
		Method string `json:"method"`
		URL    string `json:"url"`
	} `json:"actions"`
	PaymentData *struct {
		QRCode string `json:"qr_code"`
	} `json:"payment_data"`
}

func parseSessionResponse(raw []byte) (SessionResult, error) {
	var resp snapTransactionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return SessionResult{}, fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}

	result := SessionResult{
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
		QRString:    resp.QRString,
	}
	for _, action := range resp.Actions {
		switch action.Name {
		case "qr-code", "generate-qr-code":
			result.QRCodeURL = action.URL
		case "get-status":
			result.StatusURL = action.URL
		}
	}
	if resp.PaymentData != nil && resp.PaymentData.QRCode != "" {
		result.QRString = resp.PaymentData.QRCode
	}
	if result.QRString == "" && result.QRCodeURL == "" && result.RedirectURL != "" {
		result.FallbackURL = result.RedirectURL
	}
	if result.Token == "" && result.QRString == "" && result.QRCodeURL == "" && result.RedirectURL == "" {
		return SessionResult{}, fmt.Errorf("%w: response carries no payment data", ErrGateway)
	}
	return result, nil
}

func gatewayMessage(raw []byte) string {
	var body struct {
		ErrorMessages []string `json:"error_messages"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.ErrorMessages) > 0 {
		return strings.Join(body.ErrorMessages, "; ")
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
