// Package payu talks to the PayU REST API: OAuth client credentials and order registration.
package payu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/breaker"
)

// Config holds PayU credentials and callback URLs.
type Config struct {
	APIURL       string
	PosID        string
	ClientID     string
	ClientSecret string
	NotifyURL    string
	ContinueURL  string
	Currency     string
}

// Enabled reports whether the gateway is configured.
func (c Config) Enabled() bool {
	return c.APIURL != "" && c.PosID != ""
}

// Product is one order line as sent to PayU.
type Product struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// OrderRequest registers a payment.
type OrderRequest struct {
	ExtOrderID  string
	Description string
	CustomerIP  string
	TotalAmount decimal.Decimal
	BuyerName   string
	Products    []Product
}

// OrderResponse is the gateway answer with the buyer redirect.
type OrderResponse struct {
	OrderID     string `json:"orderId"`
	ExtOrderID  string `json:"extOrderId"`
	RedirectURI string `json:"redirectUri"`
	Status      struct {
		StatusCode string `json:"statusCode"`
	} `json:"status"`
}

type token struct {
	value   string
	expires time.Time
}

// Client registers orders with PayU.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *breaker.Breaker
	logger     *slog.Logger

	mu    sync.Mutex
	token token
	now   func() time.Time
}

// NewClient constructs a client. Redirect responses are returned to the caller, not followed.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Currency == "" {
		cfg.Currency = "PLN"
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		breaker: breaker.New(breaker.DefaultConfig("payu"), logger),
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterOrder creates a PayU order and returns its redirect URI. Failures wrap shared.ErrGatewayUnavailable.
func (c *Client) RegisterOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	return breaker.Do(c.breaker, func() (OrderResponse, error) {
		tok, err := c.accessToken(ctx)
		if err != nil {
			return OrderResponse{}, err
		}
		return c.createOrder(ctx, tok, req)
	})
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.value != "" && c.now().Before(c.token.expires) {
		return c.token.value, nil
	}
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.APIURL, "/")+"/pl/standard/user/oauth/authorize", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("payu: authorize returned status %d", resp.StatusCode)
	}
	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("payu: decode token: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("payu: empty access token")
	}
	ttl := time.Duration(body.ExpiresIn) * time.Second
	if ttl > time.Minute {
		ttl -= time.Minute
	}
	c.token = token{value: body.AccessToken, expires: c.now().Add(ttl)}
	return body.AccessToken, nil
}

type orderPayload struct {
	NotifyURL     string           `json:"notifyUrl,omitempty"`
	ContinueURL   string           `json:"continueUrl,omitempty"`
	CustomerIP    string           `json:"customerIp"`
	MerchantPosID string           `json:"merchantPosId"`
	Description   string           `json:"description"`
	CurrencyCode  string           `json:"currencyCode"`
	TotalAmount   string           `json:"totalAmount"`
	ExtOrderID    string           `json:"extOrderId"`
	Buyer         *buyerPayload    `json:"buyer,omitempty"`
	Products      []productPayload `json:"products"`
}

type buyerPayload struct {
	FirstName string `json:"firstName"`
	Language  string `json:"language"`
}

type productPayload struct {
	Name      string `json:"name"`
	UnitPrice string `json:"unitPrice"`
	Quantity  string `json:"quantity"`
}

// MinorUnits renders an amount in grosze as PayU expects.
func MinorUnits(amount decimal.Decimal) string {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).String()
}

func (c *Client) createOrder(ctx context.Context, tok string, req OrderRequest) (OrderResponse, error) {
	payload := orderPayload{
		NotifyURL:     c.cfg.NotifyURL,
		ContinueURL:   c.cfg.ContinueURL,
		CustomerIP:    req.CustomerIP,
		MerchantPosID: c.cfg.PosID,
		Description:   req.Description,
		CurrencyCode:  c.cfg.Currency,
		TotalAmount:   MinorUnits(req.TotalAmount),
		ExtOrderID:    req.ExtOrderID,
	}
	if payload.CustomerIP == "" {
		payload.CustomerIP = "127.0.0.1"
	}
	if req.BuyerName != "" {
		payload.Buyer = &buyerPayload{FirstName: req.BuyerName, Language: "pl"}
	}
	for _, p := range req.Products {
		payload.Products = append(payload.Products, productPayload{
			Name:      p.Name,
			UnitPrice: MinorUnits(p.UnitPrice),
			Quantity:  fmt.Sprint(p.Quantity),
		})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return OrderResponse{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.APIURL, "/")+"/api/v2_1/orders", bytes.NewReader(raw))
	if err != nil {
		return OrderResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+tok)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return OrderResponse{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return OrderResponse{}, err
	}
	if resp.StatusCode >= 400 {
		c.logger.Error("payu create order failed", slog.Int("status", resp.StatusCode), slog.String("body", string(body)))
		return OrderResponse{}, fmt.Errorf("payu: create order returned status %d", resp.StatusCode)
	}
	var out OrderResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil && resp.StatusCode < 300 {
			return OrderResponse{}, fmt.Errorf("payu: decode order: %w", err)
		}
	}
	if out.RedirectURI == "" {
		out.RedirectURI = resp.Header.Get("Location")
	}
	if out.RedirectURI == "" {
		return OrderResponse{}, fmt.Errorf("payu: response without redirect uri")
	}
	return out, nil
}
