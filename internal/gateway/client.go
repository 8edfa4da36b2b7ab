// Package gateway talks to the card payment provider over its REST API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
)

const (
	defaultTimeout = 10 * time.Second
	maxBody        = 1 << 20
)

type Config struct {
	BaseURL      string
	PublicKey    string
	PrivateKey   string
	IntegrityKey string
	Timeout      time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client. Its Timeout is kept.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTokenStore shares acceptance tokens through store.
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.store = store }
}

// WithTokenCache replaces the built-in acceptance token cache.
func WithTokenCache(tc TokenCache) Option {
	return func(c *Client) { c.tokens = tc }
}

type Client struct {
	base    *url.URL
	cfg     Config
	timeout time.Duration
	http    *http.Client
	store   TokenStore
	tokens  TokenCache
	log     *zap.Logger
}

func New(cfg Config, log *zap.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway base url: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		base:    base,
		cfg:     cfg,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		c.tokens = NewAcceptanceTokens(c.FetchAcceptanceToken, c.store, c.log)
	}
	return c, nil
}

// FetchAcceptanceToken reads the merchant's presigned acceptance token.
func (c *Client) FetchAcceptanceToken(ctx context.Context) (string, error) {
	data, err := c.do(ctx, "acceptance_token", http.MethodGet, "/merchants/"+url.PathEscape(c.cfg.PublicKey), false, nil)
	if err != nil {
		return "", err
	}
	var m merchant
	if err := json.Unmarshal(data, &m); err != nil {
		return "", &payments.GatewayError{Op: "acceptance_token", Message: "malformed merchant", Err: err}
	}
	if m.PresignedAcceptance.AcceptanceToken == "" {
		return "", &payments.GatewayError{Op: "acceptance_token", Message: "merchant without acceptance token"}
	}
	return m.PresignedAcceptance.AcceptanceToken, nil
}

// CreatePayment charges a tokenized card. A decline is a successful call with
// a non-APPROVED status. When the provider rejects the acceptance token the
// cache is invalidated and the call is repeated once.
func (c *Client) CreatePayment(ctx context.Context, in PaymentData) (PaymentResponse, error) {
	resp, err := c.createPayment(ctx, in)
	if err != nil && acceptanceRejected(err) {
		c.log.Warn("acceptance token rejected, refreshing", zap.String("reference", in.Reference), zap.Error(err))
		if ierr := c.tokens.Invalidate(ctx); ierr != nil {
			c.log.Warn("invalidate acceptance token", zap.Error(ierr))
		}
		resp, err = c.createPayment(ctx, in)
	}
	return resp, err
}

func (c *Client) createPayment(ctx context.Context, in PaymentData) (PaymentResponse, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		if payments.IsGatewayError(err) {
			return PaymentResponse{}, err
		}
		return PaymentResponse{}, &payments.GatewayError{Op: "acceptance_token", Err: err}
	}

	body := createTransactionRequest{
		AcceptanceToken: token,
		AmountInCents:   in.AmountInCents,
		Currency:        in.Currency,
		CustomerEmail:   in.CustomerEmail,
		PaymentMethod: paymentMethod{
			Type:         "CARD",
			Token:        in.CardToken,
			Installments: in.Installments,
		},
		Reference: in.Reference,
		Signature: IntegritySignature(in.Reference, in.AmountInCents, in.Currency, c.cfg.IntegrityKey),
	}
	data, err := c.do(ctx, "create_payment", http.MethodPost, "/transactions", true, body)
	if err != nil {
		return PaymentResponse{}, err
	}
	st, err := decodeTransaction("create_payment", data)
	if err != nil {
		return PaymentResponse{}, err
	}
	c.log.Info("payment created",
		zap.String("reference", in.Reference),
		zap.String("external_id", st.ID),
		zap.String("status", st.Status))
	return PaymentResponse{
		ID:            st.ID,
		Status:        st.Status,
		Reference:     st.Reference,
		StatusMessage: st.StatusMessage,
		Raw:           st.Raw,
	}, nil
}

// GetStatus fetches the provider's view of a transaction.
func (c *Client) GetStatus(ctx context.Context, externalID string) (TransactionStatus, error) {
	data, err := c.do(ctx, "get_status", http.MethodGet, "/transactions/"+url.PathEscape(externalID), true, nil)
	if err != nil {
		return TransactionStatus{}, err
	}
	return decodeTransaction("get_status", data)
}

func decodeTransaction(op string, data json.RawMessage) (TransactionStatus, error) {
	var st TransactionStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return TransactionStatus{}, &payments.GatewayError{Op: op, Message: "malformed transaction", Err: err}
	}
	if st.ID == "" || st.Status == "" {
		return TransactionStatus{}, &payments.GatewayError{Op: op, Message: "transaction without id or status"}
	}
	st.Raw = data
	return st, nil
}

// do sends one request and returns the "data" member of the reply.
func (c *Client) do(ctx context.Context, op, method, path string, auth bool, in any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var buf io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, &payments.GatewayError{Op: op, Message: "encode request", Err: err}
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, buf)
	if err != nil {
		return nil, &payments.GatewayError{Op: op, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.cfg.PrivateKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &payments.GatewayError{Op: op, Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &payments.GatewayError{Op: op, StatusCode: resp.StatusCode, Timeout: isTimeout(err), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &payments.GatewayError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &payments.GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &payments.GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "response without data"}
	}
	return env.Data, nil
}

func errorMessage(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		switch {
		case len(env.Error.Messages) > 0:
			return string(env.Error.Messages)
		case env.Error.Reason != "":
			return env.Error.Reason
		case env.Error.Type != "":
			return env.Error.Type
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func acceptanceRejected(err error) bool {
	var ge *payments.GatewayError
	if !errors.As(err, &ge) {
		return false
	}
	if ge.StatusCode != http.StatusUnauthorized && ge.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	msg := strings.ToLower(ge.Message)
	return strings.Contains(msg, "acceptance_token") || strings.Contains(msg, "acceptance token")
}
