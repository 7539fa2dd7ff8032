// Package backend is the REST client for the registration API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"farmer-registration/models"
)

const (
	PathSendOTP              = "/api/otp/send"
	PathVerifyOTP            = "/api/otp/verify"
	PathValidateCoupon       = "/api/validate-coupon"
	PathCreateOrder          = "/api/create-order"
	PathSaveRegistration     = "/api/registration/save"
	PathCompleteRegistration = "/api/registration/complete"
	PathVerifyPayment        = "/api/verify-payment"
)

// APIError is a non-2xx reply from the backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// UserMessage is the response's message field, or a generic fallback
func (e *APIError) UserMessage() string {
	if e.Message == "" {
		return "Request failed"
	}
	return e.Message
}

// Retryable reports whether repeating the same request may succeed
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// Client calls the registration backend. Session cookies are kept in a jar
// and sent with every request.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client for baseURL. There is no client-side timeout;
// callers bound requests through their context.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	c := &Client{
		httpClient: &http.Client{Jar: jar},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SendOTP dispatches an OTP to phone
func (c *Client) SendOTP(ctx context.Context, phone string) (models.SendOTPResponse, error) {
	var resp models.SendOTPResponse
	err := c.do(ctx, http.MethodPost, PathSendOTP, models.SendOTPRequest{PhoneNumber: phone}, &resp)
	return resp, err
}

// VerifyOTP exchanges an OTP for a verification token
func (c *Client) VerifyOTP(ctx context.Context, phone, code string) (models.VerifyOTPResponse, error) {
	var resp models.VerifyOTPResponse
	err := c.do(ctx, http.MethodPost, PathVerifyOTP, models.VerifyOTPRequest{PhoneNumber: phone, OTPCode: code}, &resp)
	return resp, err
}

// ValidateCoupon looks up a coupon/referral code
func (c *Client) ValidateCoupon(ctx context.Context, code string) (models.CouponResponse, error) {
	var resp models.CouponResponse
	path := PathValidateCoupon + "?code=" + url.QueryEscape(code)
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// CreateOrder opens a payment order
func (c *Client) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (models.OrderDescriptor, error) {
	var resp models.OrderDescriptor
	err := c.do(ctx, http.MethodPost, PathCreateOrder, req, &resp)
	return resp, err
}

// SaveRegistration stores the draft registration (phase 1)
func (c *Client) SaveRegistration(ctx context.Context, req models.SaveRequest) (models.SaveResponse, error) {
	var resp models.SaveResponse
	err := c.do(ctx, http.MethodPost, PathSaveRegistration, req, &resp)
	return resp, err
}

// CompleteRegistration finalizes a paid registration (phase 2)
func (c *Client) CompleteRegistration(ctx context.Context, req models.CompleteRequest) (models.CompleteResponse, error) {
	var resp models.CompleteResponse
	if err := c.do(ctx, http.MethodPost, PathCompleteRegistration, req, &resp); err != nil {
		return resp, err
	}
	if resp.Success != nil && !*resp.Success {
		return resp, &APIError{StatusCode: http.StatusOK, Message: resp.Message}
	}
	return resp, nil
}

// VerifyPayment asks the backend to check the payment signature
func (c *Client) VerifyPayment(ctx context.Context, req models.VerifyPaymentRequest) (models.VerifyPaymentResponse, error) {
	var resp models.VerifyPaymentResponse
	if err := c.do(ctx, http.MethodPost, PathVerifyPayment, req, &resp); err != nil {
		return resp, err
	}
	if resp.Success != nil && !*resp.Success {
		return resp, &APIError{StatusCode: http.StatusOK, Message: resp.Message}
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", path, err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e models.ErrorResponse
		_ = json.Unmarshal(raw, &e)
		c.logger.Warn("backend request failed", "method", method, "path", stripQuery(path), "status", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode, Message: e.Message}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
