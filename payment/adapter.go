// Package payment wraps a hosted checkout widget behind a narrow capability
// interface: load the widget once, open it for an order, get back proof of
// payment or a cancellation/failure.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"farmer-registration/apperr"
	"farmer-registration/models"
)

const (
	MerchantName = "Cyano Veda Natural Farming"
	Description  = "Natural Farming Certification Fee"
	ThemeColor   = "#10b981"
)

// Prefill is the payer information shown in the widget
type Prefill struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Email   string `json:"email,omitempty"`
}

// Checkout is everything a widget needs to collect one payment
type Checkout struct {
	Order       models.OrderDescriptor `json:"order"`
	Merchant    string                 `json:"merchant"`
	Description string                 `json:"description"`
	Theme       string                 `json:"theme"`
	Prefill     Prefill                `json:"prefill"`
	ReferenceID string                 `json:"reference_id"`
}

// Widget is a payment collection UI. Open returns apperr.ErrPaymentCancelled
// when the payer dismisses it and *apperr.PaymentFailure when the provider
// declines.
type Widget interface {
	Load(ctx context.Context) error
	Open(ctx context.Context, checkout Checkout) (models.PaymentProof, error)
}

// LoadError means the widget could not be loaded for this attempt
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("failed to load payment widget: %v", e.Err) }

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) UserMessage() string {
	return "Failed to load payment gateway. Please check your connection and try again."
}

// Adapter drives a Widget for the current flow state
type Adapter struct {
	widget Widget
	state  *models.FlowState
	logger *slog.Logger

	group  singleflight.Group
	mu     sync.Mutex
	loaded bool
}

// NewAdapter creates an Adapter. A nil logger uses slog.Default().
func NewAdapter(widget Widget, state *models.FlowState, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{widget: widget, state: state, logger: logger}
}

// EnsureLoaded loads the widget at most once. Concurrent callers share the
// same load; a failed load is retried by the next caller.
func (a *Adapter) EnsureLoaded(ctx context.Context) error {
	a.mu.Lock()
	loaded := a.loaded
	a.mu.Unlock()
	if loaded {
		return nil
	}

	ch := a.group.DoChan("widget", func() (any, error) {
		if err := a.widget.Load(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.loaded = true
		a.mu.Unlock()
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			a.logger.Warn("payment widget load failed", "error", res.Err)
			return &LoadError{Err: res.Err}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Collect opens the widget for order and waits for the payer. It refuses to
// run before the phone number is verified and a price is resolved.
func (a *Adapter) Collect(ctx context.Context, order models.OrderDescriptor) (models.PaymentProof, error) {
	snap := a.state.Snapshot()
	if !snap.Verified() {
		return models.PaymentProof{}, apperr.ErrNotVerified
	}
	if snap.Amount <= 0 {
		return models.PaymentProof{}, apperr.Invalid("amount", "Payment amount is not available. Please re-enter your coupon.")
	}
	if order.OrderID == "" {
		return models.PaymentProof{}, &apperr.PaymentFailure{Description: "Payment order could not be created"}
	}

	if err := a.EnsureLoaded(ctx); err != nil {
		return models.PaymentProof{}, err
	}

	checkout := Checkout{
		Order:       order,
		Merchant:    MerchantName,
		Description: Description,
		Theme:       ThemeColor,
		Prefill: Prefill{
			Name:    snap.FarmerName,
			Contact: snap.PhoneNumber,
		},
		ReferenceID: snap.ReferenceID,
	}

	a.logger.Info("opening payment widget", "reference_id", snap.ReferenceID, "order_id", order.OrderID, "amount", order.Amount)
	proof, err := a.widget.Open(ctx, checkout)
	switch {
	case errors.Is(err, apperr.ErrPaymentCancelled):
		a.logger.Info("payment cancelled", "reference_id", snap.ReferenceID)
		return models.PaymentProof{}, err
	case err != nil:
		a.logger.Warn("payment failed", "reference_id", snap.ReferenceID, "error", err)
		return models.PaymentProof{}, err
	case proof.PaymentID == "":
		return models.PaymentProof{}, &apperr.PaymentFailure{Description: "Payment response missing payment id"}
	}

	if proof.OrderID == "" {
		proof.OrderID = order.OrderID
	}
	proof.AmountPaise = order.Amount
	if proof.AmountPaise <= 0 {
		proof.AmountPaise = snap.Paise()
	}
	proof.Verified = false
	return proof, nil
}
