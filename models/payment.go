package models

import (
	"fmt"
	"time"
)

// PaymentProof is what the checkout widget hands back after a completed payment
type PaymentProof struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
	// Verified is set once the backend accepted the signature
	Verified bool `json:"-"`
	// AmountPaise is what the order charged, taken from the order and never
	// from the widget
	AmountPaise int64 `json:"-"`
}

// VerifyPolicy decides what a failed server-side payment verification means
type VerifyPolicy string

const (
	// VerifyStrict blocks the flow until verification succeeds
	VerifyStrict VerifyPolicy = "strict"
	// VerifyBestEffort logs the failure and carries on
	VerifyBestEffort VerifyPolicy = "best-effort"
)

// ParseVerifyPolicy accepts "strict" or "best-effort"
func ParseVerifyPolicy(s string) (VerifyPolicy, error) {
	switch VerifyPolicy(s) {
	case VerifyStrict, VerifyBestEffort:
		return VerifyPolicy(s), nil
	case "":
		return VerifyStrict, nil
	default:
		return "", fmt.Errorf("unknown verify policy %q", s)
	}
}

// FinalizeInput is everything phase 2 needs; it is also the workflow input
type FinalizeInput struct {
	ReferenceID string       `json:"reference_id"`
	OTPToken    string       `json:"otp_token"`
	Proof       PaymentProof `json:"proof"`
	Verified    bool         `json:"verified"`
	Amount      int          `json:"amount"`
	AmountPaise int64        `json:"amount_paise"`
	CouponCode  string       `json:"coupon_code,omitempty"`
	Policy      VerifyPolicy `json:"policy"`
}

// CompleteRequest builds the phase 2 request body
func (in FinalizeInput) CompleteRequest() CompleteRequest {
	return CompleteRequest{
		ReferenceID:      in.ReferenceID,
		OTPToken:         in.OTPToken,
		PaymentID:        in.Proof.PaymentID,
		OrderID:          in.Proof.OrderID,
		PaymentAmount:    in.Amount,
		PaymentSignature: in.Proof.Signature,
		CouponCode:       in.CouponCode,
	}
}

// VerifyRequest builds the payment verification request body
func (in FinalizeInput) VerifyRequest() VerifyPaymentRequest {
	return VerifyPaymentRequest{
		RazorpayOrderID:       in.Proof.OrderID,
		RazorpayPaymentID:     in.Proof.PaymentID,
		RazorpaySignature:     in.Proof.Signature,
		Amount:                in.AmountPaise,
		RegistrationReference: in.ReferenceID,
	}
}

// FinalizeResult reports how phase 2 ended
type FinalizeResult struct {
	ReferenceID string `json:"reference_id"`
	PaymentID   string `json:"payment_id"`
	Verified    bool   `json:"verified"`
}

// FinalizeStatus represents the current status of a finalization
type FinalizeStatus string

const (
	FinalizeStatusPending   FinalizeStatus = "PENDING"
	FinalizeStatusVerifying FinalizeStatus = "VERIFYING"
	FinalizeStatusVerified  FinalizeStatus = "VERIFIED"
	FinalizeStatusCompleted FinalizeStatus = "COMPLETED"
	FinalizeStatusFailed    FinalizeStatus = "FAILED"
)

// FinalizeState is exposed through the finalization workflow's state query
type FinalizeState struct {
	ReferenceID  string         `json:"reference_id"`
	PaymentID    string         `json:"payment_id"`
	Status       FinalizeStatus `json:"status"`
	VerifyDone   bool           `json:"verify_done"`
	VerifyWarned bool           `json:"verify_warned"`
	CompleteDone bool           `json:"complete_done"`
	LastError    string         `json:"last_error,omitempty"`
	LastUpdated  time.Time      `json:"last_updated"`
}

// Receipt summarizes a completed registration for the success panel
type Receipt struct {
	ReferenceID string `json:"reference_id"`
	PaymentID   string `json:"payment_id"`
	OrderID     string `json:"order_id"`
	Amount      int    `json:"amount"`
	Discount    int    `json:"discount"`
	CouponCode  string `json:"coupon_code,omitempty"`
}
