package models

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a point-in-time copy of a registration attempt
type Snapshot struct {
	PhoneNumber      string        `json:"phone_number"`
	FarmerName       string        `json:"farmer_name"`
	OTPToken         string        `json:"-"`
	ReferenceID      string        `json:"reference_id,omitempty"`
	CouponCode       string        `json:"coupon_code,omitempty"`
	Amount           int           `json:"amount"`
	AmountPaise      int64         `json:"amount_paise,omitempty"`
	PaymentCompleted bool          `json:"payment_completed"`
	PaymentID        string        `json:"payment_id,omitempty"`
	OrderID          string        `json:"order_id,omitempty"`
	Proof            *PaymentProof `json:"-"`
}

// Verified reports whether the current phone number carries a verification token
func (s Snapshot) Verified() bool {
	return s.OTPToken != ""
}

// Paise returns the amount to charge in minor units. A value supplied by the
// save call wins over the rupee amount.
func (s Snapshot) Paise() int64 {
	if s.AmountPaise > 0 {
		return s.AmountPaise
	}
	return int64(s.Amount) * 100
}

// ChargedPaise is the amount of the captured payment when there is one
func (s Snapshot) ChargedPaise() int64 {
	if s.Proof != nil && s.Proof.AmountPaise > 0 {
		return s.Proof.AmountPaise
	}
	return s.Paise()
}

// PriceLocked reports whether a payment has been captured. From then on the
// amount and coupon describe that payment and must not change.
func (s Snapshot) PriceLocked() bool {
	return s.Proof != nil || s.PaymentCompleted
}

// FlowState is the single mutable record of one registration attempt.
// All reads and writes go through Snapshot and Update.
type FlowState struct {
	mu            sync.RWMutex
	snap          Snapshot
	defaultAmount int
}

// NewFlowState creates a fresh state priced at defaultAmount
func NewFlowState(defaultAmount int) *FlowState {
	return &FlowState{
		snap:          Snapshot{Amount: defaultAmount},
		defaultAmount: defaultAmount,
	}
}

// Snapshot returns a copy of the current state
func (f *FlowState) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := f.snap
	if s.Proof != nil {
		p := *s.Proof
		s.Proof = &p
	}
	return s
}

// Update applies fn to the state under the write lock
func (f *FlowState) Update(fn func(s *Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.snap)
}

// DefaultAmount is the fee charged when no coupon applies
func (f *FlowState) DefaultAmount() int {
	return f.defaultAmount
}

// Reset discards everything captured for the current attempt
func (f *FlowState) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = Snapshot{Amount: f.defaultAmount}
}

// NewReferenceID generates a client-side reference of the form
// REG-<unix millis>-<9 uppercase alphanumerics>.
func NewReferenceID(now time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:9]
	return fmt.Sprintf("REG-%d-%s", now.UnixMilli(), random)
}
