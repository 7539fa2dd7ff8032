// Package coupon turns free-text coupon input into a confirmed price.
//
// Input is debounced: each keystroke restarts the window and only the last
// value is validated. Every request is stamped with a sequence number and a
// response is applied only while its stamp is still the latest, so a slow
// reply can never overwrite a newer input.
package coupon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"farmer-registration/models"
	"farmer-registration/view"
)

// Validator looks up coupon codes
type Validator interface {
	ValidateCoupon(ctx context.Context, code string) (models.CouponResponse, error)
}

// Resolution is the outcome applied for one input
type Resolution struct {
	Seq            uint64
	Code           string
	Valid          bool
	Amount         int
	GST            float64
	InfluencerName string
	Status         string
	Kind           view.Kind
}

// Options configures a Resolver
type Options struct {
	Debounce       time.Duration
	DefaultAmount  int
	FallbackAmount int
	Clock          clock.Clock
	Logger         *slog.Logger
}

// Resolver owns the coupon code and price fields of the flow state
type Resolver struct {
	api    Validator
	state  *models.FlowState
	screen *view.Screen
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	latest  uint64
	applied uint64
	timer   *clock.Timer
	settled chan struct{}
}

// NewResolver creates a Resolver writing into state and screen
func NewResolver(api Validator, state *models.FlowState, screen *view.Screen, opts Options) *Resolver {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		api:     api,
		state:   state,
		screen:  screen,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		settled: make(chan struct{}),
	}
}

// Input records a keystroke. Validation runs once the debounce window passes
// without further input.
func (r *Resolver) Input(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.latest++
	seq := r.latest
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = r.opts.Clock.AfterFunc(r.opts.Debounce, func() {
		r.resolve(r.ctx, seq, text)
	})
}

// Resolve validates text now, bypassing the debounce window
func (r *Resolver) Resolve(ctx context.Context, text string) Resolution {
	r.mu.Lock()
	r.latest++
	seq := r.latest
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()
	return r.resolve(ctx, seq, text)
}

// Settle blocks until the latest input has been applied
func (r *Resolver) Settle(ctx context.Context) error {
	for {
		r.mu.Lock()
		if r.applied == r.latest {
			r.mu.Unlock()
			return nil
		}
		ch := r.settled
		r.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending reports whether an input is still waiting to be applied
func (r *Resolver) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied != r.latest
}

// Reset drops any pending input and clears the coupon status. Flow state is
// reset by the owner.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.latest++
	r.markApplied(r.latest)
	r.screen.SetStatus(view.StatusCoupon, "", view.KindNone)
	r.screen.SetField(view.FieldCoupon, "")
	r.screen.SetAmount(r.opts.DefaultAmount, 0)
}

// Close stops background validation
func (r *Resolver) Close() {
	r.cancel()
	r.Reset()
}

func (r *Resolver) resolve(ctx context.Context, seq uint64, text string) Resolution {
	code := strings.TrimSpace(text)

	r.mu.Lock()
	if seq != r.latest {
		r.mu.Unlock()
		return Resolution{Seq: seq}
	}
	if code == "" {
		res := r.noCoupon(seq, "", view.KindNone)
		r.apply(res)
		r.mu.Unlock()
		return res
	}
	r.screen.SetStatus(view.StatusCoupon, "Validating coupon...", view.KindMuted)
	r.mu.Unlock()

	result, err := r.api.ValidateCoupon(ctx, code)

	var res Resolution
	switch {
	case err != nil:
		r.opts.Logger.Warn("coupon validation failed", "error", err)
		res = r.noCoupon(seq, "Unable to validate coupon", view.KindError)
	case !result.Valid:
		res = r.noCoupon(seq, "✗ Invalid referral code", view.KindError)
	default:
		res = r.accepted(seq, code, result)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq != r.latest {
		r.opts.Logger.Debug("discarding stale coupon result", "seq", seq, "latest", r.latest)
		return res
	}
	r.apply(res)
	return res
}

func (r *Resolver) noCoupon(seq uint64, status string, kind view.Kind) Resolution {
	return Resolution{
		Seq:    seq,
		Amount: r.opts.DefaultAmount,
		Status: status,
		Kind:   kind,
	}
}

func (r *Resolver) accepted(seq uint64, code string, result models.CouponResponse) Resolution {
	amount := result.Amount
	if amount <= 0 {
		amount = r.opts.FallbackAmount
	}
	savings := r.opts.DefaultAmount - amount
	status := fmt.Sprintf("✓ Coupon applied! You save ₹%d!", savings)
	if result.InfluencerName != "" {
		status = fmt.Sprintf("✓ Coupon applied! Influencer: %s. You save ₹%d!", result.InfluencerName, savings)
	}
	return Resolution{
		Seq:            seq,
		Code:           code,
		Valid:          true,
		Amount:         amount,
		GST:            result.GST,
		InfluencerName: result.InfluencerName,
		Status:         status,
		Kind:           view.KindSuccess,
	}
}

// apply runs with r.mu held. Once a payment is captured the price is left
// untouched.
func (r *Resolver) apply(res Resolution) {
	locked := false
	r.state.Update(func(s *models.Snapshot) {
		if s.PriceLocked() {
			locked = true
			return
		}
		s.CouponCode = res.Code
		s.Amount = res.Amount
		s.AmountPaise = 0
	})
	if locked {
		r.opts.Logger.Warn("ignoring coupon result after payment capture", "seq", res.Seq)
		r.markApplied(res.Seq)
		return
	}
	r.screen.SetAmount(res.Amount, res.GST)
	r.screen.SetStatus(view.StatusCoupon, res.Status, res.Kind)
	r.markApplied(res.Seq)
}

func (r *Resolver) markApplied(seq uint64) {
	r.applied = seq
	close(r.settled)
	r.settled = make(chan struct{})
}
