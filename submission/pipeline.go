// Package submission runs the two-phase registration commit: save the draft,
// collect and verify payment when it has not happened yet, then complete.
// Both phases carry the OTP verification token.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/facebookgo/clock"

	"farmer-registration/apperr"
	"farmer-registration/models"
)

// Backend is the REST surface the pipeline calls
type Backend interface {
	SaveRegistration(ctx context.Context, req models.SaveRequest) (models.SaveResponse, error)
	CreateOrder(ctx context.Context, req models.CreateOrderRequest) (models.OrderDescriptor, error)
	VerifyPayment(ctx context.Context, req models.VerifyPaymentRequest) (models.VerifyPaymentResponse, error)
	CompleteRegistration(ctx context.Context, req models.CompleteRequest) (models.CompleteResponse, error)
}

// Collector obtains proof of payment for an order
type Collector interface {
	Collect(ctx context.Context, order models.OrderDescriptor) (models.PaymentProof, error)
}

// Finalizer runs phase 2
type Finalizer interface {
	Finalize(ctx context.Context, in models.FinalizeInput) (models.FinalizeResult, error)
}

// VerificationError means the backend did not accept the payment signature.
// The payment itself has been captured.
type VerificationError struct {
	Err error
}

func (e *VerificationError) Error() string { return fmt.Sprintf("payment verification failed: %v", e.Err) }

func (e *VerificationError) Unwrap() error { return e.Err }

func (e *VerificationError) UserMessage() string {
	return "Payment verification failed. Your payment is safe; please try again to confirm it."
}

// CompletionError is a phase 2 failure after the payment was captured
type CompletionError struct {
	ReferenceID string
	PaymentID   string
	Err         error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("failed to complete registration %s (payment %s): %v", e.ReferenceID, e.PaymentID, e.Err)
}

func (e *CompletionError) Unwrap() []error { return []error{apperr.ErrCompletionFailed, e.Err} }

func (e *CompletionError) UserMessage() string {
	msg := strings.TrimSuffix(apperr.UserMessage(e.Err, "Registration could not be completed"), ".")
	return fmt.Sprintf("%s. Your payment %s was received; please retry to complete your registration.", msg, e.PaymentID)
}

// Config wires a Pipeline
type Config struct {
	Backend   Backend
	Collector Collector
	Finalizer Finalizer
	State     *models.FlowState
	Policy    models.VerifyPolicy
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Pipeline is the registration submission pipeline
type Pipeline struct {
	api       Backend
	collector Collector
	finalizer Finalizer
	state     *models.FlowState
	policy    models.VerifyPolicy
	clock     clock.Clock
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline. Without a Finalizer phase 2 calls the
// backend directly.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Policy == "" {
		cfg.Policy = models.VerifyStrict
	}
	if cfg.Finalizer == nil {
		cfg.Finalizer = NewDirectFinalizer(cfg.Backend, cfg.Logger)
	}
	return &Pipeline{
		api:       cfg.Backend,
		collector: cfg.Collector,
		finalizer: cfg.Finalizer,
		state:     cfg.State,
		policy:    cfg.Policy,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
}

// Policy is the payment verification policy in force
func (p *Pipeline) Policy() models.VerifyPolicy {
	return p.policy
}

// EnsureReference returns the current reference id, generating one the first
// time. The same id is reused for every retry.
func (p *Pipeline) EnsureReference() string {
	var ref string
	p.state.Update(func(s *models.Snapshot) {
		if s.ReferenceID == "" {
			s.ReferenceID = models.NewReferenceID(p.clock.Now())
		}
		ref = s.ReferenceID
	})
	return ref
}

// Save is phase 1. The canonical reference, price and token returned by the
// backend replace the local values.
func (p *Pipeline) Save(ctx context.Context, form models.FarmerForm) error {
	snap := p.state.Snapshot()
	if !snap.Verified() {
		return apperr.ErrNotVerified
	}
	ref := p.EnsureReference()

	p.logger.Info("saving registration", "reference_id", ref, "otp_token_present", true)
	resp, err := p.api.SaveRegistration(ctx, models.SaveRequest{
		OTPToken:    snap.OTPToken,
		ReferenceID: ref,
		CouponCode:  snap.CouponCode,
		Form:        form,
	})
	if err != nil {
		p.logger.Warn("save registration failed", "reference_id", ref, "kind", apperr.Kind(err), "error", err)
		return fmt.Errorf("failed to save registration: %w", err)
	}

	p.state.Update(func(s *models.Snapshot) {
		if resp.ReferenceID != "" {
			s.ReferenceID = resp.ReferenceID
		}
		if resp.OTPToken != "" {
			s.OTPToken = resp.OTPToken
		}
		if s.PriceLocked() {
			return
		}
		if resp.Amount > 0 {
			s.Amount = resp.Amount
		}
		if resp.AmountPaise > 0 {
			s.AmountPaise = resp.AmountPaise
		}
	})
	p.logger.Info("registration saved", "reference_id", p.state.Snapshot().ReferenceID)
	return nil
}

// Pay creates an order, collects the payment and verifies it. A proof that
// was captured but not yet verified is only re-verified; the payer is never
// charged twice for one reference.
func (p *Pipeline) Pay(ctx context.Context, email string) (models.PaymentProof, error) {
	snap := p.state.Snapshot()
	if snap.PaymentCompleted && snap.Proof != nil {
		return *snap.Proof, nil
	}
	if !snap.Verified() {
		return models.PaymentProof{}, apperr.ErrNotVerified
	}
	if snap.Proof != nil && !snap.Proof.Verified {
		p.logger.Info("retrying payment verification", "reference_id", snap.ReferenceID, "payment_id", snap.Proof.PaymentID)
		return p.verify(ctx)
	}

	ref := p.EnsureReference()
	snap = p.state.Snapshot()

	order, err := p.api.CreateOrder(ctx, models.CreateOrderRequest{
		Amount:                snap.Paise(),
		FarmerName:            snap.FarmerName,
		EmailID:               email,
		RegistrationReference: ref,
		CouponCode:            snap.CouponCode,
	})
	if err != nil {
		p.logger.Warn("create order failed", "reference_id", ref, "error", err)
		return models.PaymentProof{}, fmt.Errorf("failed to create payment order: %w", err)
	}
	p.logger.Info("payment order created", "reference_id", ref, "order_id", order.OrderID, "amount", order.Amount)

	proof, err := p.collector.Collect(ctx, order)
	if err != nil {
		return models.PaymentProof{}, err
	}

	p.state.Update(func(s *models.Snapshot) {
		s.Proof = &proof
		s.OrderID = proof.OrderID
		s.PaymentID = proof.PaymentID
	})
	return p.verify(ctx)
}

func (p *Pipeline) verify(ctx context.Context) (models.PaymentProof, error) {
	snap := p.state.Snapshot()
	proof := *snap.Proof

	_, err := p.api.VerifyPayment(ctx, models.VerifyPaymentRequest{
		RazorpayOrderID:       proof.OrderID,
		RazorpayPaymentID:     proof.PaymentID,
		RazorpaySignature:     proof.Signature,
		Amount:                snap.ChargedPaise(),
		RegistrationReference: snap.ReferenceID,
	})
	if err != nil {
		if p.policy == models.VerifyStrict {
			p.logger.Warn("payment verification failed", "reference_id", snap.ReferenceID, "payment_id", proof.PaymentID, "error", err)
			return proof, &VerificationError{Err: err}
		}
		p.logger.Warn("payment verification failed, continuing", "reference_id", snap.ReferenceID, "payment_id", proof.PaymentID, "policy", p.policy, "error", err)
	} else {
		proof.Verified = true
		p.logger.Info("payment verified", "reference_id", snap.ReferenceID, "payment_id", proof.PaymentID)
	}

	p.state.Update(func(s *models.Snapshot) {
		s.Proof = &proof
		s.PaymentCompleted = true
		s.PaymentID = proof.PaymentID
		s.OrderID = proof.OrderID
	})
	return proof, nil
}

// Complete is phase 2. It may be called again with the same state after a
// failure.
func (p *Pipeline) Complete(ctx context.Context) (models.Receipt, error) {
	snap := p.state.Snapshot()
	if !snap.Verified() {
		return models.Receipt{}, apperr.ErrNotVerified
	}
	if !snap.PaymentCompleted || snap.Proof == nil {
		return models.Receipt{}, errors.New("payment has not been completed")
	}
	if snap.ReferenceID == "" {
		return models.Receipt{}, apperr.Invalid("referenceId", "Registration reference missing. Please refresh and try again.")
	}

	in := models.FinalizeInput{
		ReferenceID: snap.ReferenceID,
		OTPToken:    snap.OTPToken,
		Proof:       *snap.Proof,
		Verified:    snap.Proof.Verified,
		Amount:      snap.Amount,
		AmountPaise: snap.ChargedPaise(),
		CouponCode:  snap.CouponCode,
		Policy:      p.policy,
	}

	p.logger.Info("completing registration", "reference_id", in.ReferenceID, "payment_id", in.Proof.PaymentID)
	result, err := p.finalizer.Finalize(ctx, in)
	if err != nil {
		p.logger.Error("complete registration failed", "reference_id", in.ReferenceID, "payment_id", in.Proof.PaymentID, "error", err)
		return models.Receipt{}, &CompletionError{ReferenceID: in.ReferenceID, PaymentID: in.Proof.PaymentID, Err: err}
	}

	if result.Verified && !in.Verified {
		p.state.Update(func(s *models.Snapshot) {
			if s.Proof != nil {
				s.Proof.Verified = true
			}
		})
	}

	discount := p.state.DefaultAmount() - snap.Amount
	if discount < 0 {
		discount = 0
	}
	return models.Receipt{
		ReferenceID: in.ReferenceID,
		PaymentID:   in.Proof.PaymentID,
		OrderID:     in.Proof.OrderID,
		Amount:      snap.Amount,
		Discount:    discount,
		CouponCode:  snap.CouponCode,
	}, nil
}

// Submit runs the single-page journey: save, pay if not yet paid, complete.
// A save failure stops before any payment is attempted.
func (p *Pipeline) Submit(ctx context.Context, form models.FarmerForm) (models.Receipt, error) {
	if err := p.Save(ctx, form); err != nil {
		return models.Receipt{}, err
	}
	if !p.state.Snapshot().PaymentCompleted {
		if _, err := p.Pay(ctx, form.EmailID); err != nil {
			return models.Receipt{}, err
		}
	}
	return p.Complete(ctx)
}
