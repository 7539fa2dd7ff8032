// Package flow sequences the registration journey: phone verification and
// coupon pricing, payment, the detail form, and the success panel. The
// Controller owns the FlowState and decides which section of the Screen is
// visible.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/looplab/fsm"

	"farmer-registration/apperr"
	"farmer-registration/coupon"
	"farmer-registration/models"
	"farmer-registration/otp"
	"farmer-registration/payment"
	"farmer-registration/submission"
	"farmer-registration/view"
)

const (
	StagePreRegistration = "pre_registration"
	StagePaying          = "paying"
	StageDetails         = "details"
	StageSubmitting      = "submitting"
	StageSuccess         = "success"
)

const (
	evPay              = "pay"
	evPaid             = "paid"
	evPayFailed        = "pay_failed"
	evSubmit           = "submit"
	evSubmitted        = "submitted"
	evSubmitFailed     = "submit_failed"
	evSinglePageFailed = "single_page_failed"
	evRestart          = "restart"
)

const (
	labelProceed = "Proceed to Payment"
	labelSubmit  = "Complete Registration"
	dateLayout   = "2006-01-02"

	msgVerifyFirst       = "Please verify your mobile number first"
	msgTokenExpired      = "OTP verification expired. Please refresh the page and start again."
	msgPhoneMismatch     = "Phone number mismatch. Please refresh and try again."
	msgReferenceMissing  = "Registration reference missing. Please refresh and try again."
	msgPaymentIncomplete = "Please complete the payment first"
	msgPhoneLocked       = "Phone number cannot be changed after payment."
	msgPriceLocked       = "Coupon cannot be changed after payment."
)

// API is the backend surface of the whole journey
type API interface {
	otp.API
	coupon.Validator
	submission.Backend
}

// Options configures a Controller
type Options struct {
	DefaultAmount  int
	FallbackAmount int
	OTPLength      int
	ResendCooldown time.Duration
	OTPExpiry      time.Duration
	CouponDebounce time.Duration
	Policy         models.VerifyPolicy
	Finalizer      submission.Finalizer
	Clock          clock.Clock
	Logger         *slog.Logger
}

// Controller drives one registration attempt at a time
type Controller struct {
	screen   *view.Screen
	state    *models.FlowState
	session  *otp.Session
	coupons  *coupon.Resolver
	adapter  *payment.Adapter
	pipeline *submission.Pipeline
	clock    clock.Clock
	logger   *slog.Logger

	mu    sync.Mutex
	stage *fsm.FSM
}

// New wires a Controller and its components around a fresh FlowState
func New(api API, widget payment.Widget, opts Options) *Controller {
	if opts.DefaultAmount <= 0 {
		opts.DefaultAmount = 300
	}
	if opts.FallbackAmount <= 0 {
		opts.FallbackAmount = 250
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	screen := view.NewScreen()
	state := models.NewFlowState(opts.DefaultAmount)
	adapter := payment.NewAdapter(widget, state, opts.Logger)

	c := &Controller{
		screen: screen,
		state:  state,
		session: otp.NewSession(api, state, screen, otp.Options{
			ResendCooldown: opts.ResendCooldown,
			OTPExpiry:      opts.OTPExpiry,
			OTPLength:      opts.OTPLength,
			Clock:          opts.Clock,
			Logger:         opts.Logger,
		}),
		coupons: coupon.NewResolver(api, state, screen, coupon.Options{
			Debounce:       opts.CouponDebounce,
			DefaultAmount:  opts.DefaultAmount,
			FallbackAmount: opts.FallbackAmount,
			Clock:          opts.Clock,
			Logger:         opts.Logger,
		}),
		adapter: adapter,
		pipeline: submission.NewPipeline(submission.Config{
			Backend:   api,
			Collector: adapter,
			Finalizer: opts.Finalizer,
			State:     state,
			Policy:    opts.Policy,
			Clock:     opts.Clock,
			Logger:    opts.Logger,
		}),
		clock:  opts.Clock,
		logger: opts.Logger,
		stage:  newStageMachine(),
	}
	screen.SetAmount(opts.DefaultAmount, 0)
	return c
}

func newStageMachine() *fsm.FSM {
	return fsm.NewFSM(
		StagePreRegistration,
		fsm.Events{
			{Name: evPay, Src: []string{StagePreRegistration}, Dst: StagePaying},
			{Name: evPaid, Src: []string{StagePaying}, Dst: StageDetails},
			{Name: evPayFailed, Src: []string{StagePaying}, Dst: StagePreRegistration},
			{Name: evSubmit, Src: []string{StagePreRegistration, StageDetails}, Dst: StageSubmitting},
			{Name: evSubmitted, Src: []string{StageSubmitting}, Dst: StageSuccess},
			{Name: evSubmitFailed, Src: []string{StageSubmitting}, Dst: StageDetails},
			{Name: evSinglePageFailed, Src: []string{StageSubmitting}, Dst: StagePreRegistration},
			{Name: evRestart, Src: []string{StageSuccess}, Dst: StagePreRegistration},
		},
		fsm.Callbacks{},
	)
}

// Screen is the rendered page
func (c *Controller) Screen() *view.Screen { return c.screen }

// State returns a copy of the flow state
func (c *Controller) State() models.Snapshot { return c.state.Snapshot() }

// Stage is the current journey stage
func (c *Controller) Stage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage.Current()
}

// OTPState is the current OTP session state
func (c *Controller) OTPState() string { return c.session.State() }

// Adapter exposes the payment adapter so front-ends can preload the widget
func (c *Controller) Adapter() *payment.Adapter { return c.adapter }

// Close stops timers and pending coupon validation
func (c *Controller) Close() {
	c.session.Close()
	c.coupons.Close()
}

func (c *Controller) transition(ctx context.Context, event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.stage.Event(ctx, event); err != nil {
		return fmt.Errorf("%w: %s not allowed in stage %s", apperr.ErrBusy, event, c.stage.Current())
	}
	return nil
}

func (c *Controller) inStage(stages ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range stages {
		if c.stage.Is(s) {
			return true
		}
	}
	return false
}

// SendOTP captures name and phone and requests an OTP
func (c *Controller) SendOTP(ctx context.Context, name, phone string) error {
	if !c.inStage(StagePreRegistration) {
		return fmt.Errorf("%w: phone verification is closed", apperr.ErrBusy)
	}
	c.screen.SetField(view.FieldFarmerName, name)
	c.screen.SetField(view.FieldPhone, phone)
	return c.session.RequestOTP(ctx, name, phone)
}

// ResendOTP requests a fresh OTP for the same phone once the cooldown ends
func (c *Controller) ResendOTP(ctx context.Context) error {
	return c.session.ResendOTP(ctx)
}

// VerifyOTP verifies code for the phone the OTP was sent to. Success enables
// the proceed action.
func (c *Controller) VerifyOTP(ctx context.Context, code string) error {
	c.screen.SetField(view.FieldOTP, code)
	phone := c.session.Phone()
	if phone == "" {
		phone = c.screen.Field(view.FieldPhone)
	}
	if _, err := c.session.VerifyOTP(ctx, phone, code); err != nil {
		return err
	}
	c.screen.SetButton(view.ButtonProceed, true, labelProceed)
	return nil
}

// EditPhone replaces the phone number. Any verification of the previous
// number is discarded.
func (c *Controller) EditPhone(phone string) error {
	if !c.inStage(StagePreRegistration) || c.state.Snapshot().PriceLocked() {
		c.screen.Alert(msgPhoneLocked)
		return fmt.Errorf("%w: phone number is locked after payment", apperr.ErrBusy)
	}
	c.session.EditPhone()
	c.screen.SetField(view.FieldPhone, phone)
	c.screen.SetButton(view.ButtonProceed, false, labelProceed)
	return nil
}

// CouponInput feeds a coupon keystroke into the debounced resolver
func (c *Controller) CouponInput(text string) {
	if !c.inStage(StagePreRegistration) || c.state.Snapshot().PriceLocked() {
		c.logger.Debug("ignoring coupon input while the price is locked")
		return
	}
	c.screen.SetField(view.FieldCoupon, text)
	c.coupons.Input(text)
}

// ApplyCoupon validates text immediately
func (c *Controller) ApplyCoupon(ctx context.Context, text string) (coupon.Resolution, error) {
	if !c.inStage(StagePreRegistration) || c.state.Snapshot().PriceLocked() {
		c.screen.Alert(msgPriceLocked)
		return coupon.Resolution{}, fmt.Errorf("%w: price is locked", apperr.ErrBusy)
	}
	c.screen.SetField(view.FieldCoupon, text)
	return c.coupons.Resolve(ctx, text), nil
}

// ProceedToPayment settles the price, creates an order and collects the
// payment. It is refused while the phone number is unverified. After a
// captured but unverified payment it only retries verification.
func (c *Controller) ProceedToPayment(ctx context.Context) error {
	if !c.state.Snapshot().Verified() {
		c.screen.Alert(msgVerifyFirst)
		return apperr.ErrNotVerified
	}
	if err := c.transition(ctx, evPay); err != nil {
		return err
	}

	if err := c.coupons.Settle(ctx); err != nil {
		_ = c.transition(ctx, evPayFailed)
		return err
	}

	c.screen.SetButton(view.ButtonProceed, false, "Processing...")
	proof, err := c.pipeline.Pay(ctx, "")
	if err != nil {
		_ = c.transition(ctx, evPayFailed)
		c.screen.SetButton(view.ButtonProceed, true, labelProceed)
		c.screen.Alert(apperr.UserMessage(err, "Payment failed. Please try again."))
		c.logger.Warn("payment step failed", "kind", apperr.Kind(err), "error", err)
		return err
	}

	_ = c.transition(ctx, evPaid)
	c.showDetails(proof)
	return nil
}

func (c *Controller) showDetails(proof models.PaymentProof) {
	snap := c.state.Snapshot()

	c.screen.Hide(view.SectionPreRegistration)
	c.screen.Show(view.SectionDetails)
	c.screen.SetField(view.FieldRegistrationDate, c.clock.Now().Format(dateLayout))
	c.screen.SetField(view.FieldFarmerName, snap.FarmerName)
	c.screen.SetField(view.FieldPhone, snap.PhoneNumber)
	c.screen.SetField(view.FieldPaymentID, proof.PaymentID)
	c.screen.SetField(view.FieldPaidAmount, fmt.Sprintf("₹%d", snap.Amount))
	c.screen.SetField(view.FieldReferenceID, snap.ReferenceID)
	c.screen.SetField(view.FieldCouponApplied, snap.CouponCode)
	c.screen.ScrollTo(view.SectionDetails)
	c.screen.Alert(fmt.Sprintf("Payment of ₹%d successful! Please complete your registration details.", snap.Amount))
	c.logger.Info("payment completed", "reference_id", snap.ReferenceID, "payment_id", proof.PaymentID, "verified", proof.Verified)
}

// SubmitDetails validates the detail form and runs the submission pipeline.
// After the pre-registration payment it saves and completes; from the
// pre-registration stage it runs the whole single-page journey.
func (c *Controller) SubmitDetails(ctx context.Context, form models.FarmerForm) (models.Receipt, error) {
	snap := c.state.Snapshot()
	fromDetails := c.inStage(StageDetails)

	if !snap.Verified() {
		msg := msgVerifyFirst
		if fromDetails {
			msg = msgTokenExpired
		}
		c.screen.Alert(msg)
		return models.Receipt{}, apperr.ErrNotVerified
	}
	if fromDetails && !snap.PaymentCompleted {
		c.screen.Alert(msgPaymentIncomplete)
		return models.Receipt{}, fmt.Errorf("%w: payment not completed", apperr.ErrBusy)
	}
	if fromDetails && snap.ReferenceID == "" {
		c.screen.Alert(msgReferenceMissing)
		return models.Receipt{}, apperr.Invalid("referenceId", msgReferenceMissing)
	}

	form.Normalize()
	if form.ContactNumber != "" && form.ContactNumber != snap.PhoneNumber {
		c.screen.Alert(msgPhoneMismatch)
		return models.Receipt{}, apperr.Invalid("contactNumber", msgPhoneMismatch)
	}
	if err := form.Validate(); err != nil {
		c.screen.Alert(apperr.UserMessage(err, "Please fix the form"))
		return models.Receipt{}, err
	}

	if err := c.transition(ctx, evSubmit); err != nil {
		return models.Receipt{}, err
	}
	if !fromDetails {
		if err := c.coupons.Settle(ctx); err != nil {
			_ = c.transition(ctx, evSinglePageFailed)
			return models.Receipt{}, err
		}
	}
	c.screen.SetButton(view.ButtonSubmit, false, "Submitting...")

	receipt, err := c.pipeline.Submit(ctx, form)
	if err != nil {
		c.submitFailed(ctx, fromDetails, err)
		return models.Receipt{}, err
	}
	c.succeed(ctx, receipt)
	return receipt, nil
}

// ResumeFinalization retries phase 2 for a captured payment using the stored
// reference and proof. Nothing is charged again.
func (c *Controller) ResumeFinalization(ctx context.Context) (models.Receipt, error) {
	snap := c.state.Snapshot()
	if !snap.PaymentCompleted || snap.Proof == nil {
		c.screen.Alert(msgPaymentIncomplete)
		return models.Receipt{}, fmt.Errorf("%w: nothing to resume", apperr.ErrBusy)
	}
	if snap.ReferenceID == "" {
		c.screen.Alert(msgReferenceMissing)
		return models.Receipt{}, apperr.Invalid("referenceId", msgReferenceMissing)
	}
	fromDetails := c.inStage(StageDetails)
	if err := c.transition(ctx, evSubmit); err != nil {
		return models.Receipt{}, err
	}
	c.screen.SetButton(view.ButtonSubmit, false, "Submitting...")

	c.logger.Info("resuming finalization", "reference_id", snap.ReferenceID, "payment_id", snap.Proof.PaymentID)
	receipt, err := c.pipeline.Complete(ctx)
	if err != nil {
		c.submitFailed(ctx, fromDetails, err)
		return models.Receipt{}, err
	}
	c.succeed(ctx, receipt)
	return receipt, nil
}

func (c *Controller) submitFailed(ctx context.Context, fromDetails bool, err error) {
	event := evSinglePageFailed
	if fromDetails {
		event = evSubmitFailed
	}
	_ = c.transition(ctx, event)
	c.screen.SetButton(view.ButtonSubmit, true, labelSubmit)

	fallback := "Registration failed. Please try again."
	var ce *submission.CompletionError
	if errors.As(err, &ce) {
		c.screen.SetStatus(view.StatusMessage, "Payment received. Registration pending completion.", view.KindError)
	}
	c.screen.Alert(apperr.UserMessage(err, fallback))
	c.logger.Warn("submission failed", "kind", apperr.Kind(err), "error", err)
}

func (c *Controller) succeed(ctx context.Context, receipt models.Receipt) {
	_ = c.transition(ctx, evSubmitted)

	msg := fmt.Sprintf("Thank you for your payment of ₹%d. Your application has been submitted successfully.", receipt.Amount)
	if receipt.Discount > 0 {
		msg = fmt.Sprintf("Thank you for your payment of ₹%d (with ₹%d discount). Your application has been submitted successfully.", receipt.Amount, receipt.Discount)
	}

	c.screen.Hide(view.SectionPreRegistration)
	c.screen.Hide(view.SectionDetails)
	c.screen.Show(view.SectionSuccess)
	c.screen.SetField(view.FieldSuccessMessage, msg)
	c.screen.SetStatus(view.StatusMessage, "", view.KindNone)
	c.screen.ScrollTo(view.SectionSuccess)
	c.logger.Info("registration completed", "reference_id", receipt.ReferenceID, "payment_id", receipt.PaymentID, "amount", receipt.Amount)

	c.reset()
}

// reset clears everything captured for the finished attempt
func (c *Controller) reset() {
	c.session.EditPhone()
	c.coupons.Reset()
	c.state.Reset()
	for _, f := range []view.Field{
		view.FieldFarmerName, view.FieldPhone, view.FieldOTP, view.FieldRegistrationDate,
		view.FieldPaymentID, view.FieldPaidAmount, view.FieldReferenceID, view.FieldCouponApplied,
	} {
		c.screen.SetField(f, "")
	}
	c.screen.SetButton(view.ButtonProceed, false, labelProceed)
	c.screen.SetButton(view.ButtonSubmit, true, labelSubmit)
}

// Restart leaves the success panel for a new registration
func (c *Controller) Restart(ctx context.Context) error {
	if err := c.transition(ctx, evRestart); err != nil {
		return err
	}
	c.screen.Hide(view.SectionSuccess)
	c.screen.SetField(view.FieldSuccessMessage, "")
	c.screen.Show(view.SectionPreRegistration)
	c.screen.ScrollTo(view.SectionPreRegistration)
	return nil
}
