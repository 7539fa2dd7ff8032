// Package otp owns phone number capture, OTP dispatch and verification for
// one registration attempt.
package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/looplab/fsm"

	"farmer-registration/apperr"
	"farmer-registration/models"
	"farmer-registration/timers"
	"farmer-registration/view"
)

const (
	StateIdle      = "idle"
	StateSending   = "sending"
	StateResending = "resending"
	StateSent      = "sent"
	StateVerifying = "verifying"
	StateVerified  = "verified"
)

const (
	evSend         = "send"
	evResend       = "resend"
	evSent         = "sent"
	evSendFailed   = "send_failed"
	evResendFailed = "resend_failed"
	evVerify       = "verify"
	evVerified     = "verified"
	evVerifyFailed = "verify_failed"
)

const (
	labelSendOTP   = "Send OTP"
	labelResendOTP = "Resend OTP"
	labelVerify    = "Verify"
	labelVerified  = "Verified"
)

var errNoToken = errors.New("verify response carried no token")

// API is the backend surface the session calls
type API interface {
	SendOTP(ctx context.Context, phone string) (models.SendOTPResponse, error)
	VerifyOTP(ctx context.Context, phone, code string) (models.VerifyOTPResponse, error)
}

// Options configures a Session
type Options struct {
	ResendCooldown time.Duration
	OTPExpiry      time.Duration
	OTPLength      int
	Clock          clock.Clock
	Logger         *slog.Logger
}

// Session is the OTP state machine for the current phone number. Editing the
// phone number bumps a generation counter; completions started under an
// older generation are dropped.
type Session struct {
	api    API
	state  *models.FlowState
	screen *view.Screen
	timers *timers.Manager
	opts   Options
	code   *regexp.Regexp
	logger *slog.Logger

	mu      sync.Mutex
	machine *fsm.FSM
	gen     uint64
	phone   string
}

// NewSession creates a Session in the idle state
func NewSession(api API, state *models.FlowState, screen *view.Screen, opts Options) *Session {
	if opts.ResendCooldown <= 0 {
		opts.ResendCooldown = 60 * time.Second
	}
	if opts.OTPExpiry <= 0 {
		opts.OTPExpiry = 300 * time.Second
	}
	if opts.OTPLength <= 0 {
		opts.OTPLength = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Session{
		api:    api,
		state:  state,
		screen: screen,
		opts:   opts,
		code:   regexp.MustCompile(fmt.Sprintf(`^\d{%d}$`, opts.OTPLength)),
		logger: opts.Logger,
	}
	s.machine = newMachine()
	s.timers = timers.New(opts.Clock, timers.Hooks{
		ResendTick: func(remaining int) {
			screen.SetButton(view.ButtonSendOTP, false, fmt.Sprintf("Resend in %ds", remaining))
		},
		ResendReady: func() {
			screen.SetButton(view.ButtonSendOTP, true, labelResendOTP)
		},
		OTPTick: func(remaining time.Duration) {
			screen.SetStatus(view.StatusOTP, "OTP expires in "+timers.FormatRemaining(remaining), view.KindMuted)
		},
		OTPExpired: func() {
			screen.SetStatus(view.StatusOTP, "OTP expired. Please request a new one.", view.KindError)
		},
	})
	return s
}

func newMachine() *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: evSend, Src: []string{StateIdle}, Dst: StateSending},
			{Name: evResend, Src: []string{StateSent}, Dst: StateResending},
			{Name: evSent, Src: []string{StateSending, StateResending}, Dst: StateSent},
			{Name: evSendFailed, Src: []string{StateSending}, Dst: StateIdle},
			{Name: evResendFailed, Src: []string{StateResending}, Dst: StateSent},
			{Name: evVerify, Src: []string{StateSent}, Dst: StateVerifying},
			{Name: evVerified, Src: []string{StateVerifying}, Dst: StateVerified},
			{Name: evVerifyFailed, Src: []string{StateVerifying}, Dst: StateSent},
		},
		fsm.Callbacks{},
	)
}

// State is the current machine state
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

// Phone is the number the current OTP was requested for
func (s *Session) Phone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phone
}

// Timers exposes the countdowns
func (s *Session) Timers() *timers.Manager {
	return s.timers
}

// RequestOTP validates name and phone, then asks the backend to send an OTP.
// Invalid input is rejected without a network call.
func (s *Session) RequestOTP(ctx context.Context, name, phone string) error {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" {
		return s.reject(apperr.Invalid("farmerName", "Please enter your full name"))
	}
	if !models.PhonePattern.MatchString(phone) {
		return s.reject(apperr.Invalid("phoneNumber", "Please enter a valid 10-digit mobile number starting with 6-9"))
	}

	s.mu.Lock()
	if err := s.machine.Event(ctx, evSend); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot send OTP in state %s", apperr.ErrBusy, s.machine.Current())
	}
	s.phone = phone
	gen := s.gen
	s.mu.Unlock()

	s.state.Update(func(snap *models.Snapshot) {
		snap.FarmerName = name
		snap.PhoneNumber = phone
	})
	s.screen.SetPhoneLocked(true)
	return s.send(ctx, gen, phone, evSendFailed)
}

// ResendOTP sends a fresh OTP to the same number once the cooldown has elapsed
func (s *Session) ResendOTP(ctx context.Context) error {
	s.mu.Lock()
	if !s.timers.ResendReady() {
		s.mu.Unlock()
		return fmt.Errorf("%w: resend cooldown still running", apperr.ErrBusy)
	}
	if err := s.machine.Event(ctx, evResend); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot resend OTP in state %s", apperr.ErrBusy, s.machine.Current())
	}
	phone := s.phone
	gen := s.gen
	s.mu.Unlock()

	return s.send(ctx, gen, phone, evResendFailed)
}

func (s *Session) send(ctx context.Context, gen uint64, phone, failEvent string) error {
	s.screen.SetButton(view.ButtonSendOTP, false, "Sending...")
	s.logger.Info("sending OTP", "phone", mask(phone))

	resp, err := s.api.SendOTP(ctx, phone)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return apperr.ErrSuperseded
	}

	if err != nil {
		s.logger.Warn("OTP send failed", "phone", mask(phone), "error", err)
		_ = s.machine.Event(ctx, failEvent)
		label := labelSendOTP
		if failEvent == evResendFailed {
			label = labelResendOTP
		}
		if s.machine.Is(StateIdle) {
			s.screen.SetPhoneLocked(false)
		}
		s.screen.SetButton(view.ButtonSendOTP, true, label)
		s.screen.Alert(apperr.UserMessage(err, "Failed to send OTP"))
		return err
	}

	_ = s.machine.Event(ctx, evSent)
	s.screen.SetOTPEntryVisible(true)
	s.screen.SetButton(view.ButtonVerifyOTP, true, labelVerify)

	cooldown := resp.Cooldown
	if cooldown <= 0 {
		cooldown = int(s.opts.ResendCooldown / time.Second)
	}
	expiresIn := resp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = int(s.opts.OTPExpiry / time.Second)
	}
	s.timers.StartResendCountdown(cooldown)
	s.timers.StartOTPCountdown(expiresIn)

	if resp.TestOTP != "" {
		s.screen.Alert("Test Mode: OTP is " + resp.TestOTP)
	} else {
		s.screen.Alert(fmt.Sprintf("OTP sent to %s. Please check your messages.", phone))
	}
	s.logger.Info("OTP sent", "phone", mask(phone), "cooldown", cooldown, "expires_in", expiresIn)
	return nil
}

// VerifyOTP checks code against the backend. On success the verification
// token is stored in the flow state and returned.
func (s *Session) VerifyOTP(ctx context.Context, phone, code string) (string, error) {
	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)
	if !models.PhonePattern.MatchString(phone) {
		return "", s.reject(apperr.Invalid("phoneNumber", "Please enter a valid mobile number"))
	}
	if !s.code.MatchString(code) {
		return "", s.reject(apperr.Invalid("otp", fmt.Sprintf("Please enter the %d-digit OTP", s.opts.OTPLength)))
	}

	s.mu.Lock()
	if s.phone != "" && s.phone != phone {
		s.mu.Unlock()
		return "", s.reject(apperr.Invalid("phoneNumber", "Phone number changed. Please request a new OTP."))
	}
	if err := s.machine.Event(ctx, evVerify); err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: cannot verify OTP in state %s", apperr.ErrBusy, s.machine.Current())
	}
	gen := s.gen
	s.mu.Unlock()

	s.screen.SetButton(view.ButtonVerifyOTP, false, "Verifying...")

	resp, err := s.api.VerifyOTP(ctx, phone, code)
	if err == nil && resp.OTPToken == "" {
		err = errNoToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return "", apperr.ErrSuperseded
	}

	if err != nil {
		s.logger.Warn("OTP verification failed", "phone", mask(phone), "error", err)
		_ = s.machine.Event(ctx, evVerifyFailed)
		s.screen.SetButton(view.ButtonVerifyOTP, true, labelVerify)
		s.screen.Alert(apperr.UserMessage(err, "OTP verification failed"))
		return "", err
	}

	_ = s.machine.Event(ctx, evVerified)
	s.state.Update(func(snap *models.Snapshot) {
		snap.OTPToken = resp.OTPToken
	})
	s.timers.CancelAll()
	s.screen.SetStatus(view.StatusOTP, "✓ Verified", view.KindSuccess)
	s.screen.SetButton(view.ButtonSendOTP, false, labelVerified)
	s.screen.SetButton(view.ButtonVerifyOTP, false, labelVerified)
	s.screen.Alert("Mobile number verified successfully!")
	s.logger.Info("mobile number verified", "phone", mask(phone))
	return resp.OTPToken, nil
}

// EditPhone returns the session to idle: the token is cleared, countdowns
// stop and both controls go back to their initial labels. Calling it twice
// has the same effect as calling it once.
func (s *Session) EditPhone() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.phone = ""
	s.machine.SetState(StateIdle)
	s.timers.CancelAll()
	s.state.Update(func(snap *models.Snapshot) {
		snap.OTPToken = ""
		snap.PhoneNumber = ""
	})

	s.screen.SetOTPEntryVisible(false)
	s.screen.SetPhoneLocked(false)
	s.screen.SetField(view.FieldOTP, "")
	s.screen.SetStatus(view.StatusOTP, "", view.KindNone)
	s.screen.SetButton(view.ButtonSendOTP, true, labelSendOTP)
	s.screen.SetButton(view.ButtonVerifyOTP, true, labelVerify)
}

// Close stops the countdowns
func (s *Session) Close() {
	s.timers.CancelAll()
}

func (s *Session) reject(err error) error {
	s.screen.Alert(apperr.UserMessage(err, err.Error()))
	return err
}

func mask(phone string) string {
	if len(phone) < 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
