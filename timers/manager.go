// Package timers runs the two OTP countdowns: the resend cooldown and the OTP
// expiry. Each countdown keeps an absolute deadline and recomputes the
// remaining time on every tick, so a stalled process catches up instead of
// drifting.
package timers

import (
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// Hooks receive countdown updates. They are called with the manager lock
// held and must not call back into the Manager.
type Hooks struct {
	ResendTick  func(remaining int)
	ResendReady func()
	OTPTick     func(remaining time.Duration)
	OTPExpired  func()
}

type countdown struct {
	deadline time.Time
	timer    *clock.Timer
}

// Manager owns at most one countdown of each kind
type Manager struct {
	clock clock.Clock
	hooks Hooks

	mu     sync.Mutex
	resend *countdown
	otp    *countdown
}

// New creates a Manager. A nil clk uses the wall clock.
func New(clk clock.Clock, hooks Hooks) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{clock: clk, hooks: hooks}
}

// StartResendCountdown replaces any running cooldown. Zero seconds signals
// ready immediately.
func (m *Manager) StartResendCountdown(seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stop(m.resend)
	m.resend = nil

	if seconds <= 0 {
		m.call(m.hooks.ResendReady)
		return
	}

	c := &countdown{deadline: m.clock.Now().Add(time.Duration(seconds) * time.Second)}
	m.resend = c
	m.tickResend(c)
}

// StartOTPCountdown replaces any running expiry countdown
func (m *Manager) StartOTPCountdown(expiresInSeconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stop(m.otp)
	c := &countdown{deadline: m.clock.Now().Add(time.Duration(expiresInSeconds) * time.Second)}
	m.otp = c
	m.tickOTP(c)
}

// CancelAll stops both countdowns without firing their terminal hooks
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	stop(m.resend)
	stop(m.otp)
	m.resend = nil
	m.otp = nil
}

// ResendReady reports whether no cooldown is running
func (m *Manager) ResendReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resend == nil
}

// ResendRemaining is the whole seconds left on the cooldown
func (m *Manager) ResendRemaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resend == nil {
		return 0
	}
	return ceilSeconds(m.resend.deadline.Sub(m.clock.Now()))
}

// OTPDeadline returns the expiry deadline while the countdown runs
func (m *Manager) OTPDeadline() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.otp == nil {
		return time.Time{}, false
	}
	return m.otp.deadline, true
}

// tickResend and tickOTP run with m.mu held
func (m *Manager) tickResend(c *countdown) {
	remaining := c.deadline.Sub(m.clock.Now())
	if remaining <= 0 {
		m.resend = nil
		m.call(m.hooks.ResendReady)
		return
	}
	secs := ceilSeconds(remaining)
	if m.hooks.ResendTick != nil {
		m.hooks.ResendTick(secs)
	}
	c.timer = m.clock.AfterFunc(untilNextSecond(remaining, secs), func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.resend != c {
			return
		}
		m.tickResend(c)
	})
}

func (m *Manager) tickOTP(c *countdown) {
	remaining := c.deadline.Sub(m.clock.Now())
	if remaining <= 0 {
		m.otp = nil
		m.call(m.hooks.OTPExpired)
		return
	}
	secs := ceilSeconds(remaining)
	if m.hooks.OTPTick != nil {
		m.hooks.OTPTick(time.Duration(secs) * time.Second)
	}
	c.timer = m.clock.AfterFunc(untilNextSecond(remaining, secs), func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.otp != c {
			return
		}
		m.tickOTP(c)
	})
}

func (m *Manager) call(fn func()) {
	if fn != nil {
		fn()
	}
}

func stop(c *countdown) {
	if c != nil && c.timer != nil {
		c.timer.Stop()
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// untilNextSecond is the wait until the displayed whole-second value changes
func untilNextSecond(remaining time.Duration, secs int) time.Duration {
	return remaining - time.Duration(secs-1)*time.Second
}

// FormatRemaining renders a duration as mm:ss
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
