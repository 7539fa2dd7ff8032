// Package view holds the rendered state of the registration page: which
// sections are visible, button labels and enablement, status lines, display
// fields and alerts. Components write to a Screen; front-ends observe it.
package view

import (
	"fmt"
	"sync"
)

// Section is a top-level panel of the page
type Section string

const (
	SectionPreRegistration Section = "pre-registration"
	SectionDetails         Section = "details"
	SectionSuccess         Section = "success"
)

// ButtonID names an action control
type ButtonID string

const (
	ButtonSendOTP   ButtonID = "send-otp"
	ButtonVerifyOTP ButtonID = "verify-otp"
	ButtonProceed   ButtonID = "proceed-to-payment"
	ButtonSubmit    ButtonID = "submit-registration"
)

// StatusID names an inline status line
type StatusID string

const (
	StatusPhone   StatusID = "phone-status"
	StatusOTP     StatusID = "otp-timer"
	StatusCoupon  StatusID = "coupon-status"
	StatusMessage StatusID = "message"
)

// Field names a text field, either an input or a read-only display
type Field string

const (
	FieldFarmerName       Field = "farmer-name"
	FieldPhone            Field = "contact-number"
	FieldOTP              Field = "otp"
	FieldCoupon           Field = "coupon-code"
	FieldRegistrationDate Field = "registration-date"
	FieldPaymentID        Field = "payment-id-display"
	FieldPaidAmount       Field = "paid-amount-display"
	FieldReferenceID      Field = "reference-id-display"
	FieldCouponApplied    Field = "coupon-code-display"
	FieldSuccessMessage   Field = "success-message"
)

// Kind styles a status line
type Kind string

const (
	KindNone    Kind = ""
	KindMuted   Kind = "muted"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Button is the state of one action control
type Button struct {
	Enabled bool   `json:"enabled"`
	Label   string `json:"label"`
}

// Status is one inline status line
type Status struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

// Event is emitted to observers on every change
type Event struct {
	Type   string
	Target string
	Value  string
}

// Observer receives screen events. It is called with the screen lock
// released and must not block for long.
type Observer func(Event)

// Screen is safe for concurrent use
type Screen struct {
	mu        sync.RWMutex
	sections  map[Section]bool
	buttons   map[ButtonID]Button
	statuses  map[StatusID]Status
	fields    map[Field]string
	alerts    []string
	focus     Section
	amount    string
	otpEntry  bool
	phoneLock bool
	observers []Observer
}

// NewScreen returns the initial page: pre-registration visible, OTP entry
// hidden, proceed disabled.
func NewScreen() *Screen {
	s := &Screen{
		sections: map[Section]bool{SectionPreRegistration: true},
		buttons: map[ButtonID]Button{
			ButtonSendOTP:   {Enabled: true, Label: "Send OTP"},
			ButtonVerifyOTP: {Enabled: true, Label: "Verify"},
			ButtonProceed:   {Enabled: false, Label: "Proceed to Payment"},
			ButtonSubmit:    {Enabled: true, Label: "Complete Registration"},
		},
		statuses: map[StatusID]Status{},
		fields:   map[Field]string{},
		focus:    SectionPreRegistration,
	}
	return s
}

// Subscribe registers an observer
func (s *Screen) Subscribe(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

func (s *Screen) emit(e Event) {
	s.mu.RLock()
	obs := make([]Observer, len(s.observers))
	copy(obs, s.observers)
	s.mu.RUnlock()
	for _, o := range obs {
		o(e)
	}
}

// SetButton sets enablement and label of a button
func (s *Screen) SetButton(id ButtonID, enabled bool, label string) {
	s.mu.Lock()
	s.buttons[id] = Button{Enabled: enabled, Label: label}
	s.mu.Unlock()
	s.emit(Event{Type: "button", Target: string(id), Value: fmt.Sprintf("%s enabled=%t", label, enabled)})
}

// Button returns the state of a button
func (s *Screen) Button(id ButtonID) Button {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buttons[id]
}

// SetStatus sets a status line. Empty text clears it.
func (s *Screen) SetStatus(id StatusID, text string, kind Kind) {
	s.mu.Lock()
	if text == "" {
		delete(s.statuses, id)
	} else {
		s.statuses[id] = Status{Text: text, Kind: kind}
	}
	s.mu.Unlock()
	s.emit(Event{Type: "status", Target: string(id), Value: text})
}

// Status returns a status line
func (s *Screen) Status(id StatusID) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statuses[id]
}

// Show makes a section visible
func (s *Screen) Show(sec Section) { s.setSection(sec, true) }

// Hide hides a section
func (s *Screen) Hide(sec Section) { s.setSection(sec, false) }

func (s *Screen) setSection(sec Section, visible bool) {
	s.mu.Lock()
	s.sections[sec] = visible
	s.mu.Unlock()
	s.emit(Event{Type: "section", Target: string(sec), Value: fmt.Sprint(visible)})
}

// Visible reports whether a section is shown
func (s *Screen) Visible(sec Section) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sections[sec]
}

// ScrollTo brings a section into view
func (s *Screen) ScrollTo(sec Section) {
	s.mu.Lock()
	s.focus = sec
	s.mu.Unlock()
	s.emit(Event{Type: "scroll", Target: string(sec)})
}

// Focus is the section last scrolled into view
func (s *Screen) Focus() Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.focus
}

// SetField sets a field value
func (s *Screen) SetField(f Field, value string) {
	s.mu.Lock()
	if value == "" {
		delete(s.fields, f)
	} else {
		s.fields[f] = value
	}
	s.mu.Unlock()
	s.emit(Event{Type: "field", Target: string(f), Value: value})
}

// Field returns a field value
func (s *Screen) Field(f Field) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields[f]
}

// Alert shows a blocking message to the user
func (s *Screen) Alert(msg string) {
	s.mu.Lock()
	s.alerts = append(s.alerts, msg)
	s.mu.Unlock()
	s.emit(Event{Type: "alert", Value: msg})
}

// Alerts returns every alert shown so far
func (s *Screen) Alerts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// LastAlert returns the most recent alert
func (s *Screen) LastAlert() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.alerts) == 0 {
		return ""
	}
	return s.alerts[len(s.alerts)-1]
}

// SetAmount renders the payable amount, with the GST share when known
func (s *Screen) SetAmount(amount int, gst float64) {
	text := fmt.Sprintf("₹%d", amount)
	if gst > 0 {
		text = fmt.Sprintf("₹%d (incl. ₹%g GST)", amount, gst)
	}
	s.mu.Lock()
	s.amount = text
	s.mu.Unlock()
	s.emit(Event{Type: "amount", Value: text})
}

// Amount is the rendered payable amount
func (s *Screen) Amount() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.amount
}

// SetOTPEntryVisible shows or hides the OTP entry control
func (s *Screen) SetOTPEntryVisible(v bool) {
	s.mu.Lock()
	s.otpEntry = v
	s.mu.Unlock()
	s.emit(Event{Type: "otp-entry", Value: fmt.Sprint(v)})
}

// OTPEntryVisible reports whether the OTP entry control is shown
func (s *Screen) OTPEntryVisible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.otpEntry
}

// SetPhoneLocked marks the phone input read-only
func (s *Screen) SetPhoneLocked(v bool) {
	s.mu.Lock()
	s.phoneLock = v
	s.mu.Unlock()
}

// PhoneLocked reports whether the phone input is read-only
func (s *Screen) PhoneLocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phoneLock
}
