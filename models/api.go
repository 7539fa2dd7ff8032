package models

// SendOTPRequest asks the backend to dispatch an OTP to a phone number
type SendOTPRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// SendOTPResponse carries the throttling and expiry windows for a dispatched OTP
type SendOTPResponse struct {
	Cooldown  int    `json:"cooldown"`
	ExpiresIn int    `json:"expiresIn"`
	TestOTP   string `json:"testOtp,omitempty"`
	Message   string `json:"message,omitempty"`
}

// VerifyOTPRequest submits the code the farmer received
type VerifyOTPRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTPCode     string `json:"otpCode"`
}

// VerifyOTPResponse carries the opaque verification token
type VerifyOTPResponse struct {
	OTPToken  string `json:"otpToken"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
	Message   string `json:"message,omitempty"`
}

// CouponResponse is the result of validating a coupon/referral code
type CouponResponse struct {
	Valid          bool    `json:"valid"`
	Amount         int     `json:"amount"`
	Discount       int     `json:"discount"`
	InfluencerName string  `json:"influencerName"`
	GST            float64 `json:"gst"`
	BaseAmount     float64 `json:"baseAmount"`
	Message        string  `json:"message,omitempty"`
}

// CreateOrderRequest asks the backend to open a payment order. Amount is in paise.
type CreateOrderRequest struct {
	Amount                int64  `json:"amount"`
	FarmerName            string `json:"farmerName"`
	EmailID               string `json:"emailId"`
	RegistrationReference string `json:"registrationReference"`
	CouponCode            string `json:"couponCode,omitempty"`
}

// OrderDescriptor is what the checkout widget needs to collect a payment
type OrderDescriptor struct {
	KeyID    string `json:"key_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	OrderID  string `json:"order_id"`
}

// SaveRequest is phase 1 of the submission: the draft registration
type SaveRequest struct {
	OTPToken    string     `json:"otpToken"`
	ReferenceID string     `json:"referenceId"`
	CouponCode  string     `json:"couponCode"`
	Form        FarmerForm `json:"form"`
}

// SaveResponse confirms the canonical reference and price
type SaveResponse struct {
	ReferenceID string `json:"referenceId"`
	Amount      int    `json:"amount,omitempty"`
	AmountPaise int64  `json:"amountPaise,omitempty"`
	OTPToken    string `json:"otpToken,omitempty"`
	Message     string `json:"message,omitempty"`
}

// CompleteRequest is phase 2 of the submission: attach payment proof and finalize
type CompleteRequest struct {
	ReferenceID      string `json:"referenceId"`
	OTPToken         string `json:"otpToken"`
	PaymentID        string `json:"paymentId"`
	OrderID          string `json:"orderId"`
	PaymentAmount    int    `json:"paymentAmount"`
	PaymentSignature string `json:"paymentSignature,omitempty"`
	CouponCode       string `json:"couponCode,omitempty"`
}

// CompleteResponse acknowledges a finalized registration
type CompleteResponse struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// VerifyPaymentRequest asks the backend to check the provider signature
type VerifyPaymentRequest struct {
	RazorpayOrderID       string `json:"razorpay_order_id"`
	RazorpayPaymentID     string `json:"razorpay_payment_id"`
	RazorpaySignature     string `json:"razorpay_signature"`
	Amount                int64  `json:"amount"`
	RegistrationReference string `json:"registration_reference"`
}

// VerifyPaymentResponse acknowledges a verified payment
type VerifyPaymentResponse struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the body shape of a non-2xx backend reply
type ErrorResponse struct {
	Message string `json:"message"`
}
