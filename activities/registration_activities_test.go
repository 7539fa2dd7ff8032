package activities

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"farmer-registration/backend"
	"farmer-registration/models"
)

var testInput = models.FinalizeInput{
	ReferenceID: "REG-123",
	OTPToken:    "tok_abc",
	Proof:       models.PaymentProof{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig_1"},
	Amount:      250,
	AmountPaise: 25000,
	CouponCode:  "SAVE50",
	Policy:      models.VerifyStrict,
}

func newActivities(t *testing.T, handler http.HandlerFunc) *Activities {
	t.Helper()
	mockServer := httptest.NewServer(handler)
	t.Cleanup(mockServer.Close)

	client, err := backend.NewClient(mockServer.URL)
	require.NoError(t, err)
	return NewActivities(client)
}

func TestCompleteRegistration(t *testing.T) {
	tests := []struct {
		name          string
		mockHandler   func(w http.ResponseWriter, r *http.Request)
		wantErr       bool
		nonRetryable  bool
		errType       string
		errorContains string
	}{
		{
			name: "Success",
			mockHandler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"success":true}`))
			},
		},
		{
			name: "Failure - Declined In Body",
			mockHandler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"success":false,"message":"Payment amount mismatch"}`))
			},
			wantErr:       true,
			nonRetryable:  true,
			errType:       "Declined",
			errorContains: "Payment amount mismatch",
		},
		{
			name: "Failure - Token Expired",
			mockHandler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"OTP token expired"}`))
			},
			wantErr:       true,
			nonRetryable:  true,
			errType:       "Unauthorized",
			errorContains: "OTP token expired",
		},
		{
			name: "Failure - Bad Request",
			mockHandler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"message":"Unknown reference"}`))
			},
			wantErr:       true,
			nonRetryable:  true,
			errType:       "Rejected",
			errorContains: "Unknown reference",
		},
		{
			name: "Failure - Server Error",
			mockHandler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Internal Server Error"))
			},
			wantErr:       true,
			errorContains: "status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestActivityEnvironment()

			act := newActivities(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, backend.PathCompleteRegistration, r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)

				var req models.CompleteRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, testInput.CompleteRequest(), req)

				tt.mockHandler(w, r)
			})
			env.RegisterActivity(act.CompleteRegistration)

			_, err := env.ExecuteActivity(act.CompleteRegistration, testInput)

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)

			var appErr *temporal.ApplicationError
			if tt.nonRetryable {
				require.True(t, errors.As(err, &appErr))
				assert.True(t, appErr.NonRetryable())
				assert.Equal(t, tt.errType, appErr.Type())
			} else if errors.As(err, &appErr) {
				assert.False(t, appErr.NonRetryable())
			}
		})
	}
}

func TestVerifyPayment(t *testing.T) {
	tests := []struct {
		name          string
		mockHandler   func(w http.ResponseWriter, r *http.Request)
		wantErr       bool
		nonRetryable  bool
		errorContains string
	}{
		{
			name: "Success",
			mockHandler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"success":true}`))
			},
		},
		{
			name: "Failure - Signature Mismatch",
			mockHandler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"success":false,"message":"Signature mismatch"}`))
			},
			wantErr:       true,
			nonRetryable:  true,
			errorContains: "verify payment rejected: Signature mismatch",
		},
		{
			name: "Failure - Rate Limited",
			mockHandler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"message":"Too many requests"}`))
			},
			wantErr:       true,
			errorContains: "status 429",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestActivityEnvironment()

			act := newActivities(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, backend.PathVerifyPayment, r.URL.Path)

				var req models.VerifyPaymentRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "pay_1", req.RazorpayPaymentID)
				assert.Equal(t, "sig_1", req.RazorpaySignature)
				assert.Equal(t, int64(25000), req.Amount)
				assert.Equal(t, "REG-123", req.RegistrationReference)

				w.Header().Set("Content-Type", "application/json")
				tt.mockHandler(w, r)
			})
			env.RegisterActivity(act.VerifyPayment)

			_, err := env.ExecuteActivity(act.VerifyPayment, testInput)

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
			var appErr *temporal.ApplicationError
			if tt.nonRetryable {
				require.True(t, errors.As(err, &appErr))
				assert.True(t, appErr.NonRetryable())
			}
		})
	}
}
