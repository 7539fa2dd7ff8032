package checkout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmer-registration/apperr"
	"farmer-registration/models"
	"farmer-registration/payment"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testCheckout = payment.Checkout{
	Order:       models.OrderDescriptor{KeyID: "rzp_test_key", Amount: 25000, Currency: "INR", OrderID: "order_1"},
	Merchant:    payment.MerchantName,
	Description: payment.Description,
	Theme:       payment.ThemeColor,
	Prefill:     payment.Prefill{Name: "Asha Devi", Contact: "9876543210"},
	ReferenceID: "REG-123",
}

// openAsync opens a checkout and returns the session path once presented
func openAsync(t *testing.T, s *Server, urls chan string) (string, chan outcome) {
	t.Helper()
	done := make(chan outcome, 1)
	go func() {
		proof, err := s.Open(context.Background(), testCheckout)
		done <- outcome{proof: proof, err: err}
	}()
	select {
	case url := <-urls:
		return strings.TrimPrefix(url, "http://checkout.local"), done
	case <-time.After(time.Second):
		t.Fatal("checkout was never presented")
		return "", nil
	}
}

func newTestServer(scriptURL string) (*Server, chan string) {
	urls := make(chan string, 1)
	s := NewServer(Config{
		ScriptURL: scriptURL,
		BaseURL:   "http://checkout.local/",
		Present:   func(url string) { urls <- url },
	})
	return s, urls
}

func TestLoadFetchesScriptOnce(t *testing.T) {
	var hits atomic.Int32
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("window.Razorpay = function () {};"))
	}))
	defer provider.Close()

	s, _ := newTestServer(provider.URL)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, int32(1), hits.Load())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkout.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "window.Razorpay")
}

func TestLoadFailure(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer provider.Close()

	s, _ := newTestServer(provider.URL)
	err := s.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkout.js", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutCallbacks(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		body      string
		wantCode  int
		wantProof models.PaymentProof
		wantErr   error
		wantMsg   string
	}{
		{
			name:      "Success",
			path:      "/success",
			body:      `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig_1"}`,
			wantCode:  http.StatusOK,
			wantProof: models.PaymentProof{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig_1"},
		},
		{
			name:     "Failed",
			path:     "/failed",
			body:     `{"description":"Payment declined by issuer"}`,
			wantCode: http.StatusOK,
			wantErr:  apperr.ErrPaymentFailed,
			wantMsg:  "Payment declined by issuer",
		},
		{
			name:     "Dismissed",
			path:     "/dismiss",
			wantCode: http.StatusOK,
			wantErr:  apperr.ErrPaymentCancelled,
			wantMsg:  "Payment cancelled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, urls := newTestServer("")
			path, done := openAsync(t, s, urls)

			page := httptest.NewRecorder()
			s.Handler().ServeHTTP(page, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusOK, page.Code)
			assert.Contains(t, page.Body.String(), `"order_1"`)
			assert.Contains(t, page.Body.String(), "REG-123")

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, path+tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			s.Handler().ServeHTTP(w, req)
			assert.Equal(t, tt.wantCode, w.Code)

			out := <-done
			if tt.wantErr != nil {
				assert.ErrorIs(t, out.err, tt.wantErr)
				assert.Equal(t, tt.wantMsg, apperr.UserMessage(out.err, ""))
				return
			}
			require.NoError(t, out.err)
			assert.Equal(t, tt.wantProof, out.proof)
			assert.Empty(t, s.Pending())
		})
	}
}

func TestSuccessWithoutPaymentIDRejected(t *testing.T) {
	s, urls := newTestServer("")
	path, done := openAsync(t, s, urls)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path+"/success", strings.NewReader(`{"razorpay_order_id":"order_1"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// the session stays open for a proper callback
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, path+"/dismiss", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.ErrorIs(t, (<-done).err, apperr.ErrPaymentCancelled)
}

func TestUnknownSession(t *testing.T) {
	s, _ := newTestServer("")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pay/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pay/nope/dismiss", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOpenHonoursContext(t *testing.T) {
	s, _ := newTestServer("")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Open(ctx, testCheckout)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, s.Pending())
}
