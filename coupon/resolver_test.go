package coupon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"farmer-registration/models"
	"farmer-registration/view"
)

type mockValidator struct {
	mock.Mock
}

func (m *mockValidator) ValidateCoupon(ctx context.Context, code string) (models.CouponResponse, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(models.CouponResponse), args.Error(1)
}

func newResolver(v Validator, clk clock.Clock) (*Resolver, *models.FlowState, *view.Screen) {
	state := models.NewFlowState(300)
	screen := view.NewScreen()
	r := NewResolver(v, state, screen, Options{
		Debounce:       500 * time.Millisecond,
		DefaultAmount:  300,
		FallbackAmount: 250,
		Clock:          clk,
	})
	return r, state, screen
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		resp       models.CouponResponse
		err        error
		wantAmount int
		wantCode   string
		wantStatus string
		wantKind   view.Kind
		noCall     bool
	}{
		{
			name:       "Valid Coupon With Influencer",
			code:       "SAVE50",
			resp:       models.CouponResponse{Valid: true, Amount: 250, Discount: 50, InfluencerName: "Ravi"},
			wantAmount: 250,
			wantCode:   "SAVE50",
			wantStatus: "✓ Coupon applied! Influencer: Ravi. You save ₹50!",
			wantKind:   view.KindSuccess,
		},
		{
			name:       "Valid Coupon Without Amount Uses Fallback",
			code:       "FRIEND",
			resp:       models.CouponResponse{Valid: true},
			wantAmount: 250,
			wantCode:   "FRIEND",
			wantStatus: "✓ Coupon applied! You save ₹50!",
			wantKind:   view.KindSuccess,
		},
		{
			name:       "Invalid Coupon",
			code:       "BADCODE",
			resp:       models.CouponResponse{Valid: false},
			wantAmount: 300,
			wantStatus: "✗ Invalid referral code",
			wantKind:   view.KindError,
		},
		{
			name:       "Transport Error",
			code:       "SAVE50",
			err:        errors.New("connection refused"),
			wantAmount: 300,
			wantStatus: "Unable to validate coupon",
			wantKind:   view.KindError,
		},
		{
			name:       "Whitespace Only Clears",
			code:       "   ",
			wantAmount: 300,
			noCall:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &mockValidator{}
			if !tt.noCall {
				v.On("ValidateCoupon", mock.Anything, tt.code).Return(tt.resp, tt.err).Once()
			}
			r, state, screen := newResolver(v, clock.NewMock())

			res := r.Resolve(context.Background(), tt.code)

			snap := state.Snapshot()
			assert.Equal(t, tt.wantAmount, res.Amount)
			assert.Equal(t, tt.wantAmount, snap.Amount)
			assert.Equal(t, tt.wantCode, snap.CouponCode)
			assert.Equal(t, tt.wantStatus, screen.Status(view.StatusCoupon).Text)
			assert.Equal(t, tt.wantKind, screen.Status(view.StatusCoupon).Kind)
			assert.False(t, r.Pending())
			v.AssertExpectations(t)
			if tt.noCall {
				v.AssertNotCalled(t, "ValidateCoupon", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	v := &mockValidator{}
	v.On("ValidateCoupon", mock.Anything, "SAVE50").
		Return(models.CouponResponse{Valid: true, Amount: 250, Discount: 50, InfluencerName: "Ravi"}, nil)
	v.On("ValidateCoupon", mock.Anything, "BADCODE").
		Return(models.CouponResponse{Valid: false}, nil)
	r, state, screen := newResolver(v, clock.NewMock())

	first := r.Resolve(context.Background(), "SAVE50")
	second := r.Resolve(context.Background(), "SAVE50")
	assert.Equal(t, first.Amount, second.Amount)
	assert.Equal(t, 250, state.Snapshot().Amount)
	assert.Equal(t, "₹250", screen.Amount())

	r.Resolve(context.Background(), "BADCODE")
	assert.Equal(t, 300, state.Snapshot().Amount)
	r.Resolve(context.Background(), "BADCODE")
	assert.Equal(t, 300, state.Snapshot().Amount)
	assert.Empty(t, state.Snapshot().CouponCode)
}

func TestInputDebounces(t *testing.T) {
	v := &mockValidator{}
	v.On("ValidateCoupon", mock.Anything, "SAVE50").
		Return(models.CouponResponse{Valid: true, Amount: 250, InfluencerName: "Ravi"}, nil).Once()
	mc := clock.NewMock()
	r, state, _ := newResolver(v, mc)

	for _, text := range []string{"S", "SA", "SAV", "SAVE", "SAVE5", "SAVE50"} {
		r.Input(text)
		mc.Add(100 * time.Millisecond)
	}
	assert.True(t, r.Pending())
	v.AssertNotCalled(t, "ValidateCoupon", mock.Anything, mock.Anything)

	mc.Add(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Settle(ctx))
	assert.Equal(t, 250, state.Snapshot().Amount)
	v.AssertNumberOfCalls(t, "ValidateCoupon", 1)
}

type gatedValidator struct {
	gates map[string]chan struct{}
	resp  map[string]models.CouponResponse
}

func (g *gatedValidator) ValidateCoupon(ctx context.Context, code string) (models.CouponResponse, error) {
	if ch, ok := g.gates[code]; ok {
		<-ch
	}
	return g.resp[code], nil
}

func TestLateResponseDoesNotClobberNewerInput(t *testing.T) {
	g := &gatedValidator{
		gates: map[string]chan struct{}{"SLOW": make(chan struct{})},
		resp: map[string]models.CouponResponse{
			"SLOW":   {Valid: true, Amount: 200},
			"SAVE50": {Valid: true, Amount: 250, InfluencerName: "Ravi"},
		},
	}
	r, state, screen := newResolver(g, clock.NewMock())

	done := make(chan Resolution)
	go func() { done <- r.Resolve(context.Background(), "SLOW") }()
	assert.Eventually(t, func() bool {
		return screen.Status(view.StatusCoupon).Text == "Validating coupon..."
	}, time.Second, 5*time.Millisecond)

	r.Resolve(context.Background(), "SAVE50")
	close(g.gates["SLOW"])
	<-done

	snap := state.Snapshot()
	assert.Equal(t, 250, snap.Amount)
	assert.Equal(t, "SAVE50", snap.CouponCode)
	assert.Contains(t, screen.Status(view.StatusCoupon).Text, "Influencer: Ravi")
}

func TestResultAfterCaptureLeavesPriceAlone(t *testing.T) {
	g := &gatedValidator{
		gates: map[string]chan struct{}{"SAVE50": make(chan struct{})},
		resp:  map[string]models.CouponResponse{"SAVE50": {Valid: true, Amount: 250, InfluencerName: "Ravi"}},
	}
	r, state, screen := newResolver(g, clock.NewMock())

	done := make(chan Resolution)
	go func() { done <- r.Resolve(context.Background(), "SAVE50") }()
	assert.Eventually(t, func() bool {
		return screen.Status(view.StatusCoupon).Text == "Validating coupon..."
	}, time.Second, 5*time.Millisecond)

	state.Update(func(s *models.Snapshot) {
		s.Proof = &models.PaymentProof{OrderID: "order_1", PaymentID: "pay_1", AmountPaise: 30000}
	})
	close(g.gates["SAVE50"])
	<-done

	snap := state.Snapshot()
	assert.Equal(t, 300, snap.Amount)
	assert.Empty(t, snap.CouponCode)
	assert.Equal(t, int64(30000), snap.ChargedPaise())
	assert.NotContains(t, screen.Status(view.StatusCoupon).Text, "Influencer: Ravi")
	assert.False(t, r.Pending())
}

func TestReset(t *testing.T) {
	v := &mockValidator{}
	v.On("ValidateCoupon", mock.Anything, "SAVE50").
		Return(models.CouponResponse{Valid: true, Amount: 250}, nil)
	mc := clock.NewMock()
	r, _, screen := newResolver(v, mc)

	r.Resolve(context.Background(), "SAVE50")
	r.Input("SAVE5")
	r.Reset()
	mc.Add(time.Second)

	assert.False(t, r.Pending())
	assert.Empty(t, screen.Status(view.StatusCoupon).Text)
	assert.Equal(t, "₹300", screen.Amount())
	v.AssertNumberOfCalls(t, "ValidateCoupon", 1)
}
