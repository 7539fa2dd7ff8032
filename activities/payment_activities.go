package activities

import (
	"context"

	"farmer-registration/models"

	"go.temporal.io/sdk/activity"
)

// VerifyPayment asks the backend to check the provider signature for the
// captured payment
func (a *Activities) VerifyPayment(ctx context.Context, in models.FinalizeInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Verifying payment", "reference_id", in.ReferenceID, "payment_id", in.Proof.PaymentID, "amount", in.AmountPaise)

	activity.RecordHeartbeat(ctx, "verifying payment")

	_, err := a.api.VerifyPayment(ctx, in.VerifyRequest())
	if err != nil {
		logger.Warn("Payment verification failed", "reference_id", in.ReferenceID, "attempt", activity.GetInfo(ctx).Attempt, "error", err)
		return classify("verify payment", err)
	}

	logger.Info("Payment verified successfully", "reference_id", in.ReferenceID, "payment_id", in.Proof.PaymentID)
	return nil
}
