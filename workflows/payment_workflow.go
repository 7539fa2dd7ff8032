package workflows

import (
	"fmt"
	"time"

	"farmer-registration/activities"
	"farmer-registration/models"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// PaymentVerificationWorkflow is a child workflow that confirms a captured
// payment with the backend
func PaymentVerificationWorkflow(ctx workflow.Context, in models.FinalizeInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("PaymentVerificationWorkflow started", "reference_id", in.ReferenceID, "amount", in.AmountPaise)

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 20 * time.Second,
		HeartbeatTimeout:    5 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var act *activities.Activities

	err := workflow.ExecuteActivity(ctx, act.VerifyPayment, in).Get(ctx, nil)
	if err != nil {
		logger.Error("Payment verification failed", "reference_id", in.ReferenceID, "error", err)
		return fmt.Errorf("payment verification failed: %w", err)
	}

	logger.Info("Payment verified", "reference_id", in.ReferenceID, "payment_id", in.Proof.PaymentID)
	return nil
}
