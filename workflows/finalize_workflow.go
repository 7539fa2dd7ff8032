package workflows

import (
	"fmt"
	"time"

	"farmer-registration/activities"
	"farmer-registration/models"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryState = "state"
)

// FinalizeRegistrationWorkflow completes a paid registration. An unverified
// payment is verified first in a child workflow; under the strict policy a
// verification failure fails the workflow before anything is completed.
func FinalizeRegistrationWorkflow(ctx workflow.Context, in models.FinalizeInput) (models.FinalizeResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("FinalizeRegistrationWorkflow started", "reference_id", in.ReferenceID, "payment_id", in.Proof.PaymentID)

	result := models.FinalizeResult{
		ReferenceID: in.ReferenceID,
		PaymentID:   in.Proof.PaymentID,
		Verified:    in.Verified,
	}

	// Initialize workflow state
	state := models.FinalizeState{
		ReferenceID: in.ReferenceID,
		PaymentID:   in.Proof.PaymentID,
		Status:      models.FinalizeStatusPending,
		VerifyDone:  in.Verified,
		LastUpdated: workflow.Now(ctx),
	}

	// Setup query handler for workflow state
	err := workflow.SetQueryHandler(ctx, QueryState, func() (models.FinalizeState, error) {
		return state, nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to set query handler: %w", err)
	}

	fail := func(err error) (models.FinalizeResult, error) {
		state.Status = models.FinalizeStatusFailed
		state.LastError = err.Error()
		state.LastUpdated = workflow.Now(ctx)
		return result, err
	}

	// Step 1: Verify payment (child workflow)
	if !in.Verified {
		state.Status = models.FinalizeStatusVerifying
		state.LastUpdated = workflow.Now(ctx)

		childWorkflowOptions := workflow.ChildWorkflowOptions{
			WorkflowID:               fmt.Sprintf("verify-payment-%s", in.ReferenceID),
			WorkflowExecutionTimeout: 5 * time.Minute,
		}
		childCtx := workflow.WithChildOptions(ctx, childWorkflowOptions)

		err = workflow.ExecuteChildWorkflow(childCtx, PaymentVerificationWorkflow, in).Get(ctx, nil)
		if err != nil {
			if in.Policy == models.VerifyStrict {
				logger.Error("Payment verification failed", "reference_id", in.ReferenceID, "error", err)
				return fail(fmt.Errorf("payment verification failed: %w", err))
			}
			logger.Warn("Payment verification failed, completing anyway", "reference_id", in.ReferenceID, "policy", in.Policy, "error", err)
			state.VerifyWarned = true
		} else {
			state.VerifyDone = true
			result.Verified = true
		}
		state.Status = models.FinalizeStatusVerified
		state.LastUpdated = workflow.Now(ctx)
	}

	// Step 2: Complete registration
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		HeartbeatTimeout:    10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    10,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var act *activities.Activities

	logger.Info("Completing registration", "reference_id", in.ReferenceID)
	err = workflow.ExecuteActivity(ctx, act.CompleteRegistration, in).Get(ctx, nil)
	if err != nil {
		logger.Error("Complete registration failed", "reference_id", in.ReferenceID, "error", err)
		return fail(fmt.Errorf("complete registration failed: %w", err))
	}

	state.CompleteDone = true
	state.Status = models.FinalizeStatusCompleted
	state.LastUpdated = workflow.Now(ctx)

	logger.Info("FinalizeRegistrationWorkflow completed successfully", "reference_id", in.ReferenceID, "verified", result.Verified)
	return result, nil
}
