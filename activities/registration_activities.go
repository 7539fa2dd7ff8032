package activities

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"farmer-registration/backend"
	"farmer-registration/models"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// API is the backend surface used by the finalization activities
type API interface {
	VerifyPayment(ctx context.Context, req models.VerifyPaymentRequest) (models.VerifyPaymentResponse, error)
	CompleteRegistration(ctx context.Context, req models.CompleteRequest) (models.CompleteResponse, error)
}

// Activities contains the registration finalization activities
type Activities struct {
	api API
}

// NewActivities creates a new Activities instance
func NewActivities(api API) *Activities {
	return &Activities{api: api}
}

// CompleteRegistration marks a paid registration as finalized. The backend
// treats a repeat for the same reference and payment as a no-op.
func (a *Activities) CompleteRegistration(ctx context.Context, in models.FinalizeInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Completing registration", "reference_id", in.ReferenceID, "payment_id", in.Proof.PaymentID)

	// Heartbeat to let Temporal know we're still alive
	activity.RecordHeartbeat(ctx, "calling complete registration")

	_, err := a.api.CompleteRegistration(ctx, in.CompleteRequest())
	if err != nil {
		logger.Error("Complete registration failed", "reference_id", in.ReferenceID, "error", err)
		return classify("complete registration", err)
	}

	logger.Info("Registration completed successfully", "reference_id", in.ReferenceID)
	return nil
}

// classify turns client errors into non-retryable application errors;
// everything else is left for the retry policy.
func classify(op string, err error) error {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && !apiErr.Retryable() {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("%s rejected: %s", op, apiErr.UserMessage()),
			errorType(apiErr.StatusCode),
			err,
		)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

func errorType(status int) string {
	switch {
	case status == http.StatusOK:
		return "Declined"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "Unauthorized"
	default:
		return "Rejected"
	}
}
