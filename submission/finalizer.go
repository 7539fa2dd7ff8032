package submission

import (
	"context"
	"fmt"
	"log/slog"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"

	"farmer-registration/models"
	"farmer-registration/workflows"
)

// DirectFinalizer runs phase 2 in-process against the backend
type DirectFinalizer struct {
	api    Backend
	logger *slog.Logger
}

// NewDirectFinalizer creates a DirectFinalizer
func NewDirectFinalizer(api Backend, logger *slog.Logger) *DirectFinalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectFinalizer{api: api, logger: logger}
}

// Finalize re-verifies an unverified proof under the strict policy, then
// completes the registration.
func (f *DirectFinalizer) Finalize(ctx context.Context, in models.FinalizeInput) (models.FinalizeResult, error) {
	result := models.FinalizeResult{ReferenceID: in.ReferenceID, PaymentID: in.Proof.PaymentID, Verified: in.Verified}

	if !in.Verified {
		if _, err := f.api.VerifyPayment(ctx, in.VerifyRequest()); err != nil {
			if in.Policy == models.VerifyStrict {
				return result, &VerificationError{Err: err}
			}
			f.logger.Warn("payment still unverified at completion", "reference_id", in.ReferenceID, "error", err)
		} else {
			result.Verified = true
		}
	}

	if _, err := f.api.CompleteRegistration(ctx, in.CompleteRequest()); err != nil {
		return result, err
	}
	return result, nil
}

// TemporalFinalizer runs phase 2 as a durable workflow keyed by reference id.
// A second call for the same reference attaches to the running workflow.
type TemporalFinalizer struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewTemporalFinalizer creates a TemporalFinalizer
func NewTemporalFinalizer(c client.Client, taskQueue string, logger *slog.Logger) *TemporalFinalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemporalFinalizer{client: c, taskQueue: taskQueue, logger: logger}
}

// WorkflowID is the finalization workflow id for a reference
func WorkflowID(referenceID string) string {
	return fmt.Sprintf("finalize-%s", referenceID)
}

// Finalize starts or attaches to the finalization workflow and waits for it
func (f *TemporalFinalizer) Finalize(ctx context.Context, in models.FinalizeInput) (models.FinalizeResult, error) {
	workflowOptions := client.StartWorkflowOptions{
		ID:                       WorkflowID(in.ReferenceID),
		TaskQueue:                f.taskQueue,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
	}

	we, err := f.client.ExecuteWorkflow(ctx, workflowOptions, workflows.FinalizeRegistrationWorkflow, in)
	if err != nil {
		return models.FinalizeResult{}, fmt.Errorf("unable to start finalization workflow: %w", err)
	}
	f.logger.Info("finalization workflow started", "workflow_id", we.GetID(), "run_id", we.GetRunID())

	var result models.FinalizeResult
	if err := we.Get(ctx, &result); err != nil {
		return models.FinalizeResult{}, fmt.Errorf("finalization workflow failed: %w", err)
	}
	return result, nil
}
