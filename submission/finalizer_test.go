package submission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"farmer-registration/models"
)

func finalizeInput(verified bool, policy models.VerifyPolicy) models.FinalizeInput {
	proof := testProof
	proof.Verified = verified
	return models.FinalizeInput{
		ReferenceID: "REG-123",
		OTPToken:    "tok_abc",
		Proof:       proof,
		Verified:    verified,
		Amount:      250,
		AmountPaise: 25000,
		CouponCode:  "SAVE50",
		Policy:      policy,
	}
}

func TestDirectFinalizer(t *testing.T) {
	tests := []struct {
		name         string
		in           models.FinalizeInput
		verifyErr    error
		wantVerify   bool
		wantComplete bool
		wantVerified bool
		wantErr      bool
	}{
		{
			name:         "Already Verified",
			in:           finalizeInput(true, models.VerifyStrict),
			wantComplete: true,
			wantVerified: true,
		},
		{
			name:         "Reverify Succeeds",
			in:           finalizeInput(false, models.VerifyBestEffort),
			wantVerify:   true,
			wantComplete: true,
			wantVerified: true,
		},
		{
			name:       "Strict Reverify Fails",
			in:         finalizeInput(false, models.VerifyStrict),
			verifyErr:  errors.New("signature mismatch"),
			wantVerify: true,
			wantErr:    true,
		},
		{
			name:         "Best Effort Reverify Fails",
			in:           finalizeInput(false, models.VerifyBestEffort),
			verifyErr:    errors.New("signature mismatch"),
			wantVerify:   true,
			wantComplete: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockBackend{}
			api.On("VerifyPayment", mock.Anything, tt.in.VerifyRequest()).Return(models.VerifyPaymentResponse{}, tt.verifyErr)
			api.On("CompleteRegistration", mock.Anything, tt.in.CompleteRequest()).Return(models.CompleteResponse{}, nil)

			result, err := NewDirectFinalizer(api, nil).Finalize(context.Background(), tt.in)

			if tt.wantErr {
				var ve *VerificationError
				assert.ErrorAs(t, err, &ve)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantVerified, result.Verified)
			}
			assert.Equal(t, "REG-123", result.ReferenceID)
			if tt.wantVerify {
				api.AssertCalled(t, "VerifyPayment", mock.Anything, mock.Anything)
			} else {
				api.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything)
			}
			if tt.wantComplete {
				api.AssertCalled(t, "CompleteRegistration", mock.Anything, mock.Anything)
			} else {
				api.AssertNotCalled(t, "CompleteRegistration", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestTemporalFinalizerStartsWorkflowPerReference(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	in := finalizeInput(true, models.VerifyStrict)

	c.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.ID == "finalize-REG-123" &&
			o.TaskQueue == "farmer-registration" &&
			o.WorkflowIDConflictPolicy == enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING
	}), mock.Anything, in).Return(run, nil)
	run.On("GetID").Return("finalize-REG-123")
	run.On("GetRunID").Return("run-1")
	run.On("Get", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		out := args.Get(1).(*models.FinalizeResult)
		*out = models.FinalizeResult{ReferenceID: "REG-123", PaymentID: "pay_1", Verified: true}
	}).Return(nil)

	result, err := NewTemporalFinalizer(c, "farmer-registration", nil).Finalize(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, models.FinalizeResult{ReferenceID: "REG-123", PaymentID: "pay_1", Verified: true}, result)
	c.AssertExpectations(t)
	run.AssertExpectations(t)
}

func TestTemporalFinalizerErrors(t *testing.T) {
	in := finalizeInput(true, models.VerifyStrict)

	t.Run("Start Failure", func(t *testing.T) {
		c := &mocks.Client{}
		c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, in).Return(nil, errors.New("connection refused"))

		_, err := NewTemporalFinalizer(c, "farmer-registration", nil).Finalize(context.Background(), in)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "unable to start finalization workflow")
	})

	t.Run("Workflow Failure", func(t *testing.T) {
		c := &mocks.Client{}
		run := &mocks.WorkflowRun{}
		c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, in).Return(run, nil)
		run.On("GetID").Return("finalize-REG-123")
		run.On("GetRunID").Return("run-1")
		run.On("Get", mock.Anything, mock.Anything).Return(errors.New("activity error"))

		_, err := NewTemporalFinalizer(c, "farmer-registration", nil).Finalize(context.Background(), in)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "finalization workflow failed")
	})
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "finalize-REG-1700000000000-ABCDEFGHI", WorkflowID("REG-1700000000000-ABCDEFGHI"))
}
