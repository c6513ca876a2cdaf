package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Application error types activities use for failures a retry cannot fix.
const (
	ErrTypeNotFound     = "NotFoundError"
	ErrTypeInvalidState = "InvalidStateError"
	ErrTypeValidation   = "ValidationError"
)

var permanentErrors = []string{ErrTypeNotFound, ErrTypeInvalidState, ErrTypeValidation}

// The impact record must land, so calculation retries longest. Publishing
// retries a few times and the notification is attempted once.
var (
	calculateOptions = workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        500 * time.Millisecond,
			BackoffCoefficient:     2,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: permanentErrors,
		},
	}
	publishOptions = workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: permanentErrors,
		},
	}
	notifyOptions = workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
)
