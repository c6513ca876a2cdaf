package temporal

import (
	"context"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
)

// Starter is the part of the SDK client that starts workflows.
type Starter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// ExecutionTimeout caps a single impact workflow run including retries.
const ExecutionTimeout = time.Hour

// StartOnce starts workflow under workflowID. The id is a business key, so
// the server refuses a second start even after the first run closed; that
// refusal is reported as started=false rather than an error.
func StartOnce(ctx context.Context, starter Starter, workflowID, taskQueue string, workflow interface{}, args ...interface{}) (started bool, err error) {
	opts := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                taskQueue,
		WorkflowExecutionTimeout: ExecutionTimeout,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_FAIL,
	}
	if _, err := starter.ExecuteWorkflow(ctx, opts, workflow, args...); err != nil {
		if temporal.IsWorkflowExecutionAlreadyStartedError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
