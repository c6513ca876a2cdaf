// Package temporal connects the worker to the Temporal frontend and starts
// the impact workflow exactly once per collection.
package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"github.com/ecocycle/collection-service/pkg/logging"
)

var TaskQueues = struct {
	Impact string
}{
	Impact: "impact-queue",
}

var WorkflowNames = struct {
	ImpactCalculation string
}{
	ImpactCalculation: "ImpactCalculationWorkflow",
}

type Config struct {
	HostPort  string
	Namespace string
	Identity  string
}

func DefaultConfig() *Config {
	return &Config{
		HostPort:  client.DefaultHostPort,
		Namespace: client.DefaultNamespace,
		Identity:  "collection-worker",
	}
}

// Client owns one SDK connection. It satisfies Starter.
type Client struct {
	sdk       client.Client
	namespace string
}

// NewClient dials the frontend; the SDK's own logging goes through logger.
func NewClient(ctx context.Context, cfg *Config, logger *logging.Logger) (*Client, error) {
	opts := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Identity:  cfg.Identity,
	}
	if logger != nil {
		opts.Logger = tlog.NewStructuredLogger(logger.WithComponent("temporal-sdk").Logger)
	}
	sdk, err := client.DialContext(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("temporal: dial %s (namespace %s): %w", cfg.HostPort, cfg.Namespace, err)
	}
	return &Client{sdk: sdk, namespace: cfg.Namespace}, nil
}

func (c *Client) Close() { c.sdk.Close() }

// HealthCheck is a readiness probe against the frontend's health service.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.sdk.CheckHealth(ctx, &client.CheckHealthRequest{}); err != nil {
		return fmt.Errorf("temporal: %w", err)
	}
	return nil
}

func (c *Client) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error) {
	return c.sdk.ExecuteWorkflow(ctx, options, workflow, args...)
}

// WorkerOptions bounds the pollers and concurrent task slots of a worker.
type WorkerOptions struct {
	TaskQueue         string
	ActivityPollers   int
	WorkflowPollers   int
	ActivitySlots     int
	WorkflowTaskSlots int
}

func DefaultWorkerOptions(taskQueue string) *WorkerOptions {
	return &WorkerOptions{
		TaskQueue:         taskQueue,
		ActivityPollers:   2,
		WorkflowPollers:   2,
		ActivitySlots:     50,
		WorkflowTaskSlots: 50,
	}
}

func (c *Client) NewWorker(opts *WorkerOptions) worker.Worker {
	return worker.New(c.sdk, opts.TaskQueue, worker.Options{
		MaxConcurrentActivityTaskPollers:       opts.ActivityPollers,
		MaxConcurrentWorkflowTaskPollers:       opts.WorkflowPollers,
		MaxConcurrentActivityExecutionSize:     opts.ActivitySlots,
		MaxConcurrentWorkflowTaskExecutionSize: opts.WorkflowTaskSlots,
	})
}
