// Package workflows holds the Temporal workflows run by the collection worker.
package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"
)

// Activity names registered by the worker
const (
	ActivityCalculateImpact = "CalculateImpact"
	ActivityPublishImpact   = "PublishImpact"
	ActivityNotifyImpact    = "NotifyImpact"
)

// ImpactWorkflowID is the workflow id of a collection's impact calculation.
// One id per collection keeps redelivered completion events from starting
// a second run.
func ImpactWorkflowID(collectionID string) string {
	return "impact-" + collectionID
}

// ImpactCalculationInput is the input of ImpactCalculationWorkflow
type ImpactCalculationInput struct {
	CollectionID string `json:"collectionId"`
}

// ImpactSummary is what CalculateImpact reports back to the workflow
type ImpactSummary struct {
	CollectionID       string    `json:"collectionId"`
	RequesterID        string    `json:"requesterId"`
	CollectorID        string    `json:"collectorId"`
	WasteType          string    `json:"wasteType"`
	WasteAmountKg      float64   `json:"wasteAmountKg"`
	CO2AvoidedKg       float64   `json:"co2AvoidedKg"`
	LandfillDivertedKg float64   `json:"landfillDivertedKg"`
	Points             int64     `json:"points"`
	CalculatedAt       time.Time `json:"calculatedAt"`
}

// ImpactCalculationResult is the result of ImpactCalculationWorkflow
type ImpactCalculationResult struct {
	Impact    ImpactSummary `json:"impact"`
	Published bool          `json:"published"`
	Notified  bool          `json:"notified"`
}

// ImpactCalculationWorkflow computes the impact record of a completed
// collection, announces it on the impact topic and tells the requester.
// Only the calculation is required to succeed.
func ImpactCalculationWorkflow(ctx workflow.Context, input ImpactCalculationInput) (*ImpactCalculationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting impact calculation workflow", "collectionId", input.CollectionID)

	if input.CollectionID == "" {
		return nil, fmt.Errorf("collection id is required")
	}

	calcCtx := workflow.WithActivityOptions(ctx, calculateOptions)

	var summary ImpactSummary
	if err := workflow.ExecuteActivity(calcCtx, ActivityCalculateImpact, input).Get(ctx, &summary); err != nil {
		logger.Error("Impact calculation failed", "collectionId", input.CollectionID, "error", err)
		return nil, fmt.Errorf("impact calculation failed: %w", err)
	}

	result := &ImpactCalculationResult{Impact: summary}

	publishCtx := workflow.WithActivityOptions(ctx, publishOptions)
	if err := workflow.ExecuteActivity(publishCtx, ActivityPublishImpact, summary).Get(ctx, nil); err != nil {
		logger.Warn("Failed to publish impact event", "collectionId", input.CollectionID, "error", err)
	} else {
		result.Published = true
	}

	notifyCtx := workflow.WithActivityOptions(ctx, notifyOptions)
	if err := workflow.ExecuteActivity(notifyCtx, ActivityNotifyImpact, summary).Get(ctx, nil); err != nil {
		logger.Warn("Failed to notify requester of impact", "collectionId", input.CollectionID, "error", err)
	} else {
		result.Notified = true
	}

	logger.Info("Impact calculation workflow completed",
		"collectionId", input.CollectionID,
		"points", summary.Points,
		"published", result.Published,
		"notified", result.Notified,
	)
	return result, nil
}
