package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/ecocycle/collection-service/internal/application"
	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/internal/infrastructure/memory"
	"github.com/ecocycle/collection-service/internal/notification"
	"github.com/ecocycle/collection-service/internal/workflows"
	"github.com/ecocycle/collection-service/pkg/cloudevents"
	"github.com/ecocycle/collection-service/pkg/contracts/asyncapi"
	"github.com/ecocycle/collection-service/pkg/idempotency"
	"github.com/ecocycle/collection-service/pkg/kafka"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/outbox"
	"github.com/ecocycle/collection-service/pkg/temporal"
)

type MockStarter struct {
	mock.Mock
}

func (m *MockStarter) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error) {
	called := m.Called(options.ID, options.TaskQueue, args)
	return nil, called.Error(1)
}

type harness struct {
	consumer  *kafka.Consumer
	notifier  *notification.RecordingNotifier
	starter   *MockStarter
	processed *idempotency.MemoryMessageRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	validator, err := asyncapi.NewDefaultEventValidator()
	require.NoError(t, err)

	h := &harness{
		notifier:  &notification.RecordingNotifier{},
		starter:   &MockStarter{},
		processed: idempotency.NewMemoryMessageRepository(),
	}
	logger := logging.NewNop()
	dispatcher := notification.NewDispatcher(h.notifier, logger, nil)
	processor := NewEventProcessor(validator, dispatcher, h.starter, logger, nil)

	h.consumer = kafka.NewConsumer(kafka.DefaultConfig(), logger, nil)
	subscribe(h.consumer, processor, h.processed, "collection-worker", "collection-worker", logger)
	return h
}

// deliver feeds an outbox record through the consumer as a Kafka message
func (h *harness) deliver(t *testing.T, record *outbox.OutboxEvent) error {
	t.Helper()
	event, err := record.ToCloudEvent()
	require.NoError(t, err)
	msg, err := kafka.NewMessage(event)
	require.NoError(t, err)
	return h.consumer.HandleMessage(context.Background(), record.Topic, msg)
}

// completeCollection drives one collection to completed and returns its id
// with the outbox records it produced.
func completeCollection(t *testing.T) (string, []*outbox.OutboxEvent) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	household := domain.Actor{ID: "household-1", Role: domain.RoleHousehold}
	collector := domain.Actor{ID: "collector-1", Role: domain.RoleCollector}

	store := memory.NewStore(nil)
	service := application.NewCollectionApplicationService(store.Collections(), nil, nil, nil,
		application.WithClock(func() time.Time { return now }))

	c, err := service.ScheduleCollection(ctx, application.ScheduleCollectionCommand{
		Requester: household, WasteType: "paper", Address: "1 Main St", ScheduledDate: now.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = service.ClaimCollection(ctx, application.ClaimCollectionCommand{CollectionID: c.ID, Actor: collector})
	require.NoError(t, err)
	for _, status := range []string{"in_progress", "completed"} {
		amount := 4.0
		_, err = service.TransitionCollection(ctx, application.TransitionCollectionCommand{
			CollectionID: c.ID, Status: status, Actor: collector, WasteAmount: &amount,
		})
		require.NoError(t, err)
	}
	return c.ID, store.Outbox().All()
}

func isCompletion(t *testing.T, record *outbox.OutboxEvent) bool {
	t.Helper()
	if record.EventType != cloudevents.CollectionStatusChanged {
		return false
	}
	event, err := record.ToCloudEvent()
	require.NoError(t, err)
	var changed domain.CollectionStatusChangedEvent
	require.NoError(t, event.DecodeData(&changed))
	return changed.To == domain.StatusCompleted
}

func TestProcessor_StartsImpactWorkflowOnCompletion(t *testing.T) {
	h := newHarness(t)
	id, records := completeCollection(t)

	h.starter.On("ExecuteWorkflow", workflows.ImpactWorkflowID(id), temporal.TaskQueues.Impact, mock.Anything).
		Return(nil, nil).Once()

	for _, record := range records {
		require.NoError(t, h.deliver(t, record))
	}

	h.starter.AssertExpectations(t)
	args := h.starter.Calls[0].Arguments.Get(2).([]interface{})
	require.Len(t, args, 1)
	assert.Equal(t, workflows.ImpactCalculationInput{CollectionID: id}, args[0])

	templates := map[string]int{}
	for _, n := range h.notifier.Sent() {
		assert.Equal(t, "household-1", n.RecipientID)
		templates[n.Template]++
	}
	assert.Equal(t, map[string]int{
		notification.TemplateCollectionScheduled: 1,
		notification.TemplateCollectionClaimed:   1,
		notification.TemplateCollectionStarted:   1,
		notification.TemplateCollectionCompleted: 1,
	}, templates)
}

func TestProcessor_RedeliveryIsDeduplicated(t *testing.T) {
	h := newHarness(t)
	id, records := completeCollection(t)

	h.starter.On("ExecuteWorkflow", workflows.ImpactWorkflowID(id), temporal.TaskQueues.Impact, mock.Anything).
		Return(nil, nil).Once()

	for _, record := range records {
		require.NoError(t, h.deliver(t, record))
	}
	sent := len(h.notifier.Sent())

	for _, record := range records {
		require.NoError(t, h.deliver(t, record))
	}
	assert.Len(t, h.notifier.Sent(), sent)
	h.starter.AssertNumberOfCalls(t, "ExecuteWorkflow", 1)
}

func TestProcessor_AlreadyStartedWorkflowIsAccepted(t *testing.T) {
	h := newHarness(t)
	id, records := completeCollection(t)

	h.starter.On("ExecuteWorkflow", workflows.ImpactWorkflowID(id), temporal.TaskQueues.Impact, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "")).Once()

	for _, record := range records {
		require.NoError(t, h.deliver(t, record))
	}
	h.starter.AssertExpectations(t)
	assert.Len(t, h.notifier.Sent(), 4)
}

func TestProcessor_FailedStartIsRedelivered(t *testing.T) {
	h := newHarness(t)
	id, records := completeCollection(t)

	var completion *outbox.OutboxEvent
	for _, record := range records {
		if isCompletion(t, record) {
			completion = record
		}
	}
	require.NotNil(t, completion)

	h.starter.On("ExecuteWorkflow", workflows.ImpactWorkflowID(id), temporal.TaskQueues.Impact, mock.Anything).
		Return(nil, errors.New("frontend unavailable")).Once()
	assert.Error(t, h.deliver(t, completion))
	assert.Empty(t, h.notifier.Sent(), "no notification before the workflow is started")

	h.starter.On("ExecuteWorkflow", workflows.ImpactWorkflowID(id), temporal.TaskQueues.Impact, mock.Anything).
		Return(nil, nil).Once()
	require.NoError(t, h.deliver(t, completion))
	require.Len(t, h.notifier.Sent(), 1)
	assert.Equal(t, notification.TemplateCollectionCompleted, h.notifier.Sent()[0].Template)
}

func TestProcessor_DropsEventsViolatingContract(t *testing.T) {
	h := newHarness(t)

	event := cloudevents.NewEventFactory(cloudevents.SourceCollectionService).CreateEvent(
		context.Background(), cloudevents.CollectionStatusChanged, "collection/x",
		map[string]any{"collectionId": "x", "to": "teleported"},
	)
	msg, err := kafka.NewMessage(event)
	require.NoError(t, err)

	require.NoError(t, h.consumer.HandleMessage(context.Background(), kafka.Topics.CollectionEvents, msg))
	assert.Empty(t, h.notifier.Sent())
	h.starter.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_WithoutStarterOnlyNotifies(t *testing.T) {
	notifier := &notification.RecordingNotifier{}
	processor := NewEventProcessor(nil, notification.NewDispatcher(notifier, nil, nil), nil, nil, nil)
	_, records := completeCollection(t)

	for _, record := range records {
		event, err := record.ToCloudEvent()
		require.NoError(t, err)
		require.NoError(t, processor.Handle(context.Background(), event))
	}
	assert.Len(t, notifier.Sent(), 4)
}
