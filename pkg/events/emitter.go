// Package events handles event emission for sharing lifecycle changes
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// EventType defines the type of lifecycle event
type EventType string

const (
	EventTypeRequestApproved    EventType = "request.approved"
	EventTypeRequestRejected    EventType = "request.rejected"
	EventTypeRequestExpired     EventType = "request.expired"
	EventTypeContractCreated    EventType = "contract.created"
	EventTypeContractSuspended  EventType = "contract.suspended"
	EventTypeContractResumed    EventType = "contract.resumed"
	EventTypeContractTerminated EventType = "contract.terminated"
	EventTypeTransferCompleted  EventType = "transfer.completed"
	EventTypeTransferFailed     EventType = "transfer.failed"
	EventTypeTransferCancelled  EventType = "transfer.cancelled"
)

// Emitter mirrors lifecycle changes onto the dataspace event topic.
// Emission failures are reported to the caller but the state change
// they describe has already been committed.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitRequestDecided emits the event for an approve, reject or expire decision
func (e *Emitter) EmitRequestDecided(ctx context.Context, eventType EventType, request *models.DataRequest) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRequestDecided")
	defer span.End()

	event := &kafka.LifecycleEventMessage{
		Type:          string(eventType),
		RequestID:     request.ID.String(),
		PublicationID: request.PublicationID.String(),
		ConsumerRole:  request.RequesterRole,
		Status:        string(request.Status),
	}

	if err := e.producer.PublishLifecycleEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	return nil
}

// EmitContractCreated emits a contract.created event
func (e *Emitter) EmitContractCreated(ctx context.Context, contract *models.DataContract) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitContractCreated")
	defer span.End()

	event := &kafka.LifecycleEventMessage{
		Type:          string(EventTypeContractCreated),
		ContractID:    contract.ID.String(),
		RequestID:     contract.RequestID.String(),
		PublicationID: contract.PublicationID.String(),
		ProviderRole:  contract.ProviderRole,
		ConsumerRole:  contract.ConsumerRole,
		Status:        string(contract.Status),
	}

	if err := e.producer.PublishLifecycleEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit contract.created event")
		return err
	}

	return nil
}

// EmitContractStatusChanged emits the event for a suspend, resume or terminate
func (e *Emitter) EmitContractStatusChanged(ctx context.Context, eventType EventType, contract *models.DataContract) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitContractStatusChanged")
	defer span.End()

	event := &kafka.LifecycleEventMessage{
		Type:          string(eventType),
		ContractID:    contract.ID.String(),
		RequestID:     contract.RequestID.String(),
		PublicationID: contract.PublicationID.String(),
		ProviderRole:  contract.ProviderRole,
		ConsumerRole:  contract.ConsumerRole,
		Status:        string(contract.Status),
	}

	if err := e.producer.PublishLifecycleEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	return nil
}

// EmitTransferFinished emits the event for a completed, failed or cancelled transfer
func (e *Emitter) EmitTransferFinished(ctx context.Context, eventType EventType, transfer *models.DataTransfer) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitTransferFinished")
	defer span.End()

	event := &kafka.LifecycleEventMessage{
		Type:          string(eventType),
		TransferID:    transfer.ID.String(),
		ContractID:    transfer.ContractID.String(),
		PublicationID: transfer.PublicationID.String(),
		Status:        string(transfer.Status),
	}

	if err := e.producer.PublishLifecycleEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	return nil
}
