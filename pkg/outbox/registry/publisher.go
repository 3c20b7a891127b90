package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/pkg/config"
	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	"github.com/marketloop/marketloop-backend/pkg/outbox"
	"github.com/marketloop/marketloop-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.ReconciliationTopic == "" {
		return nil, fmt.Errorf("reconciliation topic is required")
	}
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	reconciliationTopic := cfg.ReconciliationTopic
	notificationTopic := cfg.NotificationTopic

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventOrderPaid,
			AggregateType:  enums.AggregateOrder,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.OrderPaidEvent{} },
		},
		{
			EventType:      enums.EventOrderRefunded,
			AggregateType:  enums.AggregateOrder,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.OrderRefundedEvent{} },
		},
		{
			EventType:      enums.EventOrderPaymentFailed,
			AggregateType:  enums.AggregateOrder,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.OrderPaymentFailedEvent{} },
		},
		{
			EventType:      enums.EventPreorderPaid,
			AggregateType:  enums.AggregatePreorder,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.PreorderPaidEvent{} },
		},
		{
			EventType:      enums.EventPreorderRefunded,
			AggregateType:  enums.AggregatePreorder,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.PreorderRefundedEvent{} },
		},
		{
			EventType:      enums.EventPreorderTransferFailed,
			AggregateType:  enums.AggregatePreorder,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.PreorderTransferFailedEvent{} },
		},
		{
			EventType:      enums.EventTicketPurchaseComplete,
			AggregateType:  enums.AggregateTicketPurchase,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.TicketPurchaseCompletedEvent{} },
		},
		{
			EventType:      enums.EventTicketValidated,
			AggregateType:  enums.AggregateTicketPurchase,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.TicketValidatedEvent{} },
		},
		{
			EventType:      enums.EventApplicationApproved,
			AggregateType:  enums.AggregateVendorApplication,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.ApplicationDecisionEvent{} },
		},
		{
			EventType:      enums.EventApplicationDenied,
			AggregateType:  enums.AggregateVendorApplication,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.ApplicationDecisionEvent{} },
		},
		{
			EventType:      enums.EventApplicationConfirmed,
			AggregateType:  enums.AggregateVendorApplication,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.ApplicationConfirmedEvent{} },
		},
		{
			EventType:      enums.EventApplicationExpired,
			AggregateType:  enums.AggregateVendorApplication,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.ApplicationExpiredEvent{} },
		},
		{
			EventType:      enums.EventVendorSaleRecorded,
			AggregateType:  enums.AggregateVendorSale,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.VendorSaleRecordedEvent{} },
		},
		{
			EventType:      enums.EventPayoutAccountUpdated,
			AggregateType:  enums.AggregatePayoutAccount,
			Topic:          reconciliationTopic,
			PayloadFactory: func() interface{} { return &payloads.PayoutAccountUpdatedEvent{} },
		},
	} {
		reg.register(desc)
	}
	reg.register(EventDescriptor{
		EventType:      enums.EventNotificationRequested,
		AggregateType:  enums.AggregateNotification,
		Topic:          notificationTopic,
		PayloadFactory: func() interface{} { return &payloads.NotificationRequestedEvent{} },
	})

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
