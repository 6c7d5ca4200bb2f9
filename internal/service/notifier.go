package service

import (
	"context"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventPublisher delivers domain events to other services.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, events.Event) error { return nil }

// retryingPublisher is implemented by brokers that can retry transient
// publish failures themselves.
type retryingPublisher interface {
	PublishWithRetry(ctx context.Context, event events.Event, maxRetries int) error
}

const (
	publishTimeout  = 5 * time.Second
	publishAttempts = 3
)

// publish sends an event after the workflow has committed. Failures are
// logged and never undo the committed state.
func publish(ctx context.Context, publisher EventPublisher, eventType events.EventType, order *domain.Order, payload interface{}) {
	event, err := events.New(eventType, order.ID, order.CustomerID, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("Event build error")
		return
	}
	event.CorrelationID = correlationID(ctx)

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if retrying, ok := publisher.(retryingPublisher); ok {
		err = retrying.PublishWithRetry(publishCtx, event, publishAttempts)
	} else {
		err = publisher.Publish(publishCtx, event)
	}
	if err != nil {
		log.Warn().Err(err).
			Str("event_type", string(eventType)).
			Str("order_id", order.ID.String()).
			Msg("Event publish error")
		return
	}

	log.Debug().Str("event_type", string(eventType)).Str("order_id", order.ID.String()).Msg("Event published")
}

type correlationKey struct{}

// WithCorrelationID tags ctx so that published events carry the request id.
func WithCorrelationID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(correlationKey{}).(uuid.UUID); ok {
		return id
	}
	return uuid.New()
}
