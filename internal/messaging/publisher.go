package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

type Publisher struct {
	client *RabbitMQClient
}

func NewPublisher(client *RabbitMQClient) *Publisher {
	return &Publisher{
		client: client,
	}
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.client.IsConnected() {
		return domain.Unavailable("publish event", fmt.Errorf("no connection to RabbitMQ"))
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("event serialization error: %w", err)
	}

	routingKey := events.RoutingKey(event.EventType)

	err = p.client.Channel().Publish(
		p.client.Exchange(),
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID.String(),
			Timestamp:    event.Timestamp,
			Headers: amqp.Table{
				"order_id":       event.OrderID.String(),
				"customer_id":    event.CustomerID.String(),
				"correlation_id": event.CorrelationID.String(),
				"service":        event.Service,
				"event_type":     string(event.EventType),
			},
		},
	)
	if err != nil {
		return domain.Unavailable("publish event", err)
	}

	log.Debug().Str("routing_key", routingKey).Str("event_id", event.ID.String()).Msg("Event published")
	return nil
}

func (p *Publisher) PublishWithRetry(ctx context.Context, event events.Event, maxRetries int) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if err := p.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", i+1).Int("max", maxRetries).Msg("Publish error")

			if i < maxRetries-1 {
				select {
				case <-time.After(time.Second * time.Duration(i+1)):
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
		} else {
			return nil
		}
	}

	return fmt.Errorf("event publish failed after %d attempts: %w", maxRetries, lastErr)
}
