package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/events"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

const (
	retryHeader = "x-retry-count"
	maxRetries  = 3
	retryDelay  = 2 * time.Second
)

type EventHandler func(ctx context.Context, event events.Event) error

type Consumer struct {
	client      *RabbitMQClient
	queueName   string
	serviceName string
}

func NewConsumer(client *RabbitMQClient, queueName, serviceName string) *Consumer {
	return &Consumer{
		client:      client,
		queueName:   queueName,
		serviceName: serviceName,
	}
}

func (c *Consumer) ConsumeEvents(ctx context.Context, eventTypes []events.EventType, handler EventHandler) error {
	if !c.client.IsConnected() {
		return domain.Unavailable("consume events", fmt.Errorf("no connection to RabbitMQ"))
	}

	channel := c.client.Channel()

	queue, err := channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("queue declare error: %w", err)
	}

	for _, eventType := range eventTypes {
		routingKey := events.RoutingKey(eventType)
		err = channel.QueueBind(
			queue.Name,          // queue name
			routingKey,          // routing key
			c.client.Exchange(), // exchange
			false,               // no-wait
			nil,                 // arguments
		)
		if err != nil {
			return fmt.Errorf("queue bind error (%s): %w", routingKey, err)
		}
		log.Info().Str("queue", queue.Name).Str("routing_key", routingKey).Msg("Queue bound")
	}

	messages, err := channel.Consume(
		queue.Name,    // queue
		c.serviceName, // consumer
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return fmt.Errorf("consume start error: %w", err)
	}

	log.Info().Str("queue", queue.Name).Msg("Consuming events")

	go func() {
		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					log.Warn().Str("queue", queue.Name).Msg("Delivery channel closed")
					return
				}
				c.handleMessage(ctx, msg, handler)
			case <-ctx.Done():
				return
			case <-c.client.Done():
				log.Info().Str("consumer", c.serviceName).Msg("Consumer stopped")
				return
			}
		}
	}()

	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery, handler EventHandler) {
	var event events.Event

	if err := json.Unmarshal(msg.Body, &event); err != nil {
		log.Error().Err(err).Msg("Event deserialize error")
		msg.Nack(false, false)
		return
	}

	logger := log.With().Str("event_type", string(event.EventType)).Str("event_id", event.ID.String()).Logger()

	if err := handler(ctx, event); err != nil {
		// A rejected command will be rejected again.
		if domain.IsDomainError(err) {
			logger.Warn().Err(err).Msg("Event rejected")
			msg.Ack(false)
			return
		}

		logger.Error().Err(err).Msg("Event process error")
		if retries := retryCount(msg); retries < maxRetries {
			c.republishWithRetry(msg, retries+1)
		} else {
			logger.Error().Int("retries", retries).Msg("Max retry reached, dead-lettering")
			msg.Nack(false, false)
		}
		return
	}

	msg.Ack(false)
	logger.Debug().Msg("Event processed")
}

func retryCount(msg amqp.Delivery) int {
	switch v := msg.Headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (c *Consumer) republishWithRetry(msg amqp.Delivery, attempt int) {
	time.Sleep(retryDelay)

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(attempt)

	err := c.client.Channel().Publish(
		msg.Exchange,
		msg.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			DeliveryMode: msg.DeliveryMode,
			MessageId:    msg.MessageId,
			Headers:      headers,
		},
	)
	if err != nil {
		log.Error().Err(err).Msg("Retry publish error")
		msg.Nack(false, false)
		return
	}

	msg.Ack(false)
	log.Info().Str("routing_key", msg.RoutingKey).Int("attempt", attempt).Msg("Re-published")
}
