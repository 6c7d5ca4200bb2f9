package service

import (
	"context"
	"fmt"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ReconciliationCommands are the broker commands HandleCommand understands.
var ReconciliationCommands = []events.EventType{
	events.PaymentExpireCommand,
	events.PaymentExpireStaleCommand,
}

// HandleCommand executes a reconciliation command received from the broker.
func (s *PaymentService) HandleCommand(ctx context.Context, event events.Event) error {
	switch event.EventType {
	case events.PaymentExpireCommand:
		var command events.ExpirePaymentCommand
		if err := event.Decode(&command); err != nil {
			return domain.Invalid(domain.ErrValidation, "event", "payload", err.Error())
		}
		if command.PaymentID == uuid.Nil {
			return domain.Invalid(domain.ErrValidation, "event", "payment_id", "payment_id is required")
		}
		_, err := s.MarkExpired(ctx, command.PaymentID)
		return err

	case events.PaymentExpireStaleCommand:
		result, err := s.ExpireStale(ctx, 0)
		if err != nil {
			return err
		}
		log.Info().Int("expired", result.Expired).Int("settled", result.Settled).Msg("Reconciliation command processed")
		return nil
	}

	return domain.Invalid(domain.ErrValidation, "event", "event_type", fmt.Sprintf("unsupported command %s", event.EventType))
}
