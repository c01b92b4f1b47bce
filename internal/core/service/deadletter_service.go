package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
	"github.com/rl1809/order-pipeline/internal/port"
)

// DeadLetterService surfaces confirmations that exhausted redelivery. It never
// touches orders or inventory; the affected orders stay PENDING for an operator.
type DeadLetterService struct {
	alerter port.Alerter
	opts    options
}

func NewDeadLetterService(alerter port.Alerter, opts ...Option) *DeadLetterService {
	return &DeadLetterService{alerter: alerter, opts: newOptions(opts)}
}

// Drain reports every message as handled.
func (s *DeadLetterService) Drain(ctx context.Context, msgs []port.Message) port.BatchResult {
	for _, m := range msgs {
		s.drainOne(ctx, m)
	}
	return port.BatchResult{}
}

func (s *DeadLetterService) drainOne(ctx context.Context, m port.Message) {
	ctx, span := s.opts.tracer.Start(ctx, spanPrefix+"DrainDeadLetter")
	defer span.End()

	s.opts.metrics.CountDeadLetter()

	msg, err := domain.DecodeConfirmationMessage(m.Body)
	if err != nil {
		s.opts.log.Error("dead_letter_undecodable",
			zap.String("message_id", m.ID),
			zap.Int("delivery_count", m.DeliveryCount),
			zap.Error(err),
		)
		return
	}

	s.opts.log.Error("order_notification_failed_permanently",
		zap.String("order_id", msg.OrderID),
		zap.String("user_email", msg.UserEmail),
		zap.String("message_id", m.ID),
		zap.Int("delivery_count", m.DeliveryCount),
	)

	if err := s.alerter.AlertUndeliverable(ctx, msg, m.DeliveryCount); err != nil {
		s.opts.metrics.CountAlertFailure()
		s.opts.log.Warn("operational_alert_failed", zap.String("order_id", msg.OrderID), zap.Error(err))
	}
}
