package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
	"github.com/rl1809/order-pipeline/internal/port"
)

const (
	useCaseConfirm = "order.confirm_notification"

	messageTimeout = 30 * time.Second
)

// Per-message outcomes reported to metrics.
const (
	outcomeConfirmed = "confirmed"
	outcomeReplayed  = "replayed"
	outcomeFailed    = "failed"
)

// ConfirmationService consumes confirmation messages: it notifies the user,
// raises a best-effort operational alert and moves the order to CONFIRMED.
// Delivery is at-least-once, so a message for an order that already left
// PENDING is acknowledged without side effects.
type ConfirmationService struct {
	orders   port.OrderRepository
	notifier port.Notifier
	alerter  port.Alerter
	opts     options
}

func NewConfirmationService(orders port.OrderRepository, notifier port.Notifier, alerter port.Alerter, opts ...Option) *ConfirmationService {
	return &ConfirmationService{
		orders:   orders,
		notifier: notifier,
		alerter:  alerter,
		opts:     newOptions(opts),
	}
}

// ProcessBatch handles each message independently and reports the ids that
// must be redelivered. It never retries internally.
func (s *ConfirmationService) ProcessBatch(ctx context.Context, msgs []port.Message) port.BatchResult {
	var (
		mu     sync.Mutex
		failed []string
		wg     sync.WaitGroup
		sem    = make(chan struct{}, s.opts.parallelism)
	)

	fail := func(id string) {
		mu.Lock()
		failed = append(failed, id)
		mu.Unlock()
	}

	for _, m := range msgs {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					s.opts.log.Error("confirmation_handler_panic",
						zap.String("message_id", m.ID),
						zap.Any("panic", r),
						zap.String("stack", string(debug.Stack())),
					)
					s.opts.metrics.CountMessage(outcomeFailed)
					fail(m.ID)
				}
				<-sem
				wg.Done()
			}()

			mctx, cancel := context.WithTimeout(ctx, messageTimeout)
			defer cancel()

			outcome, err := s.process(mctx, m)
			s.opts.metrics.CountMessage(outcome)
			if err != nil {
				fail(m.ID)
			}
		}()
	}
	wg.Wait()

	s.opts.log.Info("confirmation_batch_done",
		zap.Int("total", len(msgs)),
		zap.Int("failed", len(failed)),
	)
	return port.BatchResult{FailedIDs: failed}
}

func (s *ConfirmationService) process(ctx context.Context, m port.Message) (outcome string, err error) {
	ctx, uc := s.opts.begin(ctx, useCaseConfirm, "ConfirmNotification",
		attribute.String("messaging.message.id", m.ID),
		attribute.Int("messaging.delivery_count", m.DeliveryCount),
	)
	uc.with(zap.String("message_id", m.ID), zap.Int("delivery_count", m.DeliveryCount))
	defer func() { uc.done(err) }()

	msg, err := domain.DecodeConfirmationMessage(m.Body)
	if err != nil {
		return outcomeFailed, err
	}
	uc.with(zap.String("order_id", msg.OrderID))
	uc.span.SetAttributes(attribute.String("order.id", msg.OrderID))

	order, err := s.orders.Get(ctx, msg.OrderID)
	if err != nil {
		return outcomeFailed, err
	}
	if order.Status != domain.OrderStatusPending {
		uc.with(zap.String("order_status", string(order.Status)))
		return outcomeReplayed, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.alert(ctx, uc, msg)
	}()
	notifyErr := s.notifier.NotifyOrderConfirmed(ctx, msg)
	wg.Wait()

	if notifyErr != nil {
		return outcomeFailed, fmt.Errorf("notify user: %w", notifyErr)
	}

	_, err = s.orders.TransitionStatus(ctx, msg.OrderID, domain.OrderStatusPending, domain.OrderStatusConfirmed)
	if errors.Is(err, domain.ErrInvalidTransition) {
		// Moved on while the notification was in flight; keep the newer status.
		uc.log.Warn("order_status_changed_during_confirmation", zap.String("order_id", msg.OrderID), zap.Error(err))
		return outcomeReplayed, nil
	}
	if err != nil {
		return outcomeFailed, fmt.Errorf("confirm order: %w", err)
	}
	return outcomeConfirmed, nil
}

func (s *ConfirmationService) alert(ctx context.Context, uc *useCase, msg domain.ConfirmationMessage) {
	ctx, span := s.opts.tracer.Start(ctx, "AlertNewOrder")
	defer span.End()

	if err := s.alerter.AlertNewOrder(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ALERT_FAILED")
		s.opts.metrics.CountAlertFailure()
		uc.log.Warn("operational_alert_failed", zap.String("order_id", msg.OrderID), zap.Error(err))
	}
}
