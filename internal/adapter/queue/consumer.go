package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/port"
)

const receiveErrorBackoff = time.Second

// Consumer drives a receive, handle, ack loop. Messages listed in the handler's
// FailedIDs are left unacknowledged and come back after the visibility timeout.
type Consumer struct {
	name      string
	receiver  port.MessageReceiver
	handler   port.BatchHandler
	batchSize int
	log       *zap.Logger
}

func NewConsumer(name string, receiver port.MessageReceiver, handler port.BatchHandler, batchSize int, logger *zap.Logger) *Consumer {
	return &Consumer{
		name:      name,
		receiver:  receiver,
		handler:   handler,
		batchSize: batchSize,
		log:       logger.With(zap.String("consumer", name)),
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.log.Info("consumer_started", zap.Int("batch_size", c.batchSize))
	defer c.log.Info("consumer_stopped")

	for ctx.Err() == nil {
		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("consumer_receive_failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveErrorBackoff):
			}
		}
	}
}

func (c *Consumer) poll(ctx context.Context) error {
	msgs, err := c.receiver.Receive(ctx, c.batchSize)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	result := c.handler(ctx, msgs)

	failed := make(map[string]bool, len(result.FailedIDs))
	for _, id := range result.FailedIDs {
		failed[id] = true
	}
	ack := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if !failed[m.ID] {
			ack = append(ack, m.ID)
		}
	}

	if err := c.receiver.Ack(ctx, ack...); err != nil {
		c.log.Error("consumer_ack_failed", zap.Int("count", len(ack)), zap.Error(err))
	}
	c.log.Debug("batch_processed",
		zap.Int("received", len(msgs)),
		zap.Int("acked", len(ack)),
		zap.Int("failed", len(result.FailedIDs)),
	)
	return nil
}
