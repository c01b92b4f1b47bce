package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
	"github.com/rl1809/order-pipeline/internal/port"
)

const (
	fieldBody          = "body"
	fieldDeliveryCount = "deliveryCount"
	fieldSourceID      = "sourceId"
	attrPrefix         = "attr:"

	defaultBlock = 2 * time.Second
)

type StreamConfig struct {
	Stream   string
	Group    string
	Consumer string

	// DeadLetterStream receives entries delivered more than MaxReceiveCount times.
	// Empty disables redrive.
	DeadLetterStream  string
	MaxReceiveCount   int
	VisibilityTimeout time.Duration
	Block             time.Duration
}

// RedisStreamQueue is a consumer-group backed queue with SQS-like visibility
// timeouts: an unacknowledged entry becomes receivable again once it has been
// idle for VisibilityTimeout.
type RedisStreamQueue struct {
	client *redis.Client
	cfg    StreamConfig
	log    *zap.Logger
}

func NewRedisStreamQueue(client *redis.Client, cfg StreamConfig, logger *zap.Logger) *RedisStreamQueue {
	if cfg.Block <= 0 {
		cfg.Block = defaultBlock
	}
	return &RedisStreamQueue{client: client, cfg: cfg, log: logger}
}

// EnsureGroup creates the stream and consumer group if they do not exist.
func (q *RedisStreamQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", q.cfg.Group, q.cfg.Stream, err)
	}
	return nil
}

func (q *RedisStreamQueue) Publish(ctx context.Context, body []byte, attributes map[string]string) (string, error) {
	values := make(map[string]any, len(attributes)+1)
	values[fieldBody] = string(body)
	for k, v := range attributes {
		values[attrPrefix+k] = v
	}

	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", domain.Transient("publish message", err)
	}
	return id, nil
}

// Receive returns up to max entries: first those whose visibility timeout
// expired, then new ones. It blocks for at most the configured Block duration.
func (q *RedisStreamQueue) Receive(ctx context.Context, max int) ([]port.Message, error) {
	msgs, err := q.reclaim(ctx, max)
	if err != nil {
		return nil, err
	}
	if len(msgs) >= max {
		return msgs, nil
	}

	block := q.cfg.Block
	if len(msgs) > 0 {
		block = -1
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    int64(max - len(msgs)),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return msgs, nil
	}
	if err != nil {
		return msgs, domain.Transient("read stream", err)
	}

	for _, stream := range streams {
		for _, entry := range stream.Messages {
			msgs = append(msgs, toMessage(entry, 1))
		}
	}
	return msgs, nil
}

func (q *RedisStreamQueue) reclaim(ctx context.Context, max int) ([]port.Message, error) {
	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		MinIdle:  q.cfg.VisibilityTimeout,
		Start:    "0-0",
		Count:    int64(max),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, domain.Transient("reclaim stream entries", err)
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	counts, err := q.deliveryCounts(ctx, claimed)
	if err != nil {
		return nil, err
	}

	msgs := make([]port.Message, 0, len(claimed))
	for _, entry := range claimed {
		if entry.Values == nil {
			// trimmed or deleted while pending
			q.client.XAck(ctx, q.cfg.Stream, q.cfg.Group, entry.ID)
			continue
		}
		count := counts[entry.ID]
		if q.cfg.DeadLetterStream != "" && count > q.cfg.MaxReceiveCount {
			if err := q.moveToDeadLetter(ctx, entry, count); err != nil {
				q.log.Error("dead_letter_move_failed", zap.String("message_id", entry.ID), zap.Error(err))
			}
			continue
		}
		msgs = append(msgs, toMessage(entry, count))
	}
	return msgs, nil
}

// deliveryCounts reads the PEL for the claimed range. Workers sharing a
// consumer name can still crowd ids out of that reply, so any id it misses
// is looked up on its own.
func (q *RedisStreamQueue) deliveryCounts(ctx context.Context, entries []redis.XMessage) (map[string]int, error) {
	counts := make(map[string]int, len(entries))
	if err := q.readPending(ctx, entries[0].ID, entries[len(entries)-1].ID, int64(len(entries)), counts); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if _, ok := counts[entry.ID]; ok {
			continue
		}
		if err := q.readPending(ctx, entry.ID, entry.ID, 1, counts); err != nil {
			return nil, err
		}
	}
	return counts, nil
}

func (q *RedisStreamQueue) readPending(ctx context.Context, start, end string, count int64, into map[string]int) error {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.Group,
		Start:    start,
		End:      end,
		Count:    count,
		Consumer: q.cfg.Consumer,
	}).Result()
	if err != nil {
		return domain.Transient("read pending entries", err)
	}
	for _, p := range pending {
		into[p.ID] = int(p.RetryCount)
	}
	return nil
}

func (q *RedisStreamQueue) moveToDeadLetter(ctx context.Context, entry redis.XMessage, count int) error {
	values := make(map[string]any, len(entry.Values)+2)
	for k, v := range entry.Values {
		values[k] = v
	}
	values[fieldDeliveryCount] = strconv.Itoa(count)
	values[fieldSourceID] = entry.ID

	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.DeadLetterStream,
		Values: values,
	}).Err(); err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, q.cfg.Stream, q.cfg.Group, entry.ID)
	pipe.XDel(ctx, q.cfg.Stream, entry.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	q.log.Warn("message_moved_to_dead_letter",
		zap.String("message_id", entry.ID),
		zap.Int("delivery_count", count),
		zap.String("dead_letter_stream", q.cfg.DeadLetterStream),
	)
	return nil
}

func (q *RedisStreamQueue) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := q.client.XAck(ctx, q.cfg.Stream, q.cfg.Group, ids...).Err(); err != nil {
		return domain.Transient("ack messages", err)
	}
	return nil
}

func toMessage(entry redis.XMessage, deliveryCount int) port.Message {
	msg := port.Message{
		ID:            entry.ID,
		Attributes:    make(map[string]string),
		DeliveryCount: deliveryCount,
	}
	for k, v := range entry.Values {
		s, _ := v.(string)
		switch {
		case k == fieldBody:
			msg.Body = []byte(s)
		case k == fieldDeliveryCount:
			// dead-lettered entries carry the count from the source stream
			if n, err := strconv.Atoi(s); err == nil {
				msg.DeliveryCount = n
			}
		case strings.HasPrefix(k, attrPrefix):
			msg.Attributes[strings.TrimPrefix(k, attrPrefix)] = s
		}
	}
	return msg
}
