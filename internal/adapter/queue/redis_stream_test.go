package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func newTestQueue(t *testing.T, client *redis.Client, maxReceive int) (*RedisStreamQueue, StreamConfig) {
	t.Helper()
	suffix := uuid.NewString()
	cfg := StreamConfig{
		Stream:            "test:orders:" + suffix,
		Group:             "test-group",
		Consumer:          "test-consumer",
		DeadLetterStream:  "test:orders:dlq:" + suffix,
		MaxReceiveCount:   maxReceive,
		VisibilityTimeout: 50 * time.Millisecond,
		Block:             100 * time.Millisecond,
	}
	q := NewRedisStreamQueue(client, cfg, zap.NewNop())
	if err := q.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}
	// second call must tolerate the existing group
	if err := q.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("EnsureGroup not idempotent: %v", err)
	}
	t.Cleanup(func() { client.Del(context.Background(), cfg.Stream, cfg.DeadLetterStream) })
	return q, cfg
}

func TestRedisStream_PublishReceiveAck(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	q, _ := newTestQueue(t, client, 3)

	id, err := q.Publish(ctx, []byte(`{"orderId":"o1"}`), map[string]string{"orderId": "o1"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgs, err := q.Receive(ctx, 10)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.ID != id || string(m.Body) != `{"orderId":"o1"}` || m.Attributes["orderId"] != "o1" || m.DeliveryCount != 1 {
		t.Errorf("unexpected message: %+v", m)
	}

	if err := q.Ack(ctx, m.ID); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	msgs, err = q.Receive(ctx, 10)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("acked message redelivered: %+v", msgs)
	}
}

func TestRedisStream_RedeliveryCountsUp(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	q, _ := newTestQueue(t, client, 5)

	q.Publish(ctx, []byte(`{}`), nil)
	if msgs, _ := q.Receive(ctx, 10); len(msgs) != 1 {
		t.Fatalf("expected first delivery, got %d", len(msgs))
	}

	time.Sleep(80 * time.Millisecond)
	msgs, err := q.Receive(ctx, 10)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].DeliveryCount != 2 {
		t.Fatalf("expected redelivery with count 2, got %+v", msgs)
	}
}

func TestRedisStream_RedeliveryCountsIgnoreOtherConsumers(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	q, cfg := newTestQueue(t, client, 5)
	otherCfg := cfg
	otherCfg.Consumer = "other-consumer"
	other := NewRedisStreamQueue(client, otherCfg, zap.NewNop())

	q.Publish(ctx, []byte(`{"orderId":"first"}`), nil)
	for i := 0; i < 10; i++ {
		q.Publish(ctx, []byte(`{}`), nil)
	}
	q.Publish(ctx, []byte(`{"orderId":"last"}`), nil)

	if msgs, _ := q.Receive(ctx, 1); len(msgs) != 1 {
		t.Fatalf("expected first delivery, got %d", len(msgs))
	}
	held, _ := other.Receive(ctx, 10)
	if len(held) != 10 {
		t.Fatalf("expected other consumer to hold 10, got %d", len(held))
	}
	if msgs, _ := q.Receive(ctx, 1); len(msgs) != 1 {
		t.Fatalf("expected last delivery, got %d", len(msgs))
	}

	time.Sleep(80 * time.Millisecond)
	heldIDs := make([]string, 0, len(held))
	for _, m := range held {
		heldIDs = append(heldIDs, m.ID)
	}
	// keep the other consumer's entries fresh so only ours are reclaimed
	if err := client.XClaimJustID(ctx, &redis.XClaimArgs{
		Stream: cfg.Stream, Group: cfg.Group, Consumer: otherCfg.Consumer, Messages: heldIDs,
	}).Err(); err != nil {
		t.Fatalf("XClaimJustID failed: %v", err)
	}

	msgs, err := q.Receive(ctx, 10)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 reclaimed messages, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.DeliveryCount != 2 {
			t.Errorf("message %s: expected delivery count 2, got %d", m.ID, m.DeliveryCount)
		}
	}
}

func TestRedisStream_MovesToDeadLetter(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	q, cfg := newTestQueue(t, client, 1)

	q.Publish(ctx, []byte(`{"orderId":"o2"}`), map[string]string{"orderId": "o2"})
	if msgs, _ := q.Receive(ctx, 10); len(msgs) != 1 {
		t.Fatalf("expected first delivery, got %d", len(msgs))
	}

	time.Sleep(80 * time.Millisecond)
	msgs, err := q.Receive(ctx, 10)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected message to leave the main stream, got %+v", msgs)
	}

	if n, _ := client.XLen(ctx, cfg.Stream).Result(); n != 0 {
		t.Errorf("expected main stream empty, got %d", n)
	}

	dlq := NewRedisStreamQueue(client, StreamConfig{
		Stream:            cfg.DeadLetterStream,
		Group:             "dlq-group",
		Consumer:          "dlq-consumer",
		VisibilityTimeout: time.Minute,
		Block:             100 * time.Millisecond,
	}, zap.NewNop())
	if err := dlq.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}

	dead, err := dlq.Receive(ctx, 10)
	if err != nil {
		t.Fatalf("Receive dead letters failed: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dead))
	}
	if dead[0].DeliveryCount != 2 || dead[0].Attributes["orderId"] != "o2" {
		t.Errorf("unexpected dead letter: %+v", dead[0])
	}
}
