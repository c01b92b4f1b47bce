package port

import "context"

type Message struct {
	ID            string
	Body          []byte
	Attributes    map[string]string
	DeliveryCount int
}

// BatchResult lists the messages to redeliver. Unlisted messages are acknowledged.
type BatchResult struct {
	FailedIDs []string
}

type MessagePublisher interface {
	Publish(ctx context.Context, body []byte, attributes map[string]string) (string, error)
}

type MessageReceiver interface {
	Receive(ctx context.Context, max int) ([]Message, error)
	Ack(ctx context.Context, ids ...string) error
}

type BatchHandler func(ctx context.Context, msgs []Message) BatchResult
