package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every progress stream.
const KeyPrefix = "deepsearch:progress:"

// StreamKey returns the Redis stream holding a session's events.
func StreamKey(sessionID string) string {
	return KeyPrefix + sessionID
}

// Publisher appends session events to per-session Redis streams.
type Publisher struct {
	client   *redis.Client
	registry *SchemaRegistry
	maxLen   int64
	ttl      time.Duration
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithMaxLenApprox trims each stream to roughly maxLen entries.
func WithMaxLenApprox(maxLen int64) PublisherOption {
	return func(p *Publisher) {
		if maxLen > 0 {
			p.maxLen = maxLen
		}
	}
}

// WithTTL expires a stream ttl after its last event.
func WithTTL(ttl time.Duration) PublisherOption {
	return func(p *Publisher) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// NewPublisher creates a Publisher. A nil registry disables payload validation.
func NewPublisher(client *redis.Client, registry *SchemaRegistry, opts ...PublisherOption) *Publisher {
	p := &Publisher{client: client, registry: registry}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish wraps payload in an envelope and appends it to the session stream.
func (p *Publisher) Publish(ctx context.Context, sessionID, eventType string, payload any) error {
	_, err := p.publish(ctx, sessionID, eventType, payload)
	recordPublish(ctx, eventType, err)
	return err
}

func (p *Publisher) publish(ctx context.Context, sessionID, eventType string, payload any) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		SessionID:      sessionID,
		OccurredAt:     time.Now().UTC(),
		PayloadVersion: PayloadVersion,
		Data:           data,
	}
	if p.registry != nil {
		if err := p.registry.Validate(env.EventType, env.PayloadVersion, env.Data); err != nil {
			return "", err
		}
	}
	raw, err := env.Marshal()
	if err != nil {
		return "", err
	}

	key := StreamKey(sessionID)
	args := &redis.XAddArgs{
		Stream: key,
		Values: map[string]interface{}{"envelope": raw},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	pipe := p.client.TxPipeline()
	add := pipe.XAdd(ctx, args)
	if p.ttl > 0 {
		pipe.Expire(ctx, key, p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return add.Val(), nil
}
