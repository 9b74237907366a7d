package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const streamPrefix = "research:events:"

// StreamName is the Redis stream holding events of runID.
func StreamName(runID string) string { return streamPrefix + runID }

// Publisher appends run events to per-run Redis streams.
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
	return func(p *Publisher) { p.maxLen = maxLen }
}

// WithRetention expires a stream ttl after its terminal event.
func WithRetention(ttl time.Duration) PublisherOption {
	return func(p *Publisher) { p.ttl = ttl }
}

// NewPublisher creates a Publisher. A nil registry skips payload validation.
func NewPublisher(client *redis.Client, registry *SchemaRegistry, opts ...PublisherOption) *Publisher {
	p := &Publisher{client: client, registry: registry, ttl: 24 * time.Hour}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish validates ev and appends it to the run's stream, returning the entry id.
func (p *Publisher) Publish(ctx context.Context, ev core.Event) (string, error) {
	if ev.RunID == "" {
		return "", fmt.Errorf("event has no run id")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	if p.registry != nil {
		if err := p.registry.Validate(EventType, EventVersion, data); err != nil {
			recordRejected(ctx, ev.Type)
			return "", err
		}
	}
	env := Envelope{
		EventID:        uuid.NewString(),
		EventType:      EventType,
		RunID:          ev.RunID,
		OccurredAt:     ev.Timestamp,
		PayloadVersion: EventVersion,
		Data:           data,
	}
	raw, err := env.Marshal()
	if err != nil {
		return "", err
	}

	stream := StreamName(ev.RunID)
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"envelope": raw},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	recordPublished(ctx, ev.Type)
	if ev.Terminal() && p.ttl > 0 {
		if err := p.client.Expire(ctx, stream, p.ttl).Err(); err != nil {
			return id, fmt.Errorf("expire %s: %w", stream, err)
		}
	}
	return id, nil
}
