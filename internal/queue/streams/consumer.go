package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/redis/go-redis/v9"
)

// Message is one decoded stream entry.
type Message struct {
	ID       string
	Envelope Envelope
	Event    core.Event
}

// Consumer reads run streams without consumer groups; every reader sees every event.
type Consumer struct {
	client *redis.Client
	block  time.Duration
	count  int64
}

// NewConsumer builds a Consumer that blocks up to block per read.
func NewConsumer(client *redis.Client, block time.Duration) *Consumer {
	if block <= 0 {
		block = 5 * time.Second
	}
	return &Consumer{client: client, block: block, count: 100}
}

// Replay returns every stored event of runID in order.
func (c *Consumer) Replay(ctx context.Context, runID string) ([]Message, error) {
	msgs, err := c.client.XRange(ctx, StreamName(runID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange: %w", err)
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if decoded, ok := decodeMessage(m); ok {
			out = append(out, decoded)
		}
	}
	return out, nil
}

// Tail calls fn for every event of runID after fromID ("0" for the start)
// until a terminal event is delivered, fn fails or ctx ends.
func (c *Consumer) Tail(ctx context.Context, runID, fromID string, fn func(Message) error) error {
	if fromID == "" {
		fromID = "0"
	}
	stream := StreamName(runID)
	for {
		res, err := c.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, fromID},
			Count:   c.count,
			Block:   c.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("xread: %w", err)
		}
		for _, st := range res {
			for _, m := range st.Messages {
				fromID = m.ID
				decoded, ok := decodeMessage(m)
				if !ok {
					continue
				}
				if err := fn(decoded); err != nil {
					return err
				}
				if decoded.Event.Terminal() {
					return nil
				}
			}
		}
	}
}

func decodeMessage(msg redis.XMessage) (Message, bool) {
	var raw []byte
	switch v := msg.Values["envelope"].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return Message{}, false
	}
	env, err := UnmarshalEnvelope(raw)
	if err != nil || env.EventType != EventType {
		return Message{}, false
	}
	var ev core.Event
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return Message{}, false
	}
	return Message{ID: msg.ID, Envelope: env, Event: ev}, true
}
