package streams

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/redis/go-redis/v9"
)

func newRegistry(t *testing.T) *SchemaRegistry {
	t.Helper()
	reg := NewSchemaRegistry()
	if err := RegisterBaseSchemas(reg); err != nil {
		t.Fatalf("register base schemas: %v", err)
	}
	return reg
}

func TestEventSchemaValidates(t *testing.T) {
	reg := newRegistry(t)
	ok := true
	ev := core.Event{Type: core.EventAgentFinished, RunID: "run-1", Agent: "analyst", Progress: 0.5, Success: &ok, TokensUsed: 120, Duration: time.Second, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := reg.Validate(EventType, EventVersion, data); err != nil {
		t.Fatalf("expected event to validate: %v", err)
	}
}

func TestEventSchemaRejects(t *testing.T) {
	reg := newRegistry(t)
	cases := map[string]string{
		"unknown type":   `{"type":"agent_exploded","run_id":"r","progress":0,"timestamp":"2026-01-01T00:00:00Z"}`,
		"progress range": `{"type":"run_started","run_id":"r","progress":2,"timestamp":"2026-01-01T00:00:00Z"}`,
		"missing run":    `{"type":"run_started","progress":0,"timestamp":"2026-01-01T00:00:00Z"}`,
		"extra field":    `{"type":"run_started","run_id":"r","progress":0,"timestamp":"2026-01-01T00:00:00Z","x":1}`,
	}
	for name, payload := range cases {
		if err := reg.Validate(EventType, EventVersion, []byte(payload)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := reg.Validate("other", "v1", []byte(`{}`)); err == nil || !strings.Contains(err.Error(), "no schema") {
		t.Fatalf("expected unknown schema error, got %v", err)
	}
}

func TestEnvelopeValidation(t *testing.T) {
	env := Envelope{EventID: "e1", EventType: EventType, RunID: "r1", PayloadVersion: EventVersion, Data: json.RawMessage(`{}`)}
	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := UnmarshalEnvelope(raw)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	if back.OccurredAt.IsZero() || back.RunID != "r1" {
		t.Fatalf("unexpected envelope %+v", back)
	}
	if _, err := UnmarshalEnvelope([]byte(`{"event_id":"e1"}`)); err == nil {
		t.Fatalf("expected error for incomplete envelope")
	}
}

func TestDecodeMessageSkipsForeignEntries(t *testing.T) {
	if _, ok := decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"other": "x"}}); ok {
		t.Fatalf("expected entry without envelope to be skipped")
	}
	data, _ := json.Marshal(core.Event{Type: core.EventRunStarted, RunID: "r1"})
	env := Envelope{EventID: "e1", EventType: EventType, RunID: "r1", PayloadVersion: EventVersion, Data: data}
	raw, _ := env.Marshal()
	msg, ok := decodeMessage(redis.XMessage{ID: "2-0", Values: map[string]interface{}{"envelope": string(raw)}})
	if !ok || msg.Event.Type != core.EventRunStarted || msg.ID != "2-0" {
		t.Fatalf("unexpected decode %+v %v", msg, ok)
	}
	if StreamName("r1") != "research:events:r1" {
		t.Fatalf("unexpected stream name %s", StreamName("r1"))
	}
}
