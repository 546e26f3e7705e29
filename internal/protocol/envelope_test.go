package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewEnvelopeMarshalsPayload(t *testing.T) {
	env, err := NewEnvelope(TypeStartRun, "thread-1", StartRunPayload{
		ItemIDs:    []string{"item-a"},
		Transcribe: true,
		Model:      "small",
	}, "req-1")
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if env.Type != TypeStartRun || env.ThreadID != "thread-1" || env.RequestID != "req-1" {
		t.Fatalf("unexpected envelope header: %+v", env)
	}
	if _, err := time.Parse(time.RFC3339Nano, env.TS); err != nil {
		t.Fatalf("timestamp not RFC3339: %q", env.TS)
	}

	var got StartRunPayload
	if err := env.DecodePayload(&got); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if !got.Transcribe || got.Model != "small" || len(got.ItemIDs) != 1 {
		t.Fatalf("payload round trip mismatch: %+v", got)
	}
}

func TestNewEnvelopeNilPayload(t *testing.T) {
	env, err := NewEnvelope(TypeGetThreadSnapshot, "thread-1", nil, "")
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if len(env.Payload) != 0 {
		t.Fatalf("expected empty payload, got %s", env.Payload)
	}
	if err := env.DecodePayload(&struct{}{}); err == nil {
		t.Fatal("expected error decoding empty payload")
	}
}

func TestEnvelopeWireShape(t *testing.T) {
	raw := []byte(`{"type":"TOKENS_UPDATED","threadId":"t1","ts":"2026-01-02T03:04:05Z","payload":{"balance":420},"requestId":"r9"}`)
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != TypeTokensUpdated || env.ThreadID != "t1" || env.RequestID != "r9" {
		t.Fatalf("unexpected fields: %+v", env)
	}
	var p TokensUpdatedPayload
	if err := env.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if p.Balance != 420 {
		t.Fatalf("balance = %d, want 420", p.Balance)
	}
}
