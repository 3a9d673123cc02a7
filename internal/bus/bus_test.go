package bus

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestPublishSubscribe(t *testing.T) {
	b, err := New(Config{Port: -1}, slog.Default())
	if err != nil {
		t.Fatalf("Failed to start bus: %v", err)
	}
	defer b.Stop()

	received := make(chan map[string]string, 1)
	_, err = b.Subscribe(SubjectIncidentCreated, func(msg *nats.Msg) {
		var payload map[string]string
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			t.Errorf("Failed to unmarshal message: %v", err)
			return
		}
		received <- payload
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(SubjectIncidentCreated, map[string]string{"category": "WEAPON"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case payload := <-received:
		if payload["category"] != "WEAPON" {
			t.Errorf("Expected category WEAPON, got %s", payload["category"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for message")
	}
}

func TestStop_Idempotent(t *testing.T) {
	b, err := New(Config{Port: -1}, slog.Default())
	if err != nil {
		t.Fatalf("Failed to start bus: %v", err)
	}

	b.Stop()
}
