// Package bus provides pub/sub messaging over an embedded NATS server
package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Subjects published by the service
const (
	SubjectIncidentCreated    = "incident.created"
	SubjectDetectionCompleted = "detection.completed"
)

// Bus provides pub/sub messaging backed by an embedded NATS server
type Bus struct {
	server *server.Server
	conn   *nats.Conn
	logger *slog.Logger

	subs   []*nats.Subscription
	subsMu sync.Mutex
}

// Config configures the bus
type Config struct {
	// Host for the NATS server (default: 127.0.0.1)
	Host string
	// Port for the NATS server (default: 12001)
	Port int
}

// New starts an embedded NATS server and connects to it
func New(cfg Config, logger *slog.Logger) (*Bus, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 12001
	}

	opts := &server.Options{
		Host:   cfg.Host,
		Port:   cfg.Port,
		NoSigs: true,
		NoLog:  true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(2 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready after 2 seconds (port %d)", cfg.Port)
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	b := &Bus{
		server: ns,
		conn:   nc,
		logger: logger.With("component", "bus"),
	}

	b.logger.Info("Event bus started", "url", ns.ClientURL())

	return b, nil
}

// Publish publishes a JSON-encoded message to a subject
func (b *Bus) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	return b.conn.Publish(subject, payload)
}

// Subscribe subscribes to a subject
func (b *Bus) Subscribe(subject string, handler func(*nats.Msg)) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, err
	}

	b.subsMu.Lock()
	b.subs = append(b.subs, sub)
	b.subsMu.Unlock()

	return sub, nil
}

// ClientURL returns the NATS client URL
func (b *Bus) ClientURL() string {
	return b.server.ClientURL()
}

// Stop drains subscriptions and shuts the server down
func (b *Bus) Stop() {
	b.subsMu.Lock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	b.subsMu.Unlock()

	if b.conn != nil {
		b.conn.Close()
	}
	if b.server != nil {
		b.server.Shutdown()
	}

	b.logger.Info("Event bus stopped")
}
