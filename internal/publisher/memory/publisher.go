// Package memory keeps published run reports in process, encoded the same
// way the Pub/Sub publisher encodes them.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
)

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
	// Data is the JSON body a subscriber would receive.
	Data []byte
}

// Publisher records publishes for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes payload and records it under a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", errors.New("memory publish: topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("memory publish: encode payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload, Data: data})
	return id, nil
}

// Messages returns a copy of every recorded publish.
func (p *Publisher) Messages() []PublishedMessage {
	return p.ByTopic("")
}

// ByTopic returns the publishes sent to topic, or all of them for "".
func (p *Publisher) ByTopic(topic string) []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, 0, len(p.messages))
	for _, m := range p.messages {
		if topic != "" && m.Topic != topic {
			continue
		}
		m.Data = append([]byte(nil), m.Data...)
		out = append(out, m)
	}
	return out
}
