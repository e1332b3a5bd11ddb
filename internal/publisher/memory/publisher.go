// Package memory contains an in-memory publisher used for dry runs and tests.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
)

// PublishedMessage is one accepted publish.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
	// Data is the JSON body a broker would have received.
	Data []byte
}

// Publisher accepts publishes into an ordered log instead of a broker.
type Publisher struct {
	mu   sync.Mutex
	log  []PublishedMessage
	fail error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes every later publish fail with err until it is called with nil.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

// Publish encodes payload and appends it to the log. IDs count up from memory-1.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", errors.New("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode message for %s: %w", topic, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, p.fail)
	}
	msg := PublishedMessage{ID: "memory-" + strconv.Itoa(len(p.log)+1), Topic: topic, Payload: payload, Data: data}
	p.log = append(p.log, msg)
	return msg.ID, nil
}

// Messages returns the log in publish order.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.log)
}

// OnTopic returns the logged messages sent to topic.
func (p *Publisher) OnTopic(topic string) []PublishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []PublishedMessage
	for _, m := range p.log {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
