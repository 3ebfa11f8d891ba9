// Package pubsub publishes analysis events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// Attributer is implemented by payloads that carry Pub/Sub message attributes.
type Attributer interface {
	Attributes() map[string]string
}

type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) result
	Stop()
}

type result interface {
	Get(ctx context.Context) (string, error)
}

type clientPublisher struct {
	p *pubsub.Publisher
}

func (c clientPublisher) Publish(ctx context.Context, msg *pubsub.Message) result {
	return c.p.Publish(ctx, msg)
}

func (c clientPublisher) Stop() { c.p.Stop() }

// Publisher publishes JSON payloads, keeping one topic publisher per topic.
type Publisher struct {
	open func(topic string) topicPublisher

	mu     sync.Mutex
	topics map[string]topicPublisher
}

// New creates a Publisher backed by client.
func New(client *pubsub.Client) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	return newPublisher(func(topic string) topicPublisher {
		return clientPublisher{p: client.Publisher(topic)}
	}), nil
}

func newPublisher(open func(string) topicPublisher) *Publisher {
	return &Publisher{open: open, topics: make(map[string]topicPublisher)}
}

// Publish marshals the payload to JSON and waits for the server-assigned id.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{Data: data}
	if a, ok := payload.(Attributer); ok {
		msg.Attributes = a.Attributes()
	}

	id, err := p.topic(topic).Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	return id, nil
}

func (p *Publisher) topic(name string) topicPublisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.open(name)
		p.topics[name] = t
	}
	return t
}

// Stop flushes and stops every topic publisher.
func (p *Publisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, t := range p.topics {
		t.Stop()
		delete(p.topics, name)
	}
}
