package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/mobilia/backoffice/internal/services"
)

// PubSubSpecialProductPublisher publishes special product lifecycle events so that storefront caches and
// search indexes can refresh.
type PubSubSpecialProductPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubSpecialProductPublisher constructs a publisher for topic.
func NewPubSubSpecialProductPublisher(topic *pubsub.Topic) (*PubSubSpecialProductPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub special product publisher: topic is required")
	}
	return &PubSubSpecialProductPublisher{topic: topic}, nil
}

// PublishSpecialProductEvent sends event as JSON. Attributes allow subscribers to filter without
// decoding the payload.
func (p *PubSubSpecialProductPublisher) PublishSpecialProductEvent(ctx context.Context, event services.SpecialProductEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub special product publisher: not initialised")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal special product event: %w", err)
	}

	attrs := map[string]string{
		"eventType":    event.Type,
		"combinations": strconv.Itoa(event.Combinations),
	}
	setAttr(attrs, "productId", event.ProductID)
	setAttr(attrs, "status", event.Status)
	setAttr(attrs, "actor", event.Actor)

	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish special product event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
