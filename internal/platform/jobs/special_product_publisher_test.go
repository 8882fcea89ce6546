package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mobilia/backoffice/internal/services"
)

func TestPubSubSpecialProductPublisherPublishesEvent(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "special-products")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	defer topic.Stop()

	publisher, err := NewPubSubSpecialProductPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubSpecialProductPublisher: %v", err)
	}

	event := services.SpecialProductEvent{
		Type:         services.EventSpecialProductCreated,
		ProductID:    "01J0SPECIAL",
		Status:       "visible",
		Combinations: 6,
		Actor:        "staff-1",
		OccurredAt:   time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}
	if _, err := publisher.PublishSpecialProductEvent(ctx, event); err != nil {
		t.Fatalf("PublishSpecialProductEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload services.SpecialProductEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ProductID != event.ProductID || payload.Combinations != 6 || !payload.OccurredAt.Equal(event.OccurredAt) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	attrs := messages[0].Attributes
	if attrs["eventType"] != services.EventSpecialProductCreated || attrs["productId"] != "01J0SPECIAL" || attrs["combinations"] != "6" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestNewPubSubSpecialProductPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubSpecialProductPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
