package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// FeedPublishedMessage announces a freshly exported feed.
type FeedPublishedMessage struct {
	BuildID     string    `json:"buildId"`
	Bucket      string    `json:"bucket"`
	Object      string    `json:"object"`
	URLCount    int       `json:"urlCount"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// PubSubNotifier publishes FeedPublishedMessage events to a topic.
type PubSubNotifier struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("feed notifier: topic is required")
	}
	return &PubSubNotifier{topic: topic, marshal: json.Marshal}, nil
}

// NotifyPublished publishes result and waits for the server-assigned message id.
func (n *PubSubNotifier) NotifyPublished(ctx context.Context, result ExportResult) (string, error) {
	if n == nil || n.topic == nil {
		return "", errors.New("feed notifier: not initialised")
	}
	data, err := n.marshal(FeedPublishedMessage{
		BuildID:     result.BuildID,
		Bucket:      result.Bucket,
		Object:      result.Object,
		URLCount:    result.URLCount,
		GeneratedAt: result.GeneratedAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal feed published message: %w", err)
	}

	attrs := map[string]string{}
	if v := strings.TrimSpace(result.BuildID); v != "" {
		attrs["buildId"] = v
	}
	if v := strings.TrimSpace(result.Object); v != "" {
		attrs["object"] = v
	}

	id, err := n.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish feed published message: %w", err)
	}
	return id, nil
}
