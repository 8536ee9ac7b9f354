package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/uniformfit/measure/internal/services"
)

// PubSubExportPublisher publishes measurement-sheet export jobs to a Pub/Sub topic.
type PubSubExportPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubExportPublisher constructs a Pub/Sub backed export job publisher.
func NewPubSubExportPublisher(topic *pubsub.Topic) (*PubSubExportPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub export publisher: topic is required")
	}
	return &PubSubExportPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishExportJob enqueues a measurement-sheet export message on the configured topic.
func (p *PubSubExportPublisher) PublishExportJob(ctx context.Context, message services.MeasurementExportMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub export publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal export job: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "orderId", message.OrderID)
	setAttr(attrs, "confirmationId", message.ConfirmationID)
	setAttr(attrs, "studentId", message.StudentID)
	setAttr(attrs, "school", message.School)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish export job: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
