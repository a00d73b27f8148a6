// Package alert pushes run-failure notifications to an operational side
// channel, with a Pub/Sub implementation for production and an in-memory
// one for tests and local runs.
package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

// PubSubAlerter publishes alerts as JSON messages on a Pub/Sub topic.
type PubSubAlerter struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSubAlerter connects to the project and verifies the topic exists.
// Authentication uses Application Default Credentials.
func NewPubSubAlerter(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*PubSubAlerter, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check topic %q: %w", topicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}

	return &PubSubAlerter{client: client, topic: topic, logger: logger}, nil
}

// Alert publishes the alert and waits for the server acknowledgement so
// callers learn about a dead side channel instead of silently losing it.
func (a *PubSubAlerter) Alert(ctx context.Context, alert ingest.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	result := a.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"source_id": alert.SourceID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}

	a.logger.Debug("alert published",
		zap.String("source_id", alert.SourceID),
		zap.Int64("run_id", alert.RunID),
	)
	return nil
}

// Close flushes pending messages and releases the client.
func (a *PubSubAlerter) Close() error {
	a.topic.Stop()
	if err := a.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
