// Package notify announces finished extraction runs on Pub/Sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/dvloznov/ads-extractor/internal/logger"
	"google.golang.org/api/option"
)

// EventRunCompleted is the "event" attribute of run completion messages.
const EventRunCompleted = "RunCompleted"

// RunCompleted is the message body published after a run.
type RunCompleted struct {
	RunID         string    `json:"runId"`
	Action        string    `json:"action"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	Accounts      int       `json:"accounts"`
	Skipped       int       `json:"skipped"`
	FailedReports int       `json:"failedReports"`
	Tables        []string  `json:"tables"`
}

// Notifier publishes run events to a single topic.
type Notifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New connects to Pub/Sub in the given project.
func New(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*Notifier, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify.New: creating client: %w", err)
	}
	return NewWithClient(client, topicID), nil
}

// NewWithClient publishes to topicID through an existing client.
func NewWithClient(client *pubsub.Client, topicID string) *Notifier {
	return &Notifier{client: client, topic: client.Topic(topicID)}
}

// RunCompleted publishes ev and waits for the server to acknowledge it. It
// returns the server-assigned message id.
func (n *Notifier) RunCompleted(ctx context.Context, ev RunCompleted) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("RunCompleted: encoding event: %w", err)
	}

	res := n.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event":  EventRunCompleted,
			"run_id": ev.RunID,
			"status": ev.Status,
		},
	})
	id, err := res.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("RunCompleted: publishing: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("run_id", ev.RunID).
		Str("message_id", id).
		Str("topic", n.topic.ID()).
		Msg("Published run completion")
	return id, nil
}

// Close flushes pending messages and closes the client.
func (n *Notifier) Close() error {
	n.topic.Stop()
	return n.client.Close()
}
