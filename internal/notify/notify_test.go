package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestRunCompleted(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	if err != nil {
		t.Fatalf("pubsub.NewClient() error = %v", err)
	}
	if _, err := client.CreateTopic(ctx, "runs"); err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}

	n := NewWithClient(client, "runs")
	defer n.Close()

	ev := RunCompleted{
		RunID:      "run-1",
		Action:     "run",
		Status:     "SUCCESS",
		StartedAt:  time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 3, 15, 8, 5, 0, 0, time.UTC),
		Accounts:   3,
		Skipped:    1,
		Tables:     []string{"customer", "campaign", "report-groups"},
	}
	id, err := n.RunCompleted(ctx, ev)
	if err != nil {
		t.Fatalf("RunCompleted() error = %v", err)
	}

	msgs := srv.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].ID != id {
		t.Errorf("message id = %q, want %q", msgs[0].ID, id)
	}
	if diff := cmp.Diff(map[string]string{"event": EventRunCompleted, "run_id": "run-1", "status": "SUCCESS"}, msgs[0].Attributes); diff != "" {
		t.Errorf("attributes mismatch (-want +got):\n%s", diff)
	}

	var got RunCompleted
	if err := json.Unmarshal(msgs[0].Data, &got); err != nil {
		t.Fatalf("decoding message: %v", err)
	}
	if diff := cmp.Diff(ev, got); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}
