package streams_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ahalansari/deep-search/internal/queue/streams"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPublishAndTail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	defer func() { _ = client.Close() }()

	reg := streams.NewSchemaRegistry()
	if err := streams.RegisterBaseSchemas(reg); err != nil {
		t.Fatalf("register schemas: %v", err)
	}
	pub := streams.NewPublisher(client, reg, streams.WithMaxLenApprox(100), streams.WithTTL(time.Minute))

	sessionID := "sess-integration"
	for _, msg := range []string{"Round 1: Initial search", "Found 8 results"} {
		if err := pub.Publish(ctx, sessionID, streams.EventProgress, streams.ProgressPayload{Message: msg}); err != nil {
			t.Fatalf("publish progress: %v", err)
		}
	}
	if err := pub.Publish(ctx, sessionID, streams.EventProgress, streams.ProgressPayload{}); err == nil {
		t.Fatalf("expected schema validation to reject empty message")
	}
	complete := map[string]any{
		"id": sessionID, "query": "q", "results": []any{}, "comprehensiveAnswer": "done",
		"searchSummary": map[string]any{"totalResults": 0, "sourceBreakdown": map[string]any{}, "searchRounds": 1},
	}
	if err := pub.Publish(ctx, sessionID, streams.EventComplete, complete); err != nil {
		t.Fatalf("publish complete: %v", err)
	}

	ttl, err := client.TTL(ctx, streams.StreamKey(sessionID)).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("expected ttl on stream, got %v (%v)", ttl, err)
	}

	tailCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var seen []string
	err = streams.NewWatcher(client, streams.WithBlock(time.Second)).Tail(tailCtx, sessionID, func(m streams.Message) error {
		seen = append(seen, m.Envelope.EventType+":"+m.Envelope.Message())
		return nil
	})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	want := []string{"progress:Round 1: Initial search", "progress:Found 8 results", "complete:"}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Fatalf("seen %v want %v", seen, want)
	}
}
