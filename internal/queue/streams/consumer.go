package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message represents a consumed stream entry.
type Message struct {
	ID       string
	Envelope Envelope
}

// Watcher tails session progress streams with XREAD.
type Watcher struct {
	client *redis.Client
	block  time.Duration
	count  int64
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithBlock sets the maximum blocking duration of each read.
func WithBlock(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.block = d
		}
	}
}

// WithCount caps the number of messages returned in a single read.
func WithCount(n int64) WatcherOption {
	return func(w *Watcher) {
		if n > 0 {
			w.count = n
		}
	}
}

func NewWatcher(client *redis.Client, opts ...WatcherOption) *Watcher {
	w := &Watcher{client: client, block: 5 * time.Second, count: 50}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Read returns the events after lastID ("0" for the beginning). It blocks up
// to the configured duration and returns no messages on timeout.
func (w *Watcher) Read(ctx context.Context, sessionID, lastID string) ([]Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if lastID == "" {
		lastID = "0"
	}
	streams, err := w.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{StreamKey(sessionID), lastID},
		Count:   w.count,
		Block:   w.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xread: %w", err)
	}

	var out []Message
	for _, st := range streams {
		for _, msg := range st.Messages {
			if decoded, ok := decodeMessage(msg); ok {
				out = append(out, decoded)
			}
		}
	}
	return out, nil
}

// Tail calls fn for every event of the session, starting at the beginning of
// the stream, until a complete event has been handled, fn fails or ctx ends.
func (w *Watcher) Tail(ctx context.Context, sessionID string, fn func(Message) error) error {
	lastID := "0"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgs, err := w.Read(ctx, sessionID, lastID)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			lastID = m.ID
			recordTail(ctx, m.Envelope.EventType)
			if err := fn(m); err != nil {
				return err
			}
			if m.Envelope.EventType == EventComplete {
				return nil
			}
		}
	}
}

func decodeMessage(msg redis.XMessage) (Message, bool) {
	raw, ok := msg.Values["envelope"]
	if !ok {
		return Message{}, false
	}
	var bytesData []byte
	switch v := raw.(type) {
	case string:
		bytesData = []byte(v)
	case []byte:
		bytesData = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return Message{}, false
		}
		bytesData = data
	}
	env, err := UnmarshalEnvelope(bytesData)
	if err != nil {
		return Message{}, false
	}
	return Message{ID: msg.ID, Envelope: env}, true
}
