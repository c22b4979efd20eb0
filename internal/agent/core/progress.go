package core

import (
	"context"
	"log"
	"sync"
)

// ProgressSink receives human-readable progress messages. Emit must not block
// the caller for long and must not fail the session.
type ProgressSink interface {
	Emit(msg string)
}

// ProgressFunc adapts a plain callback.
type ProgressFunc func(msg string)

func (f ProgressFunc) Emit(msg string) {
	if f != nil {
		f(msg)
	}
}

// NopProgress discards every message.
type NopProgress struct{}

func (NopProgress) Emit(string) {}

// ChannelProgress delivers messages on a bounded channel. Messages are
// dropped when the buffer is full or the sink has been closed.
type ChannelProgress struct {
	mu      sync.Mutex
	ch      chan string
	closed  bool
	dropped func()
}

// NewChannelProgress returns a sink buffering up to size messages. onDrop,
// when set, is called for each dropped message.
func NewChannelProgress(size int, onDrop func()) *ChannelProgress {
	if size <= 0 {
		size = 16
	}
	return &ChannelProgress{ch: make(chan string, size), dropped: onDrop}
}

// C is the receive side.
func (p *ChannelProgress) C() <-chan string { return p.ch }

func (p *ChannelProgress) Emit(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.drop()
		return
	}
	select {
	case p.ch <- msg:
	default:
		p.drop()
	}
}

// Close stops delivery and closes the channel. It is safe to call twice.
func (p *ChannelProgress) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
}

func (p *ChannelProgress) drop() {
	if p.dropped != nil {
		p.dropped()
	}
}

// MultiProgress fans every message out to all sinks. A panicking sink is
// logged and skipped.
type MultiProgress struct {
	sinks  []ProgressSink
	logger *log.Logger
}

func NewMultiProgress(logger *log.Logger, sinks ...ProgressSink) *MultiProgress {
	m := &MultiProgress{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiProgress) Emit(msg string) {
	for _, s := range m.sinks {
		m.emit(s, msg)
	}
}

func (m *MultiProgress) emit(s ProgressSink, msg string) {
	defer func() {
		if r := recover(); r != nil && m.logger != nil {
			m.logger.Printf("progress sink panicked: %v", r)
		}
	}()
	s.Emit(msg)
}

// StreamProgress forwards messages to a ProgressStream from a background
// goroutine. Messages that do not fit the buffer are dropped.
type StreamProgress struct {
	stream    ProgressStream
	sessionID string
	queue     *ChannelProgress
	done      chan struct{}
	logger    *log.Logger
}

// NewStreamProgress starts the forwarding goroutine; call Close to flush and stop it.
func NewStreamProgress(ctx context.Context, stream ProgressStream, sessionID string, size int, onDrop func(), logger *log.Logger) *StreamProgress {
	p := &StreamProgress{
		stream:    stream,
		sessionID: sessionID,
		queue:     NewChannelProgress(size, onDrop),
		done:      make(chan struct{}),
		logger:    logger,
	}
	go p.run(ctx)
	return p
}

func (p *StreamProgress) Emit(msg string) { p.queue.Emit(msg) }

func (p *StreamProgress) run(ctx context.Context) {
	defer close(p.done)
	for msg := range p.queue.C() {
		payload := map[string]string{"message": msg}
		if err := p.stream.Publish(ctx, p.sessionID, EventProgress, payload); err != nil && p.logger != nil {
			p.logger.Printf("publish progress for %s: %v", p.sessionID, err)
		}
	}
}

// Close stops accepting messages and waits for the queued ones to be published.
func (p *StreamProgress) Close() {
	p.queue.Close()
	<-p.done
}

// Event types published on a ProgressStream.
const (
	EventProgress = "progress"
	EventComplete = "complete"
)
