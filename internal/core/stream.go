package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/schema"

	"agreegraph/internal/logger"
)

const streamBuffer = 16

// Emitter publishes one event text; it reports false once the reader is gone
type Emitter func(text string) bool

// Stream runs body in its own goroutine and exposes what it emits as an
// event stream authored by author. The stream closes after body returns.
// A panic in body becomes a diagnostic event.
func Stream(ctx context.Context, author string, body func(ctx context.Context, emit Emitter)) *schema.StreamReader[Event] {
	sr, sw := schema.Pipe[Event](streamBuffer)

	go func() {
		defer sw.Close()
		defer func() {
			if r := recover(); r != nil {
				logger.Agent(author).Error().Interface("panic", r).Msg("Stage panicked")
				sw.Send(Event{Author: author, Text: fmt.Sprintf("%s failed unexpectedly: %v", author, r)}, nil)
			}
		}()

		body(ctx, func(text string) bool {
			closed := sw.Send(Event{Author: author, Text: text}, nil)
			return !closed
		})
	}()

	return sr
}

// Collect drains a stream into a slice. Stream errors end collection.
func Collect(sr *schema.StreamReader[Event]) []Event {
	defer sr.Close()

	var events []Event
	for {
		ev, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			logger.Warn().Err(err).Msg("Event stream failed")
			return events
		}
		events = append(events, ev)
	}
}
