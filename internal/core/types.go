package core

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/schema"

	"agreegraph/internal/storage"
)

var (
	// ErrConfiguration means a required dependency handle was not wired
	ErrConfiguration = errors.New("configuration error")
	// ErrNoStageOutput means a nested stage never emitted an event
	ErrNoStageOutput = errors.New("nested stage produced no output")
)

// Stage is a single processing unit of the pipeline. Run reads and writes
// session.State and returns its events as a finite stream. Stages are total:
// failures end up as a fallback value plus a diagnostic event, never as an
// error. The stage must finish mutating the session before the stream ends.
type Stage interface {
	Name() string
	Run(ctx context.Context, session *storage.Session) *schema.StreamReader[Event]
}

// Event is one piece of stage output. An empty Text carries no message.
type Event struct {
	Author string `json:"author"`
	Text   string `json:"text,omitempty"`
}

// HasText reports whether the event carries a message
func (e Event) HasText() bool {
	return e.Text != ""
}
