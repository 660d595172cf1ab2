package nodes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"agreegraph/internal/core"
	"agreegraph/internal/llm"
	"agreegraph/internal/storage"
	"agreegraph/pkg"
)

var errUnavailable = errors.New("service unavailable")

// scriptedCompleter answers by matching a marker in the prompt
type scriptedCompleter struct {
	mu      sync.Mutex
	replies map[string]func(prompt string) (string, error)
	calls   atomic.Int32
	prompts []string
}

func newScriptedCompleter() *scriptedCompleter {
	return &scriptedCompleter{replies: make(map[string]func(string) (string, error))}
}

func (s *scriptedCompleter) on(marker string, reply func(prompt string) (string, error)) *scriptedCompleter {
	s.replies[marker] = reply
	return s
}

func (s *scriptedCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.prompts = append(s.prompts, req.Prompt)
	s.mu.Unlock()

	for marker, reply := range s.replies {
		if strings.Contains(req.Prompt, marker) {
			return reply(req.Prompt)
		}
	}
	return "", errUnavailable
}

func fixed(reply string) func(string) (string, error) {
	return func(string) (string, error) { return reply, nil }
}

func failing(err error) func(string) (string, error) {
	return func(string) (string, error) { return "", err }
}

// countingFetcher serves canned references and headlines
type countingFetcher struct {
	references map[string]string
	news       map[string][]string
	failRef    bool
	failNews   bool

	refCalls  atomic.Int32
	newsCalls atomic.Int32
}

func (c *countingFetcher) FetchReference(ctx context.Context, entity string) (*pkg.ReferenceSummary, error) {
	c.refCalls.Add(1)
	if c.failRef {
		return nil, errUnavailable
	}
	text, ok := c.references[entity]
	if !ok {
		return nil, nil
	}
	return &pkg.ReferenceSummary{Text: text, URL: "https://en.wikipedia.org/wiki/" + entity, Source: "Wikipedia"}, nil
}

func (c *countingFetcher) FetchNews(ctx context.Context, query string, max int) ([]pkg.NewsItem, error) {
	c.newsCalls.Add(1)
	if c.failNews {
		return nil, errUnavailable
	}
	items := []pkg.NewsItem{}
	for _, title := range c.news[query] {
		if len(items) == max {
			break
		}
		items = append(items, pkg.NewsItem{Title: title, Source: "Google News"})
	}
	return items, nil
}

func (c *countingFetcher) calls() int32 {
	return c.refCalls.Load() + c.newsCalls.Load()
}

// failingWriter rejects every write
type failingWriter struct{}

func (failingWriter) UpsertNodes(context.Context, []pkg.GraphNode) error {
	return errUnavailable
}

func (failingWriter) UpsertRelationships(context.Context, []pkg.Relationship) error {
	return errUnavailable
}

func (failingWriter) Close(context.Context) error { return nil }

func testSession(state storage.State) *storage.Session {
	return &storage.Session{Key: storage.Key{AppName: "test", UserID: "u", ID: "s"}, State: state}
}

// runStage runs a stage directly against a session and collects its events
func runStage(t *testing.T, stage core.Stage, session *storage.Session) []core.Event {
	t.Helper()
	events := core.Collect(stage.Run(context.Background(), session))
	for _, ev := range events {
		require.Equal(t, stage.Name(), ev.Author)
	}
	return events
}
