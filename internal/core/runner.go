package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"agreegraph/internal/logger"
	"agreegraph/internal/storage"
)

const eventBuffer = 64

// Runner executes an ordered list of stages against one session
type Runner struct {
	store  storage.Store
	stages []Stage
}

// NewRunner creates a runner over store. Stages run in the given order.
func NewRunner(store storage.Store, stages ...Stage) (*Runner, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: runner requires a session store", ErrConfiguration)
	}
	for i, stage := range stages {
		if stage == nil {
			return nil, fmt.Errorf("%w: stage %d is nil", ErrConfiguration, i)
		}
	}
	return &Runner{store: store, stages: stages}, nil
}

// StageNames returns the stage names in execution order
func (r *Runner) StageNames() []string {
	names := make([]string, len(r.stages))
	for i, stage := range r.stages {
		names[i] = stage.Name()
	}
	return names
}

// Execution is a run in progress. Events must be drained or closed by the
// caller; once closed, the run continues and later events are dropped.
type Execution struct {
	events *schema.StreamReader[Event]
	done   chan struct{}
	state  *storage.State
	err    error
}

// Events returns the ordered event stream of the whole run
func (e *Execution) Events() *schema.StreamReader[Event] {
	return e.events
}

// Wait blocks until every stage has finished and returns the final state
func (e *Execution) Wait() (*storage.State, error) {
	<-e.done
	return e.state, e.err
}

// Start loads the session and runs the stages in the background. Blank
// statements are dropped; when none remain nothing runs or is persisted.
func (r *Runner) Start(ctx context.Context, key storage.Key, statements []string) (*Execution, error) {
	session, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	log := logger.Component("runner").With().Str("session_id", key.ID).Logger()

	query := normalizeStatements(statements)
	if len(query) == 0 {
		log.Info().Msg("Empty query, skipping pipeline run")
		state := session.State
		exec := &Execution{
			events: schema.StreamReaderFromArray([]Event{}),
			done:   make(chan struct{}),
			state:  &state,
		}
		close(exec.done)
		return exec, nil
	}

	sr, sw := schema.Pipe[Event](eventBuffer)
	exec := &Execution{events: sr, done: make(chan struct{})}

	go func() {
		defer close(exec.done)
		defer sw.Close()

		state, err := r.execute(ctx, session, query, sw)
		exec.state, exec.err = state, err
	}()

	return exec, nil
}

// Run executes the pipeline and calls onEvent for every event in order
func (r *Runner) Run(ctx context.Context, key storage.Key, statements []string, onEvent func(Event)) (*storage.State, error) {
	exec, err := r.Start(ctx, key, statements)
	if err != nil {
		return nil, err
	}

	events := exec.Events()
	defer events.Close()
	for {
		ev, err := events.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn().Err(err).Msg("Event stream failed")
			break
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}

	return exec.Wait()
}

func (r *Runner) execute(ctx context.Context, session *storage.Session, query []string, sw *schema.StreamWriter[Event]) (*storage.State, error) {
	startTime := time.Now()
	log := logger.Component("runner").With().Str("session_id", session.ID).Logger()
	log.Info().Int("statements", len(query)).Strs("stages", r.StageNames()).Msg("Starting pipeline run")

	session.State.UserQuery = strings.Join(query, "\n")
	session.State.AppendUserQuery(query)
	if err := r.store.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist query: %w", err)
	}

	consumerGone := false
	forward := func(ev Event) {
		if consumerGone {
			return
		}
		if closed := sw.Send(ev, nil); closed {
			consumerGone = true
			log.Debug().Msg("Event consumer went away, continuing without forwarding")
		}
	}

	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline run cancelled before %s: %w", stage.Name(), err)
		}

		stageStart := time.Now()
		events := r.drain(stage, stage.Run(ctx, session), session, forward)

		if err := r.store.Update(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to persist session after %s: %w", stage.Name(), err)
		}

		log.Info().
			Str("agent_name", stage.Name()).
			Int("events", events).
			Int64("duration_ms", time.Since(stageStart).Milliseconds()).
			Msg("Stage completed")
	}

	log.Info().Int64("duration_ms", time.Since(startTime).Milliseconds()).Msg("Pipeline run completed")

	state := session.State.Clone()
	return &state, nil
}

// drain consumes a stage's stream to the end, recording textual events
func (r *Runner) drain(stage Stage, sr *schema.StreamReader[Event], session *storage.Session, forward func(Event)) int {
	if sr == nil {
		return 0
	}
	defer sr.Close()

	count := 0
	for {
		ev, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return count
		}
		if err != nil {
			logger.Agent(stage.Name()).Warn().Err(err).Msg("Stage stream failed")
			return count
		}
		count++
		if ev.Author == "" {
			ev.Author = stage.Name()
		}
		if ev.HasText() {
			session.State.AppendAgentResponse(ev.Author, ev.Text)
		}
		forward(ev)
	}
}

func normalizeStatements(statements []string) []string {
	out := make([]string, 0, len(statements))
	for _, s := range statements {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
