package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"agreegraph/internal/logger"
	"agreegraph/internal/storage"
)

// SubPipeline lets a stage re-run another stage on a private, short-lived
// session. Store must not be the store of the outer pipeline.
type SubPipeline struct {
	Store   storage.Store
	AppName string
}

// SubCall describes one nested run
type SubCall struct {
	Stage Stage
	// Seed writes the inner stage's inputs into the fresh state
	Seed func(state *storage.State)
	// Query is the synthetic user query for the inner run
	Query string
}

// Invoke runs call.Stage on an ephemeral session and returns its final
// state. The ephemeral session is deleted before Invoke returns.
func (sp *SubPipeline) Invoke(ctx context.Context, parent *storage.Session, call SubCall) (*storage.State, error) {
	if sp == nil || sp.Store == nil {
		return nil, fmt.Errorf("%w: no ephemeral session store for nested invocation", ErrConfiguration)
	}
	if call.Stage == nil {
		return nil, fmt.Errorf("%w: nested invocation without a stage", ErrConfiguration)
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: nested invocation without a parent session", ErrConfiguration)
	}

	appName := sp.AppName
	if appName == "" {
		appName = parent.AppName
	}
	key := storage.Key{
		AppName: appName,
		UserID:  parent.UserID,
		ID:      fmt.Sprintf("%s_%s_%s", parent.ID, call.Stage.Name(), uuid.NewString()),
	}

	log := logger.Component("subpipeline").With().
		Str("session_id", key.ID).
		Str("agent_name", call.Stage.Name()).
		Logger()

	initial := storage.NewState(parent.State.UserName)
	if call.Seed != nil {
		call.Seed(&initial)
	}
	if _, err := sp.Store.Create(ctx, key, initial); err != nil {
		return nil, fmt.Errorf("failed to create ephemeral session: %w", err)
	}
	defer func() {
		if err := sp.Store.Delete(context.WithoutCancel(ctx), key); err != nil {
			log.Warn().Err(err).Msg("Failed to delete ephemeral session")
		}
	}()

	runner, err := NewRunner(sp.Store, call.Stage)
	if err != nil {
		return nil, err
	}

	seen := false
	state, err := runner.Run(ctx, key, []string{call.Query}, func(ev Event) {
		if ev.Author == call.Stage.Name() {
			seen = true
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nested %s run failed: %w", call.Stage.Name(), err)
	}
	if !seen {
		return nil, fmt.Errorf("%w: %s", ErrNoStageOutput, call.Stage.Name())
	}

	log.Debug().Msg("Nested invocation completed")
	return state, nil
}

// Harvest runs a nested call and extracts one value from its final state
func Harvest[T any](ctx context.Context, sp *SubPipeline, parent *storage.Session, call SubCall, extract func(state *storage.State) T) (T, error) {
	var zero T
	state, err := sp.Invoke(ctx, parent, call)
	if err != nil {
		return zero, err
	}
	return extract(state), nil
}
