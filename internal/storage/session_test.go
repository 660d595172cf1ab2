package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agreegraph/pkg"
)

var testKey = Key{AppName: "AgreeGraph", UserID: "u1", ID: "s1"}

// storeContract runs the behaviour every Store implementation shares
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("CreateThenGet", func(t *testing.T) {
		store := newStore(t)
		created, err := store.Create(ctx, testKey, NewState("Ada"))
		require.NoError(t, err)
		assert.Equal(t, testKey, created.Key)

		got, err := store.Get(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, "Ada", got.State.UserName)
		assert.Empty(t, got.State.Entities)
	})

	t.Run("DuplicateCreate", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Create(ctx, testKey, NewState(""))
		require.NoError(t, err)
		_, err = store.Create(ctx, testKey, NewState(""))
		assert.ErrorIs(t, err, ErrDuplicateSession)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, testKey)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		store := newStore(t)
		err := store.Update(ctx, &Session{Key: testKey, State: NewState("")})
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("UpdateReplacesState", func(t *testing.T) {
		store := newStore(t)
		session, err := store.Create(ctx, testKey, NewState(""))
		require.NoError(t, err)

		session.State.UserQuery = "Where is the Eiffel Tower?"
		session.State.Entities = []pkg.Entity{{Name: "Eiffel Tower", Type: "Landmark"}}
		session.State.AppendUserQuery([]string{"Where is the Eiffel Tower?"})
		require.NoError(t, store.Update(ctx, session))

		got, err := store.Get(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, session.State, got.State)
	})

	t.Run("ResetRestoresTemplate", func(t *testing.T) {
		store := newStore(t)
		session, err := store.Create(ctx, testKey, NewState("Ada"))
		require.NoError(t, err)
		session.State.FinalSummary = "done"
		require.NoError(t, store.Update(ctx, session))

		require.NoError(t, store.Reset(ctx, testKey, NewState("Ada")))
		got, err := store.Get(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, NewState("Ada"), got.State)
	})

	t.Run("ResetCreatesMissing", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Reset(ctx, testKey, NewState("Ada")))
		_, err := store.Get(ctx, testKey)
		assert.NoError(t, err)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Create(ctx, testKey, NewState(""))
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, testKey))
		_, err = store.Get(ctx, testKey)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("StoresAreIsolated", func(t *testing.T) {
		a, b := newStore(t), newStore(t)
		_, err := a.Create(ctx, testKey, NewState(""))
		require.NoError(t, err)
		_, err = b.Get(ctx, testKey)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("ConcurrentCreateHasOneWinner", func(t *testing.T) {
		store := newStore(t)
		const workers = 16
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Create(ctx, testKey, NewState(""))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		wins := 0
		for err := range errs {
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, ErrDuplicateSession)
			}
		}
		assert.Equal(t, 1, wins)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(*testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_ReturnsPrivateCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	session, err := store.Create(ctx, testKey, NewState(""))
	require.NoError(t, err)

	session.State.Entities = append(session.State.Entities, pkg.Entity{Name: "Paris"})
	got, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Empty(t, got.State.Entities, "unpersisted changes must not leak")

	got.State.UserQuery = "mutated"
	again, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Empty(t, again.State.UserQuery)
}

func TestMemoryStore_ConcurrentUpdatesAreSerialised(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Create(ctx, testKey, NewState(""))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := store.Get(ctx, testKey)
			if !assert.NoError(t, err) {
				return
			}
			s.State.UserQuery = fmt.Sprintf("q%d", i)
			s.State.Entities = []pkg.Entity{{Name: s.State.UserQuery}}
			assert.NoError(t, store.Update(ctx, s))
		}(i)
	}
	wg.Wait()

	// whichever write landed last, its fields are consistent with each other
	got, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, got.State.Entities, 1)
	assert.Equal(t, got.State.UserQuery, got.State.Entities[0].Name)
}

func TestState_CloneIsDeep(t *testing.T) {
	state := NewState("Ada")
	state.FetchedContext = []pkg.FetchedContext{{
		Entity:           "Paris",
		ReferenceSummary: &pkg.ReferenceSummary{Text: "Capital of France."},
		NewsItems:        []pkg.NewsItem{{Title: "headline"}},
	}}
	state.JudgeResult = &pkg.JudgeResult{AgreementStatus: pkg.AgreementAgree, SearchSuggestions: []string{"a"}}
	state.AppendUserQuery([]string{"q"})

	clone := state.Clone()
	require.Equal(t, state, clone)

	clone.FetchedContext[0].ReferenceSummary.Text = "changed"
	clone.FetchedContext[0].NewsItems[0].Title = "changed"
	clone.JudgeResult.SearchSuggestions[0] = "changed"
	clone.InteractionHistory[0].Statements[0] = "changed"

	assert.Equal(t, "Capital of France.", state.FetchedContext[0].ReferenceSummary.Text)
	assert.Equal(t, "headline", state.FetchedContext[0].NewsItems[0].Title)
	assert.Equal(t, "a", state.JudgeResult.SearchSuggestions[0])
	assert.Equal(t, "q", state.InteractionHistory[0].Statements[0])
}

func TestState_ResponsesBy(t *testing.T) {
	state := NewState("")
	state.AppendUserQuery([]string{"q"})
	state.AppendAgentResponse("EntityAgent", "one")
	state.AppendAgentResponse("FetchAgent", "two")
	state.AppendAgentResponse("EntityAgent", "three")

	assert.Equal(t, []string{"one", "three"}, state.ResponsesBy("EntityAgent"))
	assert.Nil(t, state.ResponsesBy("JudgeAgent"))
}
