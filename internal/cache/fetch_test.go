package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func TestFetch_ComputesOnceThenHits(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("t", time.Hour, 10)
	calls := 0
	compute := func(context.Context) ([]item, error) {
		calls++
		return []item{{Name: "Paris", Type: "Location"}}, nil
	}

	first, err := Fetch(ctx, store, "k", 0, compute)
	require.NoError(t, err)
	second, err := Fetch(ctx, store, "k", 0, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestFetch_ConvertsJSONBackendValues(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRedisStore("t", time.Hour, client)
	want := []item{{Name: "Eiffel Tower", Type: "Landmark"}}

	_, err := Fetch(ctx, store, "k", 0, func(context.Context) ([]item, error) { return want, nil })
	require.NoError(t, err)

	got, err := Fetch(ctx, store, "k", 0, func(context.Context) ([]item, error) {
		t.Fatal("compute should not run on a hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFetch_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("t", time.Hour, 10)
	boom := errors.New("boom")

	_, err := Fetch(ctx, store, "k", 0, func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len())
}

func TestFetch_CallersOwnTheirValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("t", time.Hour, 10)

	computed, err := Fetch(ctx, store, "k", 0, func(context.Context) ([]item, error) {
		return []item{{Name: "Paris", Type: "Location"}}, nil
	})
	require.NoError(t, err)
	computed[0].Name = "changed by caller"

	hit, err := Fetch(ctx, store, "k", 0, func(context.Context) ([]item, error) {
		t.Fatal("compute should not run on a hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris", hit[0].Name)
	hit[0].Type = "changed by caller"

	again, err := Fetch(ctx, store, "k", 0, func(context.Context) ([]item, error) { return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, []item{{Name: "Paris", Type: "Location"}}, again)
}

func TestFetch_PointerValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("t", time.Hour, 10)
	compute := func(context.Context) (*item, error) { return &item{Name: "Eiffel Tower"}, nil }

	first, err := Fetch(ctx, store, "k", 0, compute)
	require.NoError(t, err)
	second, err := Fetch(ctx, store, "k", 0, compute)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
}
