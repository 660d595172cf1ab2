package graphdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agreegraph/pkg"
)

func TestMemoryWriter_MergesByName(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWriter()

	require.NoError(t, w.UpsertNodes(ctx, []pkg.GraphNode{
		{Name: "Eiffel Tower", Type: "Landmark"},
		{Name: "Paris", Type: "Location"},
	}))
	require.NoError(t, w.UpsertNodes(ctx, []pkg.GraphNode{
		{Name: "Eiffel Tower", Type: "Landmark", Summary: "updated"},
	}))

	g := w.Graph()
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "Eiffel Tower", g.Nodes[0].Name)
	assert.Equal(t, "updated", g.Nodes[0].Summary)
}

func TestMemoryWriter_RelationshipsNeedEndpoints(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWriter()
	require.NoError(t, w.UpsertNodes(ctx, []pkg.GraphNode{{Name: "A"}, {Name: "B"}}))

	rel := pkg.Relationship{FromNode: "A", ToNode: "B", Type: "knows"}
	require.NoError(t, w.UpsertRelationships(ctx, []pkg.Relationship{
		rel,
		rel,
		{FromNode: "A", ToNode: "C", Type: "knows"},
	}))

	assert.Equal(t, []pkg.Relationship{rel}, w.Graph().Relationships)
}

func TestNodeParams(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	params := nodeParams([]pkg.GraphNode{{Name: "Paris", Type: "Location", Summary: "Capital of France."}}, now)

	assert.Equal(t, []any{map[string]any{
		"name":        "Paris",
		"type":        "Location",
		"description": "Capital of France.",
		"created_at":  "2024-05-01T12:00:00Z",
	}}, params)
}

func TestRelationshipParams(t *testing.T) {
	params := relationshipParams([]pkg.Relationship{{FromNode: "Eiffel Tower", ToNode: "Paris", Type: "located_in"}})
	assert.Equal(t, []any{map[string]any{"from": "Eiffel Tower", "to": "Paris", "type": "located_in"}}, params)
}

func TestNopWriter(t *testing.T) {
	var w Writer = NopWriter{}
	assert.NoError(t, w.UpsertNodes(context.Background(), []pkg.GraphNode{{Name: "x"}}))
	assert.NoError(t, w.Close(context.Background()))
}
