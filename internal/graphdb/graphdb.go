// Package graphdb persists knowledge graphs to a graph database
package graphdb

import (
	"context"
	"sync"

	"agreegraph/pkg"
)

// Writer upserts graph elements. Nodes are keyed by name and
// relationships by (from, to, type), so repeated writes are idempotent.
type Writer interface {
	UpsertNodes(ctx context.Context, nodes []pkg.GraphNode) error
	UpsertRelationships(ctx context.Context, rels []pkg.Relationship) error
	Close(ctx context.Context) error
}

// NopWriter discards everything; used when no graph database is configured
type NopWriter struct{}

func (NopWriter) UpsertNodes(context.Context, []pkg.GraphNode) error            { return nil }
func (NopWriter) UpsertRelationships(context.Context, []pkg.Relationship) error { return nil }
func (NopWriter) Close(context.Context) error                                   { return nil }

// MemoryWriter keeps the merged graph in memory
type MemoryWriter struct {
	mu    sync.Mutex
	nodes map[string]pkg.GraphNode
	order []string
	rels  []pkg.Relationship
	seen  map[pkg.Relationship]struct{}
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{
		nodes: make(map[string]pkg.GraphNode),
		seen:  make(map[pkg.Relationship]struct{}),
	}
}

func (m *MemoryWriter) UpsertNodes(ctx context.Context, nodes []pkg.GraphNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range nodes {
		if _, ok := m.nodes[n.Name]; !ok {
			m.order = append(m.order, n.Name)
		}
		m.nodes[n.Name] = n
	}
	return nil
}

// UpsertRelationships skips relationships whose endpoints were never written
func (m *MemoryWriter) UpsertRelationships(ctx context.Context, rels []pkg.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rels {
		_, fromOK := m.nodes[r.FromNode]
		_, toOK := m.nodes[r.ToNode]
		if !fromOK || !toOK {
			continue
		}
		if _, dup := m.seen[r]; dup {
			continue
		}
		m.seen[r] = struct{}{}
		m.rels = append(m.rels, r)
	}
	return nil
}

func (m *MemoryWriter) Close(context.Context) error { return nil }

// Graph returns a snapshot in insertion order
func (m *MemoryWriter) Graph() pkg.KnowledgeGraph {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := pkg.EmptyKnowledgeGraph()
	for _, name := range m.order {
		g.Nodes = append(g.Nodes, m.nodes[name])
	}
	g.Relationships = append(g.Relationships, m.rels...)
	return g
}
