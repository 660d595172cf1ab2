package graphdb

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"agreegraph/internal/logger"
	"agreegraph/pkg"
)

const (
	upsertNodesQuery = `
		UNWIND $nodes AS node
		MERGE (n:Entity {name: node.name})
		SET n.type = node.type,
			n.description = node.description,
			n.created_at = node.created_at
	`

	upsertRelationshipsQuery = `
		UNWIND $rels AS rel
		MATCH (a:Entity {name: rel.from}), (b:Entity {name: rel.to})
		MERGE (a)-[r:RELATION {type: rel.type}]->(b)
	`
)

// Neo4jConfig holds the connection settings
type Neo4jConfig struct {
	URI      string `envconfig:"NEO4J_URI" default:"bolt://localhost:7687" yaml:"uri"`
	User     string `envconfig:"NEO4J_USER" default:"neo4j" yaml:"user"`
	Password string `envconfig:"NEO4J_PASSWORD" default:"password" yaml:"password"`
	Database string `envconfig:"NEO4J_DATABASE" yaml:"database"`
}

// Neo4jWriter writes graph elements as :Entity nodes joined by :RELATION edges
type Neo4jWriter struct {
	driver   neo4j.DriverWithContext
	database string
	now      func() time.Time
}

// NewNeo4jWriter connects and verifies connectivity
func NewNeo4jWriter(ctx context.Context, config Neo4jConfig) (*Neo4jWriter, error) {
	driver, err := neo4j.NewDriverWithContext(config.URI, neo4j.BasicAuth(config.User, config.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	logger.Info().Str("uri", config.URI).Msg("Connected to Neo4j")
	return &Neo4jWriter{driver: driver, database: config.Database, now: time.Now}, nil
}

func (w *Neo4jWriter) UpsertNodes(ctx context.Context, nodes []pkg.GraphNode) error {
	if len(nodes) == 0 {
		return nil
	}
	if err := w.write(ctx, upsertNodesQuery, map[string]any{"nodes": nodeParams(nodes, w.now())}); err != nil {
		return fmt.Errorf("failed to upsert nodes: %w", err)
	}
	logger.Debug().Int("nodes", len(nodes)).Msg("Upserted graph nodes")
	return nil
}

func (w *Neo4jWriter) UpsertRelationships(ctx context.Context, rels []pkg.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	if err := w.write(ctx, upsertRelationshipsQuery, map[string]any{"rels": relationshipParams(rels)}); err != nil {
		return fmt.Errorf("failed to upsert relationships: %w", err)
	}
	logger.Debug().Int("relationships", len(rels)).Msg("Upserted graph relationships")
	return nil
}

func (w *Neo4jWriter) Close(ctx context.Context) error {
	return w.driver.Close(ctx)
}

func (w *Neo4jWriter) write(ctx context.Context, query string, params map[string]any) error {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: w.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	return err
}

func nodeParams(nodes []pkg.GraphNode, now time.Time) []any {
	createdAt := now.UTC().Format(time.RFC3339)
	params := make([]any, 0, len(nodes))
	for _, n := range nodes {
		params = append(params, map[string]any{
			"name":        n.Name,
			"type":        n.Type,
			"description": n.Summary,
			"created_at":  createdAt,
		})
	}
	return params
}

func relationshipParams(rels []pkg.Relationship) []any {
	params := make([]any, 0, len(rels))
	for _, r := range rels {
		params = append(params, map[string]any{
			"from": r.FromNode,
			"to":   r.ToNode,
			"type": r.Type,
		})
	}
	return params
}
