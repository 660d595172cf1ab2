package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"

	"agreegraph/internal/cache"
	"agreegraph/internal/core"
	"agreegraph/internal/graphdb"
	"agreegraph/internal/llm"
	"agreegraph/internal/logger"
	"agreegraph/internal/storage"
	"agreegraph/pkg"
)

const relationshipPrompt = `You are a Knowledge Graph generator.

Given these entities with descriptions:
%s

Suggest relationships between entities based on their descriptions and types.
Return ONLY a JSON array with objects:
[{"from_node": "...", "to_node": "...", "type": "..."}]
Only include relationships between existing nodes. Return [] if none.`

// typeRelations is the fallback used when the model proposes nothing
var typeRelations = map[[2]string]string{
	{"organization", "person"}:     "employs",
	{"organization", "technology"}: "develops",
	{"person", "technology"}:       "works_with",
	{"location", "organization"}:   "hosts",
	{"location", "technology"}:     "located_in",
}

// KnowledgeDBAgent derives a knowledge graph from fetched_context. It
// re-runs entity extraction on the fetched text through a nested pipeline.
type KnowledgeDBAgent struct {
	completer llm.Completer
	cache     cache.Store
	settings  ModelSettings
	writer    graphdb.Writer
	sub       *core.SubPipeline
	extractor core.Stage
}

// NewKnowledgeDBAgent creates the stage. extractor is run on an ephemeral
// session of sub; writer may be nil when no graph database is configured.
func NewKnowledgeDBAgent(completer llm.Completer, store cache.Store, settings ModelSettings, writer graphdb.Writer, sub *core.SubPipeline, extractor core.Stage) *KnowledgeDBAgent {
	if writer == nil {
		writer = graphdb.NopWriter{}
	}
	return &KnowledgeDBAgent{
		completer: completer,
		cache:     storeOrNop(store, "knowledge_graph"),
		settings:  settings,
		writer:    writer,
		sub:       sub,
		extractor: extractor,
	}
}

func (k *KnowledgeDBAgent) Name() string { return KnowledgeDBAgentName }

func (k *KnowledgeDBAgent) Run(ctx context.Context, session *storage.Session) *schema.StreamReader[core.Event] {
	return core.Stream(ctx, k.Name(), func(ctx context.Context, emit core.Emitter) {
		log := logger.Agent(k.Name()).With().Str("session_id", session.ID).Logger()
		start := time.Now()

		fetched := session.State.FetchedContext
		if len(fetched) == 0 {
			session.State.KnowledgeGraph = pkg.EmptyKnowledgeGraph()
			emit("⚠️ No fetched context available.")
			return
		}

		combined := combineContext(fetched)
		entities, err := core.Harvest(ctx, k.sub, session, core.SubCall{
			Stage: k.extractor,
			Seed:  func(state *storage.State) { state.UserQuery = combined },
			Query: combined,
		}, func(state *storage.State) []pkg.Entity { return state.Entities })
		if err != nil {
			log.Error().Err(err).Msg("Nested entity extraction failed")
			session.State.KnowledgeGraph = pkg.EmptyKnowledgeGraph()
			emit(fmt.Sprintf("❌ Failed to build knowledge graph: %v", err))
			return
		}
		if len(entities) == 0 {
			session.State.KnowledgeGraph = pkg.EmptyKnowledgeGraph()
			emit("⚠️ No entities extracted from the fetched context.")
			return
		}

		nodes := buildNodes(entities, fetched)

		proposed, err := k.proposeRelationships(ctx, nodes)
		if err != nil {
			log.Warn().Err(err).Msg("Relationship proposal failed, using type heuristic")
		}
		relationships := pkg.FilterRelationships(nodes, proposed)
		if len(relationships) == 0 {
			relationships = heuristicRelationships(nodes)
		}

		graph := pkg.KnowledgeGraph{Nodes: nodes, Relationships: relationships}
		writeErr := k.persist(ctx, graph)
		if writeErr != nil {
			log.Error().Err(writeErr).Msg("Graph database write failed")
		}
		session.State.KnowledgeGraph = graph

		log.Info().
			Int("nodes", len(nodes)).
			Int("relationships", len(relationships)).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("Knowledge graph built")

		text := fmt.Sprintf("✅ Knowledge graph built successfully with %d nodes and %d relationships.", len(nodes), len(relationships))
		if writeErr != nil {
			text += fmt.Sprintf("\n⚠️ Graph database write failed: %v", writeErr)
		}
		emit(text)
	})
}

func (k *KnowledgeDBAgent) proposeRelationships(ctx context.Context, nodes []pkg.GraphNode) ([]pkg.Relationship, error) {
	if k.completer == nil {
		return nil, fmt.Errorf("%w: relationship proposal has no language model", core.ErrConfiguration)
	}

	described, err := sonic.ConfigStd.MarshalIndent(nodes, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode nodes: %w", err)
	}

	key := cache.Key("relationships", nodes, k.settings.Model)
	return cache.Fetch(ctx, k.cache, key, 0, func(ctx context.Context) ([]pkg.Relationship, error) {
		reply, err := k.completer.Complete(ctx, llm.Request{
			Model:       k.settings.Model,
			Prompt:      fmt.Sprintf(relationshipPrompt, described),
			Temperature: llm.Temperature(k.settings.Temperature),
		})
		if err != nil {
			return nil, err
		}
		return parseRelationships(reply)
	})
}

func (k *KnowledgeDBAgent) persist(ctx context.Context, graph pkg.KnowledgeGraph) error {
	if err := k.writer.UpsertNodes(ctx, graph.Nodes); err != nil {
		return err
	}
	return k.writer.UpsertRelationships(ctx, graph.Relationships)
}

// combineContext joins each entity's reference text and headlines
func combineContext(fetched []pkg.FetchedContext) string {
	parts := make([]string, 0, len(fetched))
	for _, fc := range fetched {
		entity := fc.Entity
		if entity == "" {
			entity = "Unknown"
		}
		text := ""
		if fc.ReferenceSummary != nil {
			text = fc.ReferenceSummary.Text
		}
		titles := make([]string, 0, 3)
		for i, item := range fc.NewsItems {
			if i == 3 {
				break
			}
			titles = append(titles, item.Title)
		}
		parts = append(parts, fmt.Sprintf("%s:\n%s %s", entity, text, strings.Join(titles, " ")))
	}
	return strings.Join(parts, "\n")
}

// buildNodes describes each entity by the first sentence of its reference
// text, or a generic line when there is none
func buildNodes(entities []pkg.Entity, fetched []pkg.FetchedContext) []pkg.GraphNode {
	references := make(map[string]string, len(fetched))
	for _, fc := range fetched {
		if fc.ReferenceSummary != nil && fc.ReferenceSummary.Text != "" {
			references[fc.Entity] = fc.ReferenceSummary.Text
		}
	}

	nodes := make([]pkg.GraphNode, 0, len(entities))
	for _, ent := range entities {
		typ := ent.Type
		if typ == "" {
			typ = "Unknown"
		}
		summary := firstSentence(references[ent.Name])
		if summary == "" {
			summary = fmt.Sprintf("A %s entity mentioned in the context.", strings.ToLower(typ))
		}
		nodes = append(nodes, pkg.GraphNode{Name: ent.Name, Type: typ, Summary: summary})
	}
	return nodes
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if i := strings.Index(text, "."); i >= 0 {
		return text[:i+1]
	}
	return text + "."
}

// heuristicRelationships links every ordered pair of nodes whose types
// have a known relation
func heuristicRelationships(nodes []pkg.GraphNode) []pkg.Relationship {
	rels := []pkg.Relationship{}
	for _, from := range nodes {
		for _, to := range nodes {
			if from.Name == to.Name {
				continue
			}
			relType, ok := typeRelations[[2]string{strings.ToLower(from.Type), strings.ToLower(to.Type)}]
			if !ok {
				continue
			}
			rels = append(rels, pkg.Relationship{FromNode: from.Name, ToNode: to.Name, Type: relType})
		}
	}
	return rels
}

func parseRelationships(reply string) ([]pkg.Relationship, error) {
	raw, err := llm.ExtractJSON(reply)
	if err != nil {
		return nil, err
	}

	var rels []pkg.Relationship
	if strings.HasPrefix(raw, "[") {
		err = sonic.UnmarshalString(raw, &rels)
	} else {
		var wrapped struct {
			Relationships []pkg.Relationship `json:"relationships"`
		}
		err = sonic.UnmarshalString(raw, &wrapped)
		rels = wrapped.Relationships
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}
	return rels, nil
}
