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
	"agreegraph/internal/llm"
	"agreegraph/internal/logger"
	"agreegraph/internal/storage"
	"agreegraph/pkg"
)

const entityPrompt = `You are an Entity Extraction Agent that identifies important named entities in text.

<user_query>
%s
</user_query>

Identify:
- Organizations (companies, institutions)
- People (names of individuals)
- Technologies (products, platforms, systems)
- Locations (places, regions, countries)
- Landmarks, events or other notable named things

Return ONLY a JSON object of this shape:
{"entities": [{"name": "...", "type": "..."}]}
Return {"entities": []} if there are none.`

// EntityAgent extracts named entities from user_query into entities
type EntityAgent struct {
	completer   llm.Completer
	cache       cache.Store
	settings    ModelSettings
	maxEntities int
}

// NewEntityAgent creates the stage; store may be nil to disable caching
func NewEntityAgent(completer llm.Completer, store cache.Store, settings ModelSettings, maxEntities int) *EntityAgent {
	if maxEntities <= 0 {
		maxEntities = 20
	}
	return &EntityAgent{
		completer:   completer,
		cache:       storeOrNop(store, "entity"),
		settings:    settings,
		maxEntities: maxEntities,
	}
}

func (e *EntityAgent) Name() string { return EntityAgentName }

func (e *EntityAgent) Run(ctx context.Context, session *storage.Session) *schema.StreamReader[core.Event] {
	return core.Stream(ctx, e.Name(), func(ctx context.Context, emit core.Emitter) {
		log := logger.Agent(e.Name()).With().Str("session_id", session.ID).Logger()
		start := time.Now()

		query := strings.TrimSpace(session.State.UserQuery)
		if query == "" {
			session.State.Entities = []pkg.Entity{}
			emit("⚠️ No user query to extract entities from.")
			return
		}

		entities, err := e.Extract(ctx, query)
		if err != nil {
			log.Error().Err(err).Msg("Entity extraction failed")
			session.State.Entities = []pkg.Entity{}
			emit(fmt.Sprintf("❌ Entity extraction failed: %v", err))
			return
		}

		session.State.Entities = entities
		log.Info().
			Int("entity_count", len(entities)).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("Entities extracted")
		emit(pkg.FormatEntities(entities))
	})
}

// Extract returns the entities of text, consulting the cache first
func (e *EntityAgent) Extract(ctx context.Context, text string) ([]pkg.Entity, error) {
	if e.completer == nil {
		return nil, fmt.Errorf("%w: entity extraction has no language model", core.ErrConfiguration)
	}

	key := cache.DeriveKey("extract_entities", []any{text}, map[string]any{
		"model": e.settings.Model,
		"max":   e.maxEntities,
	})
	return cache.Fetch(ctx, e.cache, key, 0, func(ctx context.Context) ([]pkg.Entity, error) {
		reply, err := e.completer.Complete(ctx, llm.Request{
			Model:       e.settings.Model,
			Prompt:      fmt.Sprintf(entityPrompt, text),
			Temperature: llm.Temperature(e.settings.Temperature),
		})
		if err != nil {
			return nil, err
		}
		return parseEntities(reply, e.maxEntities)
	})
}

// parseEntities accepts {"entities": [...]} or a bare array. Blank names
// and repeated names are dropped and the result is capped at max.
func parseEntities(reply string, max int) ([]pkg.Entity, error) {
	raw, err := llm.ExtractJSON(reply)
	if err != nil {
		return nil, err
	}

	var entities []pkg.Entity
	if strings.HasPrefix(raw, "[") {
		err = sonic.UnmarshalString(raw, &entities)
	} else {
		var wrapped struct {
			Entities []pkg.Entity `json:"entities"`
		}
		err = sonic.UnmarshalString(raw, &wrapped)
		entities = wrapped.Entities
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}

	out := make([]pkg.Entity, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, ent := range entities {
		name := strings.TrimSpace(ent.Name)
		if name == "" {
			continue
		}
		folded := strings.ToLower(name)
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}

		typ := strings.TrimSpace(ent.Type)
		if typ == "" {
			typ = "Unknown"
		}
		out = append(out, pkg.Entity{Name: name, Type: typ})
		if len(out) == max {
			break
		}
	}
	return out, nil
}
