package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"agreegraph/internal/cache"
	"agreegraph/internal/core"
	"agreegraph/internal/fetch"
	"agreegraph/internal/logger"
	"agreegraph/internal/storage"
	"agreegraph/pkg"
)

// FetchAgent looks up reference material and news for every entity and
// writes them to fetched_context
type FetchAgent struct {
	fetcher fetch.Fetcher
	cache   cache.Store
	maxNews int
	timeout time.Duration
}

// NewFetchAgent creates the stage. timeout bounds each individual lookup.
func NewFetchAgent(fetcher fetch.Fetcher, store cache.Store, maxNews int, timeout time.Duration) *FetchAgent {
	if maxNews < 0 {
		maxNews = 0
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FetchAgent{
		fetcher: fetcher,
		cache:   storeOrNop(store, "web_fetch"),
		maxNews: maxNews,
		timeout: timeout,
	}
}

func (f *FetchAgent) Name() string { return FetchAgentName }

func (f *FetchAgent) Run(ctx context.Context, session *storage.Session) *schema.StreamReader[core.Event] {
	return core.Stream(ctx, f.Name(), func(ctx context.Context, emit core.Emitter) {
		log := logger.Agent(f.Name()).With().Str("session_id", session.ID).Logger()
		start := time.Now()

		names := pkg.EntityNames(session.State.Entities)
		if len(names) == 0 {
			session.State.FetchedContext = []pkg.FetchedContext{}
			emit("⚠️ No entities found to fetch context for.")
			return
		}
		if f.fetcher == nil {
			log.Error().Msg("No fetcher configured")
			session.State.FetchedContext = []pkg.FetchedContext{}
			emit(fmt.Sprintf("❌ Error fetching context: %v", core.ErrConfiguration))
			return
		}

		emit(fmt.Sprintf("🔍 Fetching real-time context and news for: %s...", strings.Join(names, ", ")))

		// each goroutine owns one slot; the state is written once after Wait
		results := make([]pkg.FetchedContext, len(names))
		failures := make([]int, len(names))
		errs := make([]error, len(names))
		var g errgroup.Group
		for i, name := range names {
			g.Go(func() error {
				results[i], failures[i], errs[i] = f.fetchEntity(ctx, name)
				return nil
			})
		}
		_ = g.Wait()

		failedEntities, failedLookups := 0, 0
		for i := range names {
			failedLookups += failures[i]
			if errs[i] != nil {
				failedEntities++
			}
		}
		if failedEntities == len(names) {
			err := errors.Join(errs...)
			log.Error().Err(err).Int("entity_count", len(names)).Msg("Every lookup failed")
			session.State.FetchedContext = []pkg.FetchedContext{}
			emit(fmt.Sprintf("❌ Error fetching context: %v", err))
			return
		}

		session.State.FetchedContext = results

		references, news := 0, 0
		for _, fc := range results {
			if fc.ReferenceSummary != nil {
				references++
			}
			news += len(fc.NewsItems)
		}

		log.Info().
			Int("entity_count", len(names)).
			Int("references", references).
			Int("news", news).
			Int("failed_lookups", failedLookups).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("Context fetched")

		text := fmt.Sprintf("✅ Successfully fetched context for %d entities:\n- %d encyclopedia/reference sources\n- %d recent news articles",
			len(names), references, news)
		if failedLookups > 0 {
			text += fmt.Sprintf("\n⚠️ %d lookups failed", failedLookups)
		}
		emit(text + "\n" + pkg.FormatFetchedContext(results))
	})
}

// fetchEntity reports how many lookups failed. A lookup that errors or
// times out leaves its part empty; when every lookup failed the joined
// error is returned and nothing is cached. Cache hits report no failures.
func (f *FetchAgent) fetchEntity(ctx context.Context, name string) (pkg.FetchedContext, int, error) {
	log := logger.Agent(f.Name()).With().Str("entity", name).Logger()
	key := cache.Key("web_fetch", name, f.maxNews)

	failed := 0
	fc, err := cache.Fetch(ctx, f.cache, key, 0, func(ctx context.Context) (pkg.FetchedContext, error) {
		fc := pkg.FetchedContext{Entity: name, NewsItems: []pkg.NewsItem{}}

		refCtx, cancel := context.WithTimeout(ctx, f.timeout)
		ref, refErr := f.fetcher.FetchReference(refCtx, name)
		cancel()
		if refErr != nil {
			failed++
			log.Warn().Err(refErr).Msg("Reference lookup failed")
		}
		fc.ReferenceSummary = ref

		var newsErr error
		if f.maxNews > 0 {
			newsCtx, cancel := context.WithTimeout(ctx, f.timeout)
			var items []pkg.NewsItem
			items, newsErr = f.fetcher.FetchNews(newsCtx, name, f.maxNews)
			cancel()
			if newsErr != nil {
				failed++
				log.Warn().Err(newsErr).Msg("News lookup failed")
			} else if items != nil {
				fc.NewsItems = items
			}
		}

		if refErr != nil && (newsErr != nil || f.maxNews == 0) {
			return fc, fmt.Errorf("%s: %w", name, errors.Join(refErr, newsErr))
		}
		return fc, nil
	})
	if err != nil {
		return pkg.FetchedContext{Entity: name, NewsItems: []pkg.NewsItem{}}, failed, err
	}
	return fc, failed, nil
}
