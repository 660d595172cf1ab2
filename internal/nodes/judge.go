package nodes

import (
	"context"
	"errors"
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

const judgePrompt = `You are an AI Judge Agent analyzing information about a user's query.

Original query: %s

Entities extracted:
%s

Fetched summaries:
%s

Knowledge graph:
%s

Your tasks:
1. Determine if the information from different sources agrees, disagrees, or partially agrees.
2. Answer the user's query directly in one or two sentences.
3. Provide a concise executive summary that answers the user's original query.
4. Suggest 2-3 specific web searches to learn more about the most important entities.

Return ONLY a valid JSON object with this exact structure (no markdown, no extra text):
{
    "agreement_status": "Agree" | "Disagree" | "Partial",
    "direct_answer": "Direct answer here...",
    "summary": "Executive summary here...",
    "search_suggestions": ["Specific search query 1", "Specific search query 2"]
}`

// JudgeAgent weighs everything gathered so far and writes judge_result
// and final_summary
type JudgeAgent struct {
	completer llm.Completer
	cache     cache.Store
	settings  ModelSettings
}

func NewJudgeAgent(completer llm.Completer, store cache.Store, settings ModelSettings) *JudgeAgent {
	return &JudgeAgent{
		completer: completer,
		cache:     storeOrNop(store, "llm"),
		settings:  settings,
	}
}

func (j *JudgeAgent) Name() string { return JudgeAgentName }

func (j *JudgeAgent) Run(ctx context.Context, session *storage.Session) *schema.StreamReader[core.Event] {
	return core.Stream(ctx, j.Name(), func(ctx context.Context, emit core.Emitter) {
		log := logger.Agent(j.Name()).With().Str("session_id", session.ID).Logger()
		start := time.Now()

		result, err := j.judge(ctx, &session.State)
		switch {
		case errors.Is(err, llm.ErrMalformedResponse):
			log.Warn().Err(err).Msg("Judge response could not be parsed")
			fallback := &pkg.JudgeResult{
				AgreementStatus:   pkg.AgreementUnknown,
				Summary:           "Failed to parse analysis results. Please try again.",
				SearchSuggestions: []string{},
			}
			session.State.JudgeResult = fallback
			session.State.FinalSummary = fallback.Summary
			emit(fmt.Sprintf("❌ Error: %s\n\nDebug info: %v", fallback.Summary, err))
			return
		case err != nil:
			log.Error().Err(err).Msg("Judge failed")
			fallback := &pkg.JudgeResult{
				AgreementStatus:   pkg.AgreementError,
				Summary:           fmt.Sprintf("An error occurred during analysis: %v", err),
				SearchSuggestions: []string{},
			}
			session.State.JudgeResult = fallback
			session.State.FinalSummary = fallback.Summary
			emit(fmt.Sprintf("❌ Error: %s", fallback.Summary))
			return
		}

		session.State.JudgeResult = result
		session.State.FinalSummary = result.Summary

		log.Info().
			Str("agreement_status", string(result.AgreementStatus)).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("Judgement complete")
		emit(formatJudgement(result))
	})
}

func (j *JudgeAgent) judge(ctx context.Context, state *storage.State) (*pkg.JudgeResult, error) {
	if j.completer == nil {
		return nil, fmt.Errorf("%w: judge has no language model", core.ErrConfiguration)
	}

	prompt, err := buildJudgePrompt(state)
	if err != nil {
		return nil, err
	}

	key := cache.Key("judge", cache.HashText(prompt), j.settings.Model)
	return cache.Fetch(ctx, j.cache, key, 0, func(ctx context.Context) (*pkg.JudgeResult, error) {
		reply, err := j.completer.Complete(ctx, llm.Request{
			Model:       j.settings.Model,
			Prompt:      prompt,
			Temperature: llm.Temperature(j.settings.Temperature),
		})
		if err != nil {
			return nil, err
		}
		return parseJudgement(reply)
	})
}

func buildJudgePrompt(state *storage.State) (string, error) {
	encode := func(v any) (string, error) {
		data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode judge input: %w", err)
		}
		return string(data), nil
	}

	entities, err := encode(state.Entities)
	if err != nil {
		return "", err
	}
	fetched, err := encode(state.FetchedContext)
	if err != nil {
		return "", err
	}
	graph, err := encode(state.KnowledgeGraph)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(judgePrompt, state.UserQuery, entities, fetched, graph), nil
}

func parseJudgement(reply string) (*pkg.JudgeResult, error) {
	raw, err := llm.DecodeJSON[struct {
		AgreementStatus   string   `json:"agreement_status"`
		DirectAnswer      string   `json:"direct_answer"`
		Summary           string   `json:"summary"`
		SearchSuggestions []string `json:"search_suggestions"`
	}](reply)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.Summary) == "" && strings.TrimSpace(raw.DirectAnswer) == "" {
		return nil, fmt.Errorf("%w: judgement has neither summary nor answer", llm.ErrMalformedResponse)
	}

	suggestions := make([]string, 0, len(raw.SearchSuggestions))
	for _, s := range raw.SearchSuggestions {
		if s = strings.TrimSpace(s); s != "" {
			suggestions = append(suggestions, s)
		}
	}

	return &pkg.JudgeResult{
		AgreementStatus:   pkg.ParseAgreementStatus(raw.AgreementStatus),
		DirectAnswer:      strings.TrimSpace(raw.DirectAnswer),
		Summary:           strings.TrimSpace(raw.Summary),
		SearchSuggestions: suggestions,
	}, nil
}

func formatJudgement(result *pkg.JudgeResult) string {
	var b strings.Builder
	b.WriteString("**Analysis Complete**\n\n")
	fmt.Fprintf(&b, "**Status:** %s\n\n", result.AgreementStatus)
	if result.DirectAnswer != "" {
		fmt.Fprintf(&b, "**Answer:** %s\n\n", result.DirectAnswer)
	}
	fmt.Fprintf(&b, "**Summary:**\n%s\n", result.Summary)
	if len(result.SearchSuggestions) > 0 {
		b.WriteString("\n**Suggested searches:**\n")
		for _, s := range result.SearchSuggestions {
			fmt.Fprintf(&b, "• %s\n", s)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
