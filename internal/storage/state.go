package storage

import "agreegraph/pkg"

// Interaction history actions
const (
	ActionUserQuery     = "user_query"
	ActionAgentResponse = "agent_response"
)

// InteractionEntry is one line of the interaction history
type InteractionEntry struct {
	Action     string   `json:"action"`
	Statements []string `json:"statements,omitempty"`
	Agent      string   `json:"agent,omitempty"`
	Response   string   `json:"response,omitempty"`
}

// State is the closed set of fields shared by the pipeline stages.
// Stages read and write only the fields they declare.
type State struct {
	UserName           string               `json:"user_name"`
	UserQuery          string               `json:"user_query"`
	InteractionHistory []InteractionEntry   `json:"interaction_history"`
	Entities           []pkg.Entity         `json:"entities"`
	FetchedContext     []pkg.FetchedContext `json:"fetched_context"`
	KnowledgeGraph     pkg.KnowledgeGraph   `json:"knowledge_graph"`
	JudgeResult        *pkg.JudgeResult     `json:"judge_result"`
	FinalSummary       string               `json:"final_summary"`
}

// NewState returns the initial template for a request
func NewState(userName string) State {
	return State{
		UserName:           userName,
		InteractionHistory: []InteractionEntry{},
		Entities:           []pkg.Entity{},
		FetchedContext:     []pkg.FetchedContext{},
		KnowledgeGraph:     pkg.EmptyKnowledgeGraph(),
	}
}

// AppendUserQuery records an incoming query in the history
func (s *State) AppendUserQuery(statements []string) {
	s.InteractionHistory = append(s.InteractionHistory, InteractionEntry{
		Action:     ActionUserQuery,
		Statements: cloneSlice(statements),
	})
}

// AppendAgentResponse records one stage event in the history
func (s *State) AppendAgentResponse(agent, response string) {
	s.InteractionHistory = append(s.InteractionHistory, InteractionEntry{
		Action:   ActionAgentResponse,
		Agent:    agent,
		Response: response,
	})
}

// ResponsesBy returns the history responses written by one agent, in order
func (s *State) ResponsesBy(agent string) []string {
	var out []string
	for _, entry := range s.InteractionHistory {
		if entry.Action == ActionAgentResponse && entry.Agent == agent {
			out = append(out, entry.Response)
		}
	}
	return out
}

// Clone returns a deep copy. Nil and empty slices are preserved as such.
func (s State) Clone() State {
	out := s
	out.InteractionHistory = nil
	if s.InteractionHistory != nil {
		out.InteractionHistory = make([]InteractionEntry, len(s.InteractionHistory))
		for i, entry := range s.InteractionHistory {
			entry.Statements = cloneSlice(entry.Statements)
			out.InteractionHistory[i] = entry
		}
	}

	out.Entities = cloneSlice(s.Entities)

	out.FetchedContext = nil
	if s.FetchedContext != nil {
		out.FetchedContext = make([]pkg.FetchedContext, len(s.FetchedContext))
		for i, fc := range s.FetchedContext {
			if fc.ReferenceSummary != nil {
				ref := *fc.ReferenceSummary
				fc.ReferenceSummary = &ref
			}
			fc.NewsItems = cloneSlice(fc.NewsItems)
			out.FetchedContext[i] = fc
		}
	}

	out.KnowledgeGraph = pkg.KnowledgeGraph{
		Nodes:         cloneSlice(s.KnowledgeGraph.Nodes),
		Relationships: cloneSlice(s.KnowledgeGraph.Relationships),
	}

	if s.JudgeResult != nil {
		jr := *s.JudgeResult
		jr.SearchSuggestions = cloneSlice(jr.SearchSuggestions)
		out.JudgeResult = &jr
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
