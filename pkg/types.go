package pkg

import (
	"fmt"
	"strings"
)

// Domain types shared by the pipeline stages and their collaborators

// Entity represents a named entity extracted from text
type Entity struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"` // open text, e.g. Person, Location, Landmark
}

// ReferenceSummary is an encyclopedia-style summary for one entity
type ReferenceSummary struct {
	Text   string `json:"text"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// NewsItem is a single news headline
type NewsItem struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Published string `json:"published"`
	Source    string `json:"source"`
}

// FetchedContext holds everything fetched for one entity
type FetchedContext struct {
	Entity           string            `json:"entity"`
	ReferenceSummary *ReferenceSummary `json:"reference_summary,omitempty"`
	NewsItems        []NewsItem        `json:"news_items"`
}

// GraphNode is a node of the knowledge graph, keyed by Name
type GraphNode struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

// Relationship connects two nodes by name
type Relationship struct {
	FromNode string `json:"from_node"`
	ToNode   string `json:"to_node"`
	Type     string `json:"type"`
}

// KnowledgeGraph is the derived graph of the fetched context
type KnowledgeGraph struct {
	Nodes         []GraphNode    `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}

// EmptyKnowledgeGraph returns a graph with non-nil empty slices
func EmptyKnowledgeGraph() KnowledgeGraph {
	return KnowledgeGraph{Nodes: []GraphNode{}, Relationships: []Relationship{}}
}

// HasNode reports whether a node with the given name exists
func (g KnowledgeGraph) HasNode(name string) bool {
	for _, n := range g.Nodes {
		if n.Name == name {
			return true
		}
	}
	return false
}

// FilterRelationships keeps only relationships whose endpoints are both
// present in nodes. Duplicate (from, to, type) triples and relationships
// with a blank type are dropped. Input order is preserved.
func FilterRelationships(nodes []GraphNode, proposed []Relationship) []Relationship {
	names := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		names[n.Name] = struct{}{}
	}

	seen := make(map[Relationship]struct{}, len(proposed))
	kept := []Relationship{}
	for _, rel := range proposed {
		rel.FromNode = strings.TrimSpace(rel.FromNode)
		rel.ToNode = strings.TrimSpace(rel.ToNode)
		rel.Type = strings.TrimSpace(rel.Type)
		if rel.Type == "" {
			continue
		}
		if _, ok := names[rel.FromNode]; !ok {
			continue
		}
		if _, ok := names[rel.ToNode]; !ok {
			continue
		}
		if _, dup := seen[rel]; dup {
			continue
		}
		seen[rel] = struct{}{}
		kept = append(kept, rel)
	}
	return kept
}

// AgreementStatus is the judge's verdict on the fetched information
type AgreementStatus string

const (
	AgreementAgree    AgreementStatus = "Agree"
	AgreementDisagree AgreementStatus = "Disagree"
	AgreementPartial  AgreementStatus = "Partial"
	AgreementUnknown  AgreementStatus = "Unknown"
	AgreementError    AgreementStatus = "Error"
)

// ParseAgreementStatus maps free text onto the closed status set.
// Anything unrecognised becomes Unknown.
func ParseAgreementStatus(s string) AgreementStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "agree", "agreed", "agreement":
		return AgreementAgree
	case "disagree", "disagreed", "disagreement":
		return AgreementDisagree
	case "partial", "partially", "partial agreement":
		return AgreementPartial
	case "error":
		return AgreementError
	default:
		return AgreementUnknown
	}
}

// JudgeResult is the final judged summary
type JudgeResult struct {
	AgreementStatus   AgreementStatus `json:"agreement_status"`
	DirectAnswer      string          `json:"direct_answer"`
	Summary           string          `json:"summary"`
	SearchSuggestions []string        `json:"search_suggestions"`
}

// Truncate shortens text to maxLength runes including the "..." suffix
func Truncate(text string, maxLength int) string {
	const suffix = "..."
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	if maxLength <= len(suffix) {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-len(suffix)]) + suffix
}

// FormatEntities renders entities as a bullet list for display
func FormatEntities(entities []Entity) string {
	if len(entities) == 0 {
		return "No entities found"
	}
	lines := make([]string, 0, len(entities))
	for _, e := range entities {
		name, typ := e.Name, e.Type
		if name == "" {
			name = "Unknown"
		}
		if typ == "" {
			typ = "Unknown"
		}
		lines = append(lines, fmt.Sprintf("• %s (%s)", name, typ))
	}
	return strings.Join(lines, "\n")
}

// EntityNames returns the non-blank names in order
func EntityNames(entities []Entity) []string {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		if n := strings.TrimSpace(e.Name); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// FormatFetchedContext renders fetched context as a readable digest:
// reference text cut to 200 characters and up to three headlines per entity
func FormatFetchedContext(contexts []FetchedContext) string {
	var b strings.Builder
	for _, fc := range contexts {
		entity := fc.Entity
		if entity == "" {
			entity = "Unknown"
		}
		fmt.Fprintf(&b, "\n=== %s ===\n", entity)

		if ref := fc.ReferenceSummary; ref != nil && ref.Text != "" {
			source := ref.Source
			if source == "" {
				source = "Reference"
			}
			fmt.Fprintf(&b, "📚 %s: %s\n", source, Truncate(ref.Text, 200))
		}

		if len(fc.NewsItems) > 0 {
			fmt.Fprintf(&b, "📰 Recent News (%d articles):\n", len(fc.NewsItems))
			for i, item := range fc.NewsItems {
				if i == 3 {
					break
				}
				fmt.Fprintf(&b, "  • %s\n", item.Title)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
