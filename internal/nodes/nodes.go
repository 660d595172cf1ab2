// Package nodes holds the concrete pipeline stages
package nodes

import (
	"agreegraph/internal/cache"
)

// Stage names, also used as event authors
const (
	EntityAgentName      = "EntityAgent"
	FetchAgentName       = "FetchAgent"
	KnowledgeDBAgentName = "KnowledgeDBAgent"
	JudgeAgentName       = "JudgeAgent"
)

// ModelSettings selects the model and sampling temperature for one stage
type ModelSettings struct {
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

func storeOrNop(store cache.Store, name string) cache.Store {
	if store == nil {
		return cache.NewNopStore(name)
	}
	return store
}
