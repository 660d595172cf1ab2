package cache

import (
	"context"
	"time"
)

// NopStore is handed out when caching is disabled: every Get misses and
// nothing is stored. It keeps no statistics.
type NopStore struct {
	name string
}

func NewNopStore(name string) *NopStore {
	return &NopStore{name: name}
}

func (n *NopStore) Name() string                                         { return n.name }
func (n *NopStore) Get(context.Context, string) (any, bool)              { return nil, false }
func (n *NopStore) Set(context.Context, string, any, time.Duration) bool { return false }
func (n *NopStore) Delete(context.Context, string) bool                  { return false }
func (n *NopStore) Clear(context.Context) bool                           { return true }
func (n *NopStore) Stats() Stats                                         { return Stats{} }
