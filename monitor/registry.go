package monitor

import (
	"context"
	"sync"

	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/pipeline"
)

// Registry tracks the stages a process wants to expose. It is safe for
// concurrent use.
type Registry struct {
	service string
	version string

	mu    sync.RWMutex
	order []string
	nodes map[string]pipeline.Node
}

// NewRegistry creates an empty registry reporting under the given service
// name and version.
func NewRegistry(service, version string) *Registry {
	return &Registry{
		service: service,
		version: version,
		nodes:   make(map[string]pipeline.Node),
	}
}

// Add registers nodes. Nil nodes and nodes already present are skipped.
func (r *Registry) Add(nodes ...pipeline.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range nodes {
		if n == nil {
			continue
		}
		id := n.ID()
		if _, ok := r.nodes[id]; ok {
			continue
		}
		r.nodes[id] = n
		r.order = append(r.order, id)
	}
}

// Remove unregisters the node with the given ID and reports whether it was
// present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[id]; !ok {
		return false
	}
	delete(r.nodes, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the node with the given ID.
func (r *Registry) Get(id string) (pipeline.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	return n, ok
}

// Nodes returns the registered nodes in registration order.
func (r *Registry) Nodes() []pipeline.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]pipeline.Node, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.nodes[id])
	}
	return out
}

// Stats snapshots every registered node.
func (r *Registry) Stats() []pipeline.Stats {
	nodes := r.Nodes()
	out := make([]pipeline.Stats, len(nodes))
	for i, n := range nodes {
		out[i] = n.Stats()
	}
	return out
}

// Finished reports whether at least one node is registered and every
// registered node has completed.
func (r *Registry) Finished() bool {
	nodes := r.Nodes()
	if len(nodes) == 0 {
		return false
	}
	for _, n := range nodes {
		select {
		case <-n.Done():
		default:
			return false
		}
	}
	return true
}

// Health aggregates the health of every registered node.
func (r *Registry) Health(ctx context.Context) *observability.ServiceHealth {
	nodes := r.Nodes()
	checkers := make([]observability.HealthChecker, len(nodes))
	for i, n := range nodes {
		checkers[i] = n
	}
	return observability.Check(ctx, r.service, r.version, checkers...)
}
