package search

import "github.com/rendis/poiscan/internal/model"

// Registry dedups places discovered across overlapping tiles within one
// traversal. Insertion is first-write-wins: the first tile to report an
// identity owns its recorded attributes, later sightings are discarded
// whole rather than merged. Insertion order is preserved so merging and
// sorting downstream stay deterministic.
type Registry struct {
	byID  map[string]model.Place
	order []string
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]model.Place)}
}

// Insert adds p unless its identity is already present. Reports whether the
// place was added.
func (r *Registry) Insert(p model.Place) bool {
	if p.ID == "" {
		return false
	}
	if _, ok := r.byID[p.ID]; ok {
		return false
	}
	r.byID[p.ID] = p
	r.order = append(r.order, p.ID)
	return true
}

func (r *Registry) Get(id string) (model.Place, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r *Registry) Len() int { return len(r.order) }

// Places returns the registry contents in insertion order.
func (r *Registry) Places() []model.Place {
	out := make([]model.Place, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
