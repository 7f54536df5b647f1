// Package valueset evaluates rule-table match expressions against patient
// snapshots: code membership, terminology hierarchy closure, text fallback,
// compound rules, and lab thresholds.
package valueset

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kunjulin/PRECISE-HBR-sub000/internal/domain"
)

const closureCacheSize = 256

// Hierarchy answers is-a descendant queries over a flat edge list. Closures
// are expanded lazily per root concept and cached, since a table typically
// reuses a handful of roots across many evaluations.
type Hierarchy struct {
	children map[string][]string
	closures *lru.Cache[string, map[string]struct{}]
}

// NewHierarchy indexes the edge list for descendant queries.
func NewHierarchy(edges []domain.HierarchyEdge) *Hierarchy {
	children := make(map[string][]string, len(edges))
	for _, e := range edges {
		parent := conceptKey(e.System, e.Parent)
		children[parent] = append(children[parent], conceptKey(e.System, e.Code))
	}
	cache, _ := lru.New[string, map[string]struct{}](closureCacheSize)
	return &Hierarchy{children: children, closures: cache}
}

// Subsumes reports whether code equals root or is a transitive descendant
// of root within system.
func (h *Hierarchy) Subsumes(system, root, code string) bool {
	if code == root {
		return true
	}
	closure := h.closure(conceptKey(system, root))
	_, ok := closure[conceptKey(system, code)]
	return ok
}

// closure returns the descendant set of root (root excluded), expanding and
// caching it on first use.
func (h *Hierarchy) closure(root string) map[string]struct{} {
	if cached, ok := h.closures.Get(root); ok {
		return cached
	}
	set := make(map[string]struct{})
	stack := append([]string(nil), h.children[root]...)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := set[node]; seen {
			continue
		}
		set[node] = struct{}{}
		stack = append(stack, h.children[node]...)
	}
	h.closures.Add(root, set)
	return set
}

func conceptKey(system, code string) string {
	return fmt.Sprintf("%s|%s", system, code)
}
