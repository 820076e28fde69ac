// Package navigator implements the task navigator (C11): read-only queries
// over the reconstructed hierarchy (§4.12).
package navigator

import (
	"sort"

	"github.com/agentkeep/convstate/internal/cache"
	"github.com/agentkeep/convstate/internal/model"
)

// Navigator answers structural queries against a skeleton cache.
type Navigator struct {
	cache *cache.Cache
}

// New returns a Navigator reading through cache.
func New(c *cache.Cache) *Navigator {
	return &Navigator{cache: c}
}

// Parent returns the effective parent's skeleton, or nil if id has none or
// is unknown.
func (n *Navigator) Parent(id string) *model.ConversationSkeleton {
	sk, ok := n.cache.Get(id)
	if !ok {
		return nil
	}
	parentID := sk.EffectiveParent(n.cache.Known)
	if parentID == "" {
		return nil
	}
	parent, ok := n.cache.Get(parentID)
	if !ok {
		return nil
	}
	return parent
}

// Children returns every skeleton whose effective parent is id, ordered by
// TaskID for stability.
func (n *Navigator) Children(id string) []*model.ConversationSkeleton {
	var out []*model.ConversationSkeleton
	n.cache.Range(func(sk *model.ConversationSkeleton) bool {
		if sk.TaskID == id {
			return true
		}
		if sk.EffectiveParent(n.cache.Known) == id {
			out = append(out, sk)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// Ancestors walks up to maxDepth effective-parent hops from id, cycle-safe
// via a visited set (§9 "ad-hoc recursion ... replace with iterative
// walks").
func (n *Navigator) Ancestors(id string, maxDepth int) []*model.ConversationSkeleton {
	var out []*model.ConversationSkeleton
	visited := map[string]struct{}{id: {}}
	current := id
	for depth := 0; maxDepth <= 0 || depth < maxDepth; depth++ {
		sk, ok := n.cache.Get(current)
		if !ok {
			break
		}
		parentID := sk.EffectiveParent(n.cache.Known)
		if parentID == "" {
			break
		}
		if _, seen := visited[parentID]; seen {
			break
		}
		parent, ok := n.cache.Get(parentID)
		if !ok {
			break
		}
		out = append(out, parent)
		visited[parentID] = struct{}{}
		current = parentID
	}
	return out
}

// Siblings returns skeletons sharing id's effective parent, ordered by
// LastActivity. Unless includeSubsequent is set, only those preceding id
// chronologically are returned.
func (n *Navigator) Siblings(id string, includeSubsequent bool) []*model.ConversationSkeleton {
	self, ok := n.cache.Get(id)
	if !ok {
		return nil
	}
	parentID := self.EffectiveParent(n.cache.Known)

	var out []*model.ConversationSkeleton
	n.cache.Range(func(sk *model.ConversationSkeleton) bool {
		if sk.TaskID == id {
			return true
		}
		if sk.EffectiveParent(n.cache.Known) != parentID {
			return true
		}
		if !includeSubsequent && !sk.Metadata.LastActivity.Before(self.Metadata.LastActivity) {
			return true
		}
		out = append(out, sk)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Metadata.LastActivity.Before(out[j].Metadata.LastActivity) })
	return out
}

type frame struct {
	id    string
	depth int
}

// Subtree performs a cycle-safe, iterative DFS from id down to maxDepth
// levels, returning descendants in discovery order (root excluded) (§9
// "replace with iterative walks bounded by the current skeleton count").
func (n *Navigator) Subtree(id string, maxDepth int) []*model.ConversationSkeleton {
	var out []*model.ConversationSkeleton
	visited := map[string]struct{}{id: {}}

	stack := []frame{{id: id, depth: 0}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if maxDepth > 0 && top.depth >= maxDepth {
			continue
		}
		children := n.Children(top.id)
		for i := len(children) - 1; i >= 0; i-- {
			child := children[i]
			if _, seen := visited[child.TaskID]; seen {
				continue
			}
			visited[child.TaskID] = struct{}{}
			out = append(out, child)
			stack = append(stack, frame{id: child.TaskID, depth: top.depth + 1})
		}
	}
	return out
}
