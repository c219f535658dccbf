package accounts

import (
	"context"
	"errors"
)

// maxAncestorWalk bounds the upward walk so corrupted parent chains cannot
// loop forever even if the visited set were bypassed.
const maxAncestorWalk = MaxHierarchyDepth + 5

// buildHierarchyTree assembles the flat, ordered list into a forest. Nodes
// live in an arena indexed by position; children are attached by id lookup
// in a second pass so sibling order follows the input order. Accounts whose
// parent is absent from the list become roots.
func buildHierarchyTree(accounts []Account) []HierarchyNode {
	index := make(map[int64]int, len(accounts))
	for i, a := range accounts {
		if _, dup := index[a.ID]; !dup {
			index[a.ID] = i
		}
	}

	children := make([][]int, len(accounts))
	roots := make([]int, 0)
	for i, a := range accounts {
		if a.ParentID != nil {
			if p, ok := index[*a.ParentID]; ok && p != i {
				children[p] = append(children[p], i)
				continue
			}
		}
		roots = append(roots, i)
	}

	var materialise func(i int) HierarchyNode
	materialise = func(i int) HierarchyNode {
		node := HierarchyNode{
			AccountResponse: toResponse(accounts[i]),
			Children:        make([]HierarchyNode, 0, len(children[i])),
		}
		for _, c := range children[i] {
			node.Children = append(node.Children, materialise(c))
		}
		return node
	}

	out := make([]HierarchyNode, 0, len(roots))
	for _, r := range roots {
		out = append(out, materialise(r))
	}
	return out
}

// wouldCreateCycle walks the ancestor chain starting at newParentID. Reaching
// accountID, revisiting an id, or exceeding the walk bound all count as a
// cycle. A dangling parent pointer ends the walk.
func (s *Service) wouldCreateCycle(ctx context.Context, accountID, newParentID int64) (bool, error) {
	visited := make(map[int64]struct{}, maxAncestorWalk)
	current := newParentID
	for steps := 0; current != 0; steps++ {
		if steps >= maxAncestorWalk {
			return true, nil
		}
		if _, seen := visited[current]; seen {
			return true, nil
		}
		if current == accountID {
			return true, nil
		}
		visited[current] = struct{}{}

		parent, err := s.repo.FindByID(ctx, s.tenant.TenantID, current)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		if parent.ParentID == nil {
			return false, nil
		}
		current = *parent.ParentID
	}
	return false, nil
}
