package models

import "fmt"

const RootNodeID = "root"

// KnowledgeNode is one topic in the digested knowledge map.
type KnowledgeNode struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Details   string           `json:"details,omitempty"`
	Children  []*KnowledgeNode `json:"children,omitempty"`
	Completed bool             `json:"completed,omitempty"`
}

// Find returns the node with the given id, or nil.
func (n *KnowledgeNode) Find(id string) *KnowledgeNode {
	if n == nil {
		return nil
	}
	if n.ID == id {
		return n
	}
	for _, child := range n.Children {
		if found := child.Find(id); found != nil {
			return found
		}
	}
	return nil
}

// MarkCompleted flags the node as covered and reports whether it exists.
func (n *KnowledgeNode) MarkCompleted(id string) bool {
	node := n.Find(id)
	if node == nil {
		return false
	}
	node.Completed = true
	return true
}

func (n *KnowledgeNode) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, child := range n.Children {
		total += child.Count()
	}
	return total
}

// Normalize forces the root id to "root" and makes every id in the tree
// unique, filling blanks and suffixing duplicates.
func (n *KnowledgeNode) Normalize() {
	if n == nil {
		return
	}
	n.ID = RootNodeID
	seen := map[string]bool{RootNodeID: true}
	var walk func(node *KnowledgeNode, path string)
	walk = func(node *KnowledgeNode, path string) {
		kept := node.Children[:0]
		for i, child := range node.Children {
			if child == nil {
				continue
			}
			childPath := fmt.Sprintf("%s-%d", path, i+1)
			if child.ID == "" {
				child.ID = "node" + childPath
			}
			base := child.ID
			for suffix := 2; seen[child.ID]; suffix++ {
				child.ID = fmt.Sprintf("%s-%d", base, suffix)
			}
			seen[child.ID] = true
			walk(child, childPath)
			kept = append(kept, child)
		}
		node.Children = kept
	}
	walk(n, "")
}

// Clone returns a deep copy.
func (n *KnowledgeNode) Clone() *KnowledgeNode {
	if n == nil {
		return nil
	}
	out := *n
	if n.Children != nil {
		out.Children = make([]*KnowledgeNode, len(n.Children))
		for i, child := range n.Children {
			out.Children[i] = child.Clone()
		}
	}
	return &out
}

// FallbackKnowledgeTree is what the digest resolves to when the model call or
// its reply cannot be used.
func FallbackKnowledgeTree() *KnowledgeNode {
	return &KnowledgeNode{
		ID:   RootNodeID,
		Name: "Study Material (Processing Error)",
		Children: []*KnowledgeNode{
			{
				ID:       "error-1",
				Name:     "Processing Failed",
				Details:  "The study material might be too large or invalid. Please try fewer pages or convert to text.",
				Children: []*KnowledgeNode{},
			},
		},
	}
}

type SetCurrentNodeRequest struct {
	NodeID string `json:"node_id"`
}
