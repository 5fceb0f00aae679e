package browser

import (
	"fmt"

	"snapshot-query/internal/snapshot"

	"github.com/go-rod/rod/lib/proto"
)

// AXNode is the subset of a CDP accessibility node needed to build a
// snapshot tree.
type AXNode struct {
	NodeID           string   `json:"nodeId"`
	Ignored          bool     `json:"ignored"`
	Role             string   `json:"role"`
	Name             string   `json:"name"`
	ChildIDs         []string `json:"childIds"`
	BackendDOMNodeID int      `json:"backendDOMNodeId"`
}

// Roles that never become elements; their children are promoted.
var skippedRoles = map[string]bool{
	"none":          true,
	"InlineTextBox": true,
	"LineBreak":     true,
}

func axValue(v *proto.AccessibilityAXValue) string {
	if v == nil {
		return ""
	}
	return v.Value.Str()
}

// FromProto converts the result of Accessibility.getFullAXTree.
func FromProto(nodes []*proto.AccessibilityAXNode) []AXNode {
	out := make([]AXNode, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		node := AXNode{
			NodeID:           string(n.NodeID),
			Ignored:          n.Ignored,
			Role:             axValue(n.Role),
			Name:             axValue(n.Name),
			BackendDOMNodeID: int(n.BackendDOMNodeID),
		}
		for _, id := range n.ChildIDs {
			node.ChildIDs = append(node.ChildIDs, string(id))
		}
		out = append(out, node)
	}
	return out
}

// RefFor returns the element ref for a node: the DOM backend id when the
// node has one, otherwise its accessibility node id.
func RefFor(n AXNode) string {
	if n.BackendDOMNodeID > 0 {
		return fmt.Sprintf("ref-%d", n.BackendDOMNodeID)
	}
	return "ref-ax-" + n.NodeID
}

// BuildTree assembles a snapshot tree from a flat node list. Nodes that no
// other node lists as a child become roots, in input order. Ignored nodes,
// skipped roles and unnamed static text are dropped and their children
// take their place.
func BuildTree(nodes []AXNode) *snapshot.Tree {
	byID := make(map[string]*AXNode, len(nodes))
	isChild := make(map[string]bool)
	for i := range nodes {
		byID[nodes[i].NodeID] = &nodes[i]
		for _, c := range nodes[i].ChildIDs {
			isChild[c] = true
		}
	}

	visited := make(map[string]bool, len(nodes))
	var convert func(id string) []*snapshot.Element
	convert = func(id string) []*snapshot.Element {
		n, ok := byID[id]
		if !ok || visited[id] {
			return nil
		}
		visited[id] = true

		var children []*snapshot.Element
		for _, c := range n.ChildIDs {
			children = append(children, convert(c)...)
		}

		if n.Ignored || skippedRoles[n.Role] || n.Role == "" || (n.Role == "StaticText" && n.Name == "") {
			return children
		}

		el := &snapshot.Element{Role: n.Role, Ref: RefFor(*n), Children: children}
		if n.Name != "" {
			el.Name = snapshot.StringPtr(n.Name)
		}
		return []*snapshot.Element{el}
	}

	var roots []*snapshot.Element
	for _, n := range nodes {
		if !isChild[n.NodeID] {
			roots = append(roots, convert(n.NodeID)...)
		}
	}
	return snapshot.NewTree(roots...)
}
