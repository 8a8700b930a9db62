package hierarchy

import (
	"bytes"
	"encoding/json"

	"github.com/dvloznov/ads-extractor/internal/ads"
)

// AccountInfo describes one account of the hierarchy.
type AccountInfo struct {
	ID              ads.CustomerID `json:"id,string"`
	ResourceName    string         `json:"resourceName,omitempty"`
	ClientCustomer  string         `json:"clientCustomer,omitempty"`
	DescriptiveName string         `json:"descriptiveName"`
	CurrencyCode    string         `json:"currencyCode,omitempty"`
	TimeZone        string         `json:"timeZone,omitempty"`
	Manager         bool           `json:"manager"`
	// Level is the depth in the assembled tree, 0 for the root.
	Level int `json:"level"`
}

// Node is an account with its sub-accounts.
type Node struct {
	Info     AccountInfo `json:"info"`
	Children []*Node     `json:"children"`
}

// Forest holds one tree per root account, in discovery order.
type Forest struct {
	Roots []ads.CustomerID
	Trees map[ads.CustomerID]*Node
}

// NewForest returns an empty forest.
func NewForest() *Forest {
	return &Forest{Trees: make(map[ads.CustomerID]*Node)}
}

func (f *Forest) add(root *Node) {
	if _, ok := f.Trees[root.Info.ID]; ok {
		return
	}
	f.Roots = append(f.Roots, root.Info.ID)
	f.Trees[root.Info.ID] = root
}

// Tree returns the tree of a root account.
func (f *Forest) Tree(root ads.CustomerID) (*Node, bool) {
	n, ok := f.Trees[root]
	return n, ok
}

// MarshalJSON encodes the forest as an object keyed by root id, keeping the
// discovery order of the roots.
func (f *Forest) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range f.Roots {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id.String())
		if err != nil {
			return nil, err
		}
		tree, err := json.Marshal(f.Trees[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(tree)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// assemble builds the tree below root from the flat parent -> children map.
// An account is placed at most once per tree; later occurrences, including
// cyclic references back to an ancestor, are dropped.
func assemble(root AccountInfo, children map[ads.CustomerID][]AccountInfo) *Node {
	placed := map[ads.CustomerID]bool{root.ID: true}
	return build(root, 0, children, placed)
}

func build(info AccountInfo, depth int, children map[ads.CustomerID][]AccountInfo, placed map[ads.CustomerID]bool) *Node {
	info.Level = depth
	node := &Node{Info: info, Children: []*Node{}}
	for _, child := range children[info.ID] {
		if placed[child.ID] {
			continue
		}
		placed[child.ID] = true
		node.Children = append(node.Children, build(child, depth+1, children, placed))
	}
	return node
}
