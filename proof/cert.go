// Package proof implements cross-service certified-response verification
// (spec §4.9): parsing the raw certificate emitted by a source service,
// checking the issuer's signature (cached by hash, LRU-256), checking
// freshness, and decoding the certified reply.
package proof

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// NodeKind tags the variant of a certificate tree node, mirroring the
// IC-style hash-tree shape: Empty | Fork(l,r) | Labeled(label,child) |
// Leaf(value) | Pruned(hash).
type NodeKind byte

const (
	NodeEmpty NodeKind = iota
	NodeFork
	NodeLabeled
	NodeLeaf
	NodePruned
)

// Node is one node of a certificate tree.
type Node struct {
	Kind  NodeKind
	Label []byte
	Left  *Node
	Right *Node
	Child *Node
	Value []byte // leaf payload, or the pruned-subtree hash
}

// Leaf builds a leaf node.
func Leaf(value []byte) *Node { return &Node{Kind: NodeLeaf, Value: value} }

// Labeled builds a labeled node wrapping child.
func Labeled(label []byte, child *Node) *Node {
	return &Node{Kind: NodeLabeled, Label: label, Child: child}
}

// Fork builds a fork of two subtrees.
func Fork(l, r *Node) *Node { return &Node{Kind: NodeFork, Left: l, Right: r} }

func (n *Node) toWire() interface{} {
	if n == nil {
		return []interface{}{uint64(NodeEmpty)}
	}
	switch n.Kind {
	case NodeEmpty:
		return []interface{}{uint64(NodeEmpty)}
	case NodeFork:
		return []interface{}{uint64(NodeFork), n.Left.toWire(), n.Right.toWire()}
	case NodeLabeled:
		return []interface{}{uint64(NodeLabeled), n.Label, n.Child.toWire()}
	case NodeLeaf:
		return []interface{}{uint64(NodeLeaf), n.Value}
	case NodePruned:
		return []interface{}{uint64(NodePruned), n.Value}
	default:
		return []interface{}{uint64(NodeEmpty)}
	}
}

func nodeFromWire(v interface{}) (*Node, error) {
	arr, ok := v.([]interface{})
	if !ok || len(arr) == 0 {
		return nil, fmt.Errorf("proof: malformed tree node")
	}
	tag, err := toUint(arr[0])
	if err != nil {
		return nil, err
	}
	switch NodeKind(tag) {
	case NodeEmpty:
		return &Node{Kind: NodeEmpty}, nil
	case NodeFork:
		if len(arr) != 3 {
			return nil, fmt.Errorf("proof: malformed fork node")
		}
		l, err := nodeFromWire(arr[1])
		if err != nil {
			return nil, err
		}
		r, err := nodeFromWire(arr[2])
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeFork, Left: l, Right: r}, nil
	case NodeLabeled:
		if len(arr) != 3 {
			return nil, fmt.Errorf("proof: malformed labeled node")
		}
		label, err := toBytes(arr[1])
		if err != nil {
			return nil, err
		}
		child, err := nodeFromWire(arr[2])
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeLabeled, Label: label, Child: child}, nil
	case NodeLeaf:
		if len(arr) != 2 {
			return nil, fmt.Errorf("proof: malformed leaf node")
		}
		val, err := toBytes(arr[1])
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeLeaf, Value: val}, nil
	case NodePruned:
		if len(arr) != 2 {
			return nil, fmt.Errorf("proof: malformed pruned node")
		}
		val, err := toBytes(arr[1])
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodePruned, Value: val}, nil
	default:
		return nil, fmt.Errorf("proof: unknown node tag %d", tag)
	}
}

func toUint(v interface{}) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case int64:
		return uint64(x), nil
	case uint8:
		return uint64(x), nil
	default:
		return 0, fmt.Errorf("proof: expected integer tag, got %T", v)
	}
}

func toBytes(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("proof: expected byte string, got %T", v)
	}
	return b, nil
}

// Lookup walks path (a sequence of labels) from root and returns the
// leaf value found at that path, or an error if the path does not
// resolve to a leaf.
func Lookup(root *Node, path ...[]byte) ([]byte, error) {
	n := root
	for _, want := range path {
		n = descend(n, want)
		if n == nil {
			return nil, fmt.Errorf("proof: path segment %q not found", want)
		}
	}
	if n.Kind != NodeLeaf {
		return nil, fmt.Errorf("proof: path does not resolve to a leaf")
	}
	return n.Value, nil
}

func descend(n *Node, label []byte) *Node {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case NodeLabeled:
		if string(n.Label) == string(label) {
			return n.Child
		}
		return nil
	case NodeFork:
		if c := descend(n.Left, label); c != nil {
			return c
		}
		return descend(n.Right, label)
	default:
		return nil
	}
}

// Certificate is the raw, signed tree emitted by a source service.
type Certificate struct {
	Tree      *Node
	Signature []byte
}

type wireCertificate struct {
	Tree      interface{} `cbor:"tree"`
	Signature []byte      `cbor:"signature"`
}

// SignedPayload returns the exact bytes the issuer's signature covers:
// the CBOR encoding of the tree alone, independent of the signature
// field, so verification and signing agree on what was signed.
func (c *Certificate) SignedPayload() ([]byte, error) {
	return cbor.Marshal(c.Tree.toWire())
}

// Encode serializes the certificate to its raw wire form.
func (c *Certificate) Encode() ([]byte, error) {
	return cbor.Marshal(wireCertificate{Tree: c.Tree.toWire(), Signature: c.Signature})
}

// Decode parses raw certificate bytes into a Certificate.
func Decode(raw []byte) (*Certificate, error) {
	var wc wireCertificate
	if err := cbor.Unmarshal(raw, &wc); err != nil {
		return nil, fmt.Errorf("proof: cbor decode: %w", err)
	}
	tree, err := nodeFromWire(wc.Tree)
	if err != nil {
		return nil, err
	}
	return &Certificate{Tree: tree, Signature: wc.Signature}, nil
}
