package domain

import (
	"fmt"
	"strings"
)

// NodeKind identifies the variant held by a Node.
type NodeKind string

// Available node kinds.
const (
	NodeDoc    NodeKind = "Doc"
	NodeChunk  NodeKind = "Chunk"
	NodeMemory NodeKind = "MemoryNote"
	NodeEntity NodeKind = "Entity"
	NodeTopic  NodeKind = "Topic"
)

// IsValid returns true if the node kind is recognised.
func (k NodeKind) IsValid() bool {
	switch k {
	case NodeDoc, NodeChunk, NodeMemory, NodeEntity, NodeTopic:
		return true
	default:
		return false
	}
}

// IsTextBearing reports whether nodes of this kind are indexed.
func (k NodeKind) IsTextBearing() bool {
	return k == NodeChunk || k == NodeMemory
}

// KindOf infers a node kind from the shape of an id.
func KindOf(id string) (NodeKind, error) {
	switch {
	case strings.HasPrefix(id, MemoryIDPrefix):
		return NodeMemory, nil
	case strings.HasPrefix(id, "topic-"):
		return NodeTopic, nil
	case strings.HasPrefix(id, "entity-"):
		return NodeEntity, nil
	case strings.Contains(id, "#"):
		if _, _, err := ParseChunkID(id); err != nil {
			return "", err
		}
		return NodeChunk, nil
	case IsDocID(id):
		return NodeDoc, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrMalformedID, id)
	}
}

// Node is a tagged variant: exactly one pointer matching Kind is set.
type Node struct {
	Kind   NodeKind
	Doc    *Doc
	Chunk  *Chunk
	Memory *MemoryNote
	Entity *Entity
	Topic  *Topic
}

// DocNode wraps a Doc.
func DocNode(d Doc) Node { return Node{Kind: NodeDoc, Doc: &d} }

// ChunkNode wraps a Chunk.
func ChunkNode(c Chunk) Node { return Node{Kind: NodeChunk, Chunk: &c} }

// MemoryNode wraps a MemoryNote.
func MemoryNode(m MemoryNote) Node { return Node{Kind: NodeMemory, Memory: &m} }

// EntityNode wraps an Entity.
func EntityNode(e Entity) Node { return Node{Kind: NodeEntity, Entity: &e} }

// TopicNode wraps a Topic.
func TopicNode(t Topic) Node { return Node{Kind: NodeTopic, Topic: &t} }

// ID returns the id of the wrapped record.
func (n Node) ID() string {
	switch n.Kind {
	case NodeDoc:
		if n.Doc != nil {
			return n.Doc.ID
		}
	case NodeChunk:
		if n.Chunk != nil {
			return n.Chunk.ID
		}
	case NodeMemory:
		if n.Memory != nil {
			return n.Memory.ID
		}
	case NodeEntity:
		if n.Entity != nil {
			return n.Entity.ID
		}
	case NodeTopic:
		if n.Topic != nil {
			return n.Topic.ID
		}
	}
	return ""
}

// Text returns the indexed text for text-bearing nodes and the name otherwise.
func (n Node) Text() string {
	switch {
	case n.Chunk != nil:
		return n.Chunk.Text
	case n.Memory != nil:
		return n.Memory.Text
	case n.Entity != nil:
		return n.Entity.Name
	case n.Topic != nil:
		return n.Topic.Name
	default:
		return ""
	}
}

// Validate checks the variant is consistent and its id well formed.
func (n Node) Validate() error {
	if !n.Kind.IsValid() {
		return fmt.Errorf("%w: node kind %q", ErrUnsupportedType, n.Kind)
	}
	id := n.ID()
	if id == "" {
		return fmt.Errorf("%w: %s node without record or id", ErrInvalidInput, n.Kind)
	}
	kind, err := KindOf(id)
	if err != nil {
		return err
	}
	if kind != n.Kind {
		return fmt.Errorf("%w: id %q is not a %s", ErrMalformedID, id, n.Kind)
	}
	switch n.Kind {
	case NodeDoc:
		if n.Doc.SHA256 == "" || !strings.HasPrefix(n.Doc.SHA256, n.Doc.ID) {
			return fmt.Errorf("%w: doc %s sha256 does not match id", ErrInvalidInput, id)
		}
	case NodeChunk:
		docID, span, err := ParseChunkID(id)
		if err != nil {
			return err
		}
		if docID != n.Chunk.DocID || span != n.Chunk.Span {
			return fmt.Errorf("%w: chunk %s fields disagree with id", ErrInvalidInput, id)
		}
	}
	return nil
}

// EdgeKind identifies a relation.
type EdgeKind string

// Available edge kinds.
const (
	EdgeHasChunk    EdgeKind = "HasChunk"
	EdgeMentions    EdgeKind = "Mentions"
	EdgeDerivedFrom EdgeKind = "DerivedFrom"
	EdgeHasTopic    EdgeKind = "HasTopic"
)

// edgeSchema lists the allowed source and destination kinds per edge kind.
var edgeSchema = map[EdgeKind]struct{ src, dst []NodeKind }{
	EdgeHasChunk:    {src: []NodeKind{NodeDoc}, dst: []NodeKind{NodeChunk}},
	EdgeMentions:    {src: []NodeKind{NodeChunk, NodeMemory}, dst: []NodeKind{NodeEntity}},
	EdgeDerivedFrom: {src: []NodeKind{NodeMemory}, dst: []NodeKind{NodeChunk, NodeDoc}},
	EdgeHasTopic:    {src: []NodeKind{NodeMemory}, dst: []NodeKind{NodeTopic}},
}

// IsValid returns true if the edge kind is recognised.
func (k EdgeKind) IsValid() bool {
	_, ok := edgeSchema[k]
	return ok
}

// Edge is a directed relation. Each edge is stored once and can be
// traversed in both directions.
type Edge struct {
	Kind EdgeKind
	Src  string
	Dst  string

	// CiteID is set on DerivedFrom edges to the citation that justified them.
	CiteID string
}

// Validate checks the edge kind and that its endpoint kinds fit the schema.
func (e Edge) Validate() error {
	schema, ok := edgeSchema[e.Kind]
	if !ok {
		return fmt.Errorf("%w: edge kind %q", ErrUnsupportedType, e.Kind)
	}
	srcKind, err := KindOf(e.Src)
	if err != nil {
		return err
	}
	dstKind, err := KindOf(e.Dst)
	if err != nil {
		return err
	}
	if !containsKind(schema.src, srcKind) || !containsKind(schema.dst, dstKind) {
		return fmt.Errorf("%w: %s cannot link %s to %s", ErrInvalidInput, e.Kind, srcKind, dstKind)
	}
	if e.Kind == EdgeDerivedFrom && e.CiteID == "" {
		return fmt.Errorf("%w: DerivedFrom edge requires a citation", ErrInvalidInput)
	}
	return nil
}

func containsKind(kinds []NodeKind, k NodeKind) bool {
	for _, kk := range kinds {
		if kk == k {
			return true
		}
	}
	return false
}

// Batch is a node-plus-edges write applied atomically.
type Batch struct {
	Nodes []Node
	Edges []Edge

	// ReplaceEdges drops existing outgoing edges of these kinds from every
	// node in Nodes before Edges are written.
	ReplaceEdges []EdgeKind

	// PruneChunks removes chunks of every Doc in Nodes that are not part of
	// the batch from the indexes. The chunk nodes are kept.
	PruneChunks bool
}

// Candidate is a ranked hit from one index.
type Candidate struct {
	ID    string
	Kind  NodeKind
	Score float64
}

// Direction constrains traversal of a directed edge.
type Direction int

const (
	// Outgoing follows edges from Src to Dst.
	Outgoing Direction = iota
	// Incoming follows edges from Dst to Src.
	Incoming
)

// Step is one hop of a Pattern.
type Step struct {
	Edge      EdgeKind
	Direction Direction
	Kind      NodeKind
}

// Pattern is a constrained path query: start at nodes of StartKind
// (optionally a single StartID) and follow Steps in order.
type Pattern struct {
	StartKind NodeKind
	StartID   string
	Steps     []Step
	Limit     int
}

// Path is one match of a Pattern: node ids in traversal order.
type Path []string

// GraphStats summarises store contents.
type GraphStats struct {
	Nodes     map[NodeKind]int `json:"nodes"`
	Edges     map[EdgeKind]int `json:"edges"`
	Citations int              `json:"citations"`
}
