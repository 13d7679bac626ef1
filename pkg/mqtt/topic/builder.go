package topic

import (
	"fmt"
	"strconv"
	"strings"
)

// Builder constructs and parses node topics of the form {root}/{segment}/{nodeID}.
type Builder struct {
	// root is the base namespace for all topics (e.g., "mesh/v1").
	root string
}

// NewBuilder creates a Builder for the given root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.TrimSuffix(root, "/")}
}

// Root returns the namespace every topic is built under.
func (b *Builder) Root() string {
	return b.root
}

// Build returns {root}/{segment}/{id}.
func (b *Builder) Build(segment, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, segment, id)
}

// Node returns the topic for segment addressed to nodeID.
func (b *Builder) Node(segment string, nodeID uint64) string {
	return b.Build(segment, NodeID(nodeID))
}

// Wildcard returns the filter matching segment for every node.
func (b *Builder) Wildcard(segment string) string {
	return b.Build(segment, Wildcard)
}

// Parse splits a topic built by this Builder into its segment and node id.
func (b *Builder) Parse(topic string) (segment string, nodeID uint64, err error) {
	rest, ok := strings.CutPrefix(topic, b.root+"/")
	if !ok {
		return "", 0, fmt.Errorf("topic %q is outside root %q", topic, b.root)
	}
	i := strings.LastIndexByte(rest, '/')
	if i <= 0 {
		return "", 0, fmt.Errorf("topic %q has no node id", topic)
	}
	nodeID, err = ParseNodeID(rest[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("topic %q: %w", topic, err)
	}
	return rest[:i], nodeID, nil
}

// NodeID renders a node id the way it appears in topics and logs.
func NodeID(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

// ParseNodeID parses a hex node id.
func ParseNodeID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return id, nil
}
