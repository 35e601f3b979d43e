package agentflow

import (
	"fmt"
)

// DefaultPort is the edge output/input name used when a declaration leaves
// the name unset. Most edges carry the conversational context, so "context"
// is the default on both ends.
const DefaultPort = "context"

// ToolsPort is the reserved output name for tool declarations. Edges sourced
// from a "tools" output are pull-only: a tool list is fetched on demand by
// the consumer and never pushed forward.
const ToolsPort = "tools"

// NodeDecl declares one node of a flow graph.
type NodeDecl struct {
	// ID uniquely identifies the node within the graph.
	ID string `yaml:"id" json:"id"`

	// Type selects the node function from the registry (e.g. "chat").
	Type string `yaml:"type" json:"type"`

	// Config holds node-type-specific settings.
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// EdgeDecl declares a directed edge between two nodes. Parallel edges
// between the same pair are allowed as long as they carry different
// output/input names.
type EdgeDecl struct {
	// ID identifies the edge. Optional; used only for diagnostics.
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	// Source and Target are node ids.
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`

	// SourceOutput names the output on the source node.
	// Defaults to "context".
	SourceOutput string `yaml:"source_output,omitempty" json:"source_output,omitempty"`

	// TargetInput names the input on the target node.
	// Defaults to "context".
	TargetInput string `yaml:"target_input,omitempty" json:"target_input,omitempty"`
}

// GraphDefinition is the immutable input to a Scheduler: a set of node and
// edge declarations. Topology is fixed for the duration of one execution.
type GraphDefinition struct {
	Nodes []NodeDecl `yaml:"nodes" json:"nodes"`
	Edges []EdgeDecl `yaml:"edges,omitempty" json:"edges,omitempty"`
}

// Validate checks structural invariants: non-empty unique node ids, node
// types present, and edges that reference declared nodes.
func (g GraphDefinition) Validate() error {
	if len(g.Nodes) == 0 {
		return &GraphError{Err: ErrEmptyGraph}
	}

	seen := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return &GraphError{Err: ErrEmptyNodeID}
		}
		if n.Type == "" {
			return &GraphError{NodeID: n.ID, Err: ErrEmptyNodeType}
		}
		if _, dup := seen[n.ID]; dup {
			return &GraphError{NodeID: n.ID, Err: ErrDuplicateNodeID}
		}
		seen[n.ID] = struct{}{}
	}

	for _, e := range g.Edges {
		if _, ok := seen[e.Source]; !ok {
			return &GraphError{EdgeID: e.ID, NodeID: e.Source, Err: ErrEdgeSourceNotFound}
		}
		if _, ok := seen[e.Target]; !ok {
			return &GraphError{EdgeID: e.ID, NodeID: e.Target, Err: ErrEdgeTargetNotFound}
		}
	}

	return nil
}

// boundEdge is an edge with its port names resolved to their defaults.
// Built once per Scheduler during adjacency construction.
type boundEdge struct {
	id           string
	source       string
	target       string
	sourceOutput string
	targetInput  string
}

func bindEdge(e EdgeDecl) boundEdge {
	b := boundEdge{
		id:           e.ID,
		source:       e.Source,
		target:       e.Target,
		sourceOutput: e.SourceOutput,
		targetInput:  e.TargetInput,
	}
	if b.sourceOutput == "" {
		b.sourceOutput = DefaultPort
	}
	if b.targetInput == "" {
		b.targetInput = DefaultPort
	}
	return b
}

// adjacency holds the per-node incoming and outgoing edge lists, in edge
// declaration order. Pure data preparation; no execution happens here.
type adjacency struct {
	incoming map[string][]boundEdge
	outgoing map[string][]boundEdge
	byID     map[string]NodeDecl
	// entries lists nodes with no incoming edges, in declaration order.
	entries []string
}

func buildAdjacency(def GraphDefinition) adjacency {
	adj := adjacency{
		incoming: make(map[string][]boundEdge, len(def.Nodes)),
		outgoing: make(map[string][]boundEdge, len(def.Nodes)),
		byID:     make(map[string]NodeDecl, len(def.Nodes)),
	}
	for _, n := range def.Nodes {
		adj.byID[n.ID] = n
	}
	for _, e := range def.Edges {
		b := bindEdge(e)
		adj.incoming[b.target] = append(adj.incoming[b.target], b)
		adj.outgoing[b.source] = append(adj.outgoing[b.source], b)
	}
	for _, n := range def.Nodes {
		if len(adj.incoming[n.ID]) == 0 {
			adj.entries = append(adj.entries, n.ID)
		}
	}
	return adj
}

func (e boundEdge) String() string {
	return fmt.Sprintf("%s[%s] -> %s[%s]", e.source, e.sourceOutput, e.target, e.targetInput)
}
