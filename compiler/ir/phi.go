package ir

// PhiKind discriminates the two PhiNode shapes.
type PhiKind int

const (
	PhiInvalid PhiKind = iota
	ArgumentPhi
	DataFlowPhi
)

type (
	// PhiNode is either a function parameter (ArgumentPhi) or a merge
	// point fed by DataFlowEdges from predecessors (DataFlowPhi). It
	// owns exactly one ValueOrigin producing its result.
	PhiNode struct {
		Kind   PhiKind
		Block  *BasicBlock
		Result ValueOrigin

		ArgIndex int // ArgumentPhi: position in the function's parameter list

		Sink DataFlowSink // DataFlowPhi: incoming edges
	}

	// DataFlowEdge connects a predecessor block to a DataFlowPhi,
	// carrying the value that predecessor contributes.
	DataFlowEdge struct {
		Source *BasicBlock
		Sink   *PhiNode
		Alias  ValueUse
	}

	// DataFlowSink collects the edges incoming to one DataFlowPhi. It
	// exclusively owns those edges.
	DataFlowSink struct {
		edges []*DataFlowEdge
	}

	// DataFlowSource aggregates the edges leaving one BasicBlock,
	// i.e. every contribution that block makes to a successor phi.
	DataFlowSource struct {
		edges []*DataFlowEdge
	}
)

// Edges returns the edges incoming to this phi.
func (s *DataFlowSink) Edges() []*DataFlowEdge { return s.edges }

// Edges returns the edges leaving this block.
func (s *DataFlowSource) Edges() []*DataFlowEdge { return s.edges }

// AddDataFlowEdge creates an edge from source to sink carrying value,
// registering it on both the source's DataFlowSource and the phi's
// DataFlowSink.
func AddDataFlowEdge(source *BasicBlock, sink *PhiNode, value *Value) *DataFlowEdge {
	e := &DataFlowEdge{Source: source, Sink: sink}
	e.Alias.Set(value)

	source.outgoing.edges = append(source.outgoing.edges, e)
	sink.Sink.edges = append(sink.Sink.edges, e)

	return e
}

// NewArgumentPhi constructs a parameter phi at the given index. Its
// result is bound immediately since a function signature fixes the
// value kind and type up front.
func NewArgumentPhi(block *BasicBlock, index int, v *Value) *PhiNode {
	p := &PhiNode{Kind: ArgumentPhi, Block: block, ArgIndex: index}
	p.Result.Set(v)

	return p
}

// NewDataFlowPhi constructs an empty merge-point phi; edges are added
// with AddDataFlowEdge.
func NewDataFlowPhi(block *BasicBlock, v *Value) *PhiNode {
	p := &PhiNode{Kind: DataFlowPhi, Block: block}
	p.Result.Set(v)

	return p
}
