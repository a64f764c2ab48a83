// Package analysis implements the analysis dataflow graph runtime,
// spec.md §4.7: sources extract parameters out of raw module words,
// operators transform them, and sinks accumulate terminal state, once
// per physics event.
package analysis

import (
	"fmt"
	"math/rand"
)

// Value is one pipe element: a floating-point parameter plus its
// validity tag, spec.md §4.7 "Validity propagation".
type Value struct {
	V     float64
	Valid bool
}

// Pipe is a fixed-size vector of Values flowing between graph nodes.
type Pipe struct {
	Values []Value
}

// NewPipe allocates an all-invalid pipe of n elements.
func NewPipe(n int) *Pipe {
	return &Pipe{Values: make([]Value, n)}
}

// BitMatchFilter extracts one parameter out of a module's raw words,
// spec.md §9 "bit-match extractors (compiled mask/value/shift
// filters)". A raw word whose masked bits equal Value is a match; the
// extracted value is (word>>Shift)+offset, written at ParamIndex.
type BitMatchFilter struct {
	Mask, Value uint32
	Shift       uint8
	ParamIndex  int
}

// Source binds a filter set to one (crate, event, module) and produces
// one output Pipe per physics event, spec.md §4.7 step 1.
type Source struct {
	Name        string
	CrateID     uint8
	EventIndex  int
	ModuleIndex int
	Filters     []BitMatchFilter
	ParamCount  int

	Output *Pipe
}

// Extract runs the source's bit-match filters over one module's raw
// words, de-aliasing each match with a uniform-random fractional offset
// (spec.md §4.7 step 1), and records unmatched parameter indices as
// invalid.
func (s *Source) Extract(words []uint32, rng *rand.Rand) {
	if s.Output == nil || len(s.Output.Values) != s.ParamCount {
		s.Output = NewPipe(s.ParamCount)
	}
	for i := range s.Output.Values {
		s.Output.Values[i] = Value{}
	}
	for _, w := range words {
		for _, f := range s.Filters {
			if w&f.Mask != f.Value {
				continue
			}
			if f.ParamIndex < 0 || f.ParamIndex >= len(s.Output.Values) {
				continue
			}
			raw := float64(w >> f.Shift)
			s.Output.Values[f.ParamIndex] = Value{V: raw + rng.Float64(), Valid: true}
		}
	}
}

// ConditionRef gates an operator: the operator only evaluates when the
// referenced pipe element is both valid and nonzero, spec.md §4.7 step 2.
type ConditionRef struct {
	Pipe  *Pipe
	Index int
}

func (c *ConditionRef) satisfied() bool {
	if c == nil {
		return true
	}
	if c.Index < 0 || c.Index >= len(c.Pipe.Values) {
		return false
	}
	v := c.Pipe.Values[c.Index]
	return v.Valid && v.V != 0
}

// OperatorFunc computes an operator's output pipe from its input pipes.
// Implementations must propagate the invalid tag: an invalid input
// produces an invalid output, spec.md §4.7 "Validity propagation".
type OperatorFunc func(inputs []*Pipe, output *Pipe)

// Operator is one transform node in the graph.
type Operator struct {
	Name       string
	EventIndex int
	Inputs     []*Pipe
	Condition  *ConditionRef
	Fn         OperatorFunc
	Output     *Pipe

	// deps holds the indices (into Graph.Operators) of operators that
	// produce this operator's Inputs, used only to compute topological
	// rank at Build time.
	deps []int
}

// AddDependency records that this operator consumes another operator's
// output, for topological ranking.
func (op *Operator) AddDependency(producerIndex int) {
	op.deps = append(op.deps, producerIndex)
}

// Sink accumulates terminal state from its input pipe.
type Sink interface {
	Name() string
	EventIndex() int
	Accumulate(input *Pipe)
}

type sinkBinding struct {
	sink  Sink
	input *Pipe
}

// Graph is a built analysis dataflow graph ready to run once per
// physics event.
type Graph struct {
	Sources   []*Source
	operators []*Operator // topologically ordered after Build
	sinks     []sinkBinding

	rng *rand.Rand
}

// NewGraph creates an empty graph. seed makes the de-aliasing offsets
// reproducible across replay runs (a supplemental knob beyond the
// original spec, for deterministic replay comparisons).
func NewGraph(seed int64) *Graph {
	return &Graph{rng: rand.New(rand.NewSource(seed))}
}

// AddSource registers a source node.
func (g *Graph) AddSource(s *Source) {
	g.Sources = append(g.Sources, s)
}

// AddOperator registers an operator node, unranked until Build runs.
func (g *Graph) AddOperator(op *Operator) int {
	g.operators = append(g.operators, op)
	return len(g.operators) - 1
}

// AddSink binds a sink to an input pipe.
func (g *Graph) AddSink(s Sink, input *Pipe) {
	g.sinks = append(g.sinks, sinkBinding{sink: s, input: input})
}

// Build topologically ranks operators by their declared dependencies
// and allocates their output buffers, spec.md §4.7 "Build phase".
func (g *Graph) Build() error {
	order, err := topoSort(len(g.operators), g.operators)
	if err != nil {
		return err
	}
	ranked := make([]*Operator, len(order))
	for i, idx := range order {
		ranked[i] = g.operators[idx]
	}
	g.operators = ranked
	for _, op := range g.operators {
		if op.Output == nil {
			op.Output = NewPipe(len(op.Inputs))
		}
	}
	return nil
}

func topoSort(n int, ops []*Operator) ([]int, error) {
	indegree := make([]int, n)
	adj := make([][]int, n)
	for i, op := range ops {
		for _, d := range op.deps {
			adj[d] = append(adj[d], i)
			indegree[i]++
		}
	}
	var queue []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	var order []int
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, i)
		for _, j := range adj[i] {
			indegree[j]--
			if indegree[j] == 0 {
				queue = append(queue, j)
			}
		}
	}
	if len(order) != n {
		return nil, fmt.Errorf("analysis: dependency cycle among operators")
	}
	return order, nil
}

// ModuleKey identifies one module's realized data for one physics event.
type ModuleKey struct {
	CrateID     uint8
	EventIndex  int
	ModuleIndex int
}

// RunEvent executes the graph once for one physics event, spec.md §4.7
// "Per-event evaluation".
func (g *Graph) RunEvent(eventIndex int, moduleWords map[ModuleKey][]uint32) {
	for _, s := range g.Sources {
		if s.EventIndex != eventIndex {
			continue
		}
		words := moduleWords[ModuleKey{CrateID: s.CrateID, EventIndex: s.EventIndex, ModuleIndex: s.ModuleIndex}]
		s.Extract(words, g.rng)
	}

	for _, op := range g.operators {
		if op.EventIndex != eventIndex {
			continue
		}
		if !op.Condition.satisfied() {
			continue
		}
		op.Fn(op.Inputs, op.Output)
	}

	for _, b := range g.sinks {
		if b.sink.EventIndex() != eventIndex {
			continue
		}
		b.sink.Accumulate(b.input)
	}
}
