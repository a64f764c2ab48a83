package daqrun

import (
	"github.com/mesycraft/mvlcdaq/internal/analysis"
	"github.com/mesycraft/mvlcdaq/internal/eventbuilder"
	"github.com/mesycraft/mvlcdaq/internal/frame"
	"github.com/mesycraft/mvlcdaq/internal/streamparser"
)

// eventGraphAdapter sits downstream of the splitter stage (or the parser
// directly, for runs with no multi-event splitting configured). It
// buffers one physics event's module data, optionally combines it across
// crates via an eventbuilder.Builder, and feeds each resulting event to
// the analysis graph at EndEvent. Every callback is also forwarded to
// downstream (the fan-out registry) unchanged, ModuleData as soon as it
// arrives, so consumers see the same stream regardless of what the
// analysis side does with it.
type eventGraphAdapter struct {
	crateID    uint8
	downstream streamparser.Callbacks
	builder    *eventbuilder.Builder
	graph      *analysis.Graph

	buf map[int]streamparser.ModuleData
}

func newEventGraphAdapter(crateID uint8, downstream streamparser.Callbacks, builder *eventbuilder.Builder, graph *analysis.Graph) *eventGraphAdapter {
	return &eventGraphAdapter{
		crateID:    crateID,
		downstream: downstream,
		builder:    builder,
		graph:      graph,
		buf:        make(map[int]streamparser.ModuleData),
	}
}

var _ streamparser.Callbacks = (*eventGraphAdapter)(nil)

func (a *eventGraphAdapter) BeginEvent(crateID uint8, eventIndex int) {
	for k := range a.buf {
		delete(a.buf, k)
	}
	a.downstream.BeginEvent(crateID, eventIndex)
}

func (a *eventGraphAdapter) ModuleData(crateID uint8, eventIndex, moduleIndex int, data streamparser.ModuleData) {
	a.buf[moduleIndex] = data
	a.downstream.ModuleData(crateID, eventIndex, moduleIndex, data)
}

func (a *eventGraphAdapter) EndEvent(crateID uint8, eventIndex int) {
	switch {
	case a.builder != nil:
		for moduleIndex, data := range a.buf {
			key := eventbuilder.ModuleKey{CrateID: crateID, EventIndex: eventIndex, ModuleIndex: moduleIndex}
			a.builder.Push(key, flattenModuleData(data))
		}
		for {
			combined, ok := a.builder.TryEmit()
			if !ok {
				break
			}
			a.runGraph(eventIndex, combinedToModuleWords(combined))
		}
	case a.graph != nil:
		moduleWords := make(map[analysis.ModuleKey][]uint32, len(a.buf))
		for moduleIndex, data := range a.buf {
			moduleWords[analysis.ModuleKey{CrateID: crateID, EventIndex: eventIndex, ModuleIndex: moduleIndex}] = flattenModuleData(data)
		}
		a.runGraph(eventIndex, moduleWords)
	}
	a.downstream.EndEvent(crateID, eventIndex)
}

func (a *eventGraphAdapter) runGraph(eventIndex int, moduleWords map[analysis.ModuleKey][]uint32) {
	if a.graph == nil {
		return
	}
	a.graph.RunEvent(eventIndex, moduleWords)
}

func combinedToModuleWords(combined eventbuilder.CombinedEvent) map[analysis.ModuleKey][]uint32 {
	out := make(map[analysis.ModuleKey][]uint32, len(combined.Modules))
	for k, words := range combined.Modules {
		out[analysis.ModuleKey{CrateID: k.CrateID, EventIndex: k.EventIndex, ModuleIndex: k.ModuleIndex}] = words
	}
	return out
}

func (a *eventGraphAdapter) SystemEvent(crateID uint8, subtype frame.SystemEventType, words []uint32) {
	a.downstream.SystemEvent(crateID, subtype, words)
}

// flattenModuleData concatenates a module's realized prefix, dynamic and
// suffix words into the single word run the timestamp extractor and the
// analysis sources operate on, spec.md §3 "ModuleData".
func flattenModuleData(data streamparser.ModuleData) []uint32 {
	out := make([]uint32, 0, len(data.Prefix)+len(data.Dynamic)+len(data.Suffix))
	out = append(out, data.Prefix...)
	out = append(out, data.Dynamic...)
	out = append(out, data.Suffix...)
	return out
}
