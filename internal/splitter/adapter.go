package splitter

import (
	"github.com/mesycraft/mvlcdaq/internal/frame"
	"github.com/mesycraft/mvlcdaq/internal/streamparser"
)

// ModuleConfig is one module's multi-event splitting configuration within
// an event.
type ModuleConfig struct {
	Enabled bool
	Filter  HeaderFilter
}

// EventConfig maps module index to its splitting configuration for one
// readout event.
type EventConfig map[int]ModuleConfig

// Adapter sits between the stream parser and the next downstream
// consumer (event builder or analysis graph), implementing
// streamparser.Callbacks itself so it can be dropped into the parser's
// construction unchanged. It buffers one readout event's module data,
// then on EndEvent replays it downstream as one or more physics events,
// spec.md §4.5 "invoke the downstream event callbacks once per slice".
type Adapter struct {
	configs    map[int]EventConfig
	downstream streamparser.Callbacks

	Counters *Counters

	buf []moduleBuf
}

type moduleBuf struct {
	data streamparser.ModuleData
}

// NewAdapter builds a splitter stage forwarding to downstream, using
// per-event, per-module configuration from configs.
func NewAdapter(configs map[int]EventConfig, downstream streamparser.Callbacks) *Adapter {
	return &Adapter{
		configs:    configs,
		downstream: downstream,
		Counters:   newCounters(),
	}
}

var _ streamparser.Callbacks = (*Adapter)(nil)

func (a *Adapter) BeginEvent(crateID uint8, eventIndex int) {
	a.buf = a.buf[:0]
}

func (a *Adapter) ModuleData(crateID uint8, eventIndex, moduleIndex int, data streamparser.ModuleData) {
	for len(a.buf) <= moduleIndex {
		a.buf = append(a.buf, moduleBuf{})
	}
	a.buf[moduleIndex] = moduleBuf{data: data}
}

func (a *Adapter) EndEvent(crateID uint8, eventIndex int) {
	cfg := a.configs[eventIndex]
	splitResults := make([]Result, len(a.buf))
	maxSlices := 0
	for i, mb := range a.buf {
		mc := cfg[i]
		var res Result
		if mc.Enabled {
			res = Split(mb.data.Dynamic, mc.Filter)
			a.Counters.addSizeExceeded(i, res.SizeExceededWords)
		} else {
			res = PassThrough(mb.data.Dynamic)
		}
		splitResults[i] = res
		if len(res.Slices) > maxSlices {
			maxSlices = len(res.Slices)
		}
	}

	if maxSlices == 0 {
		// No module produced dynamic data at all (e.g. a pure-prefix
		// event); forward the event exactly once, unsplit.
		a.downstream.BeginEvent(crateID, eventIndex)
		for i, mb := range a.buf {
			a.downstream.ModuleData(crateID, eventIndex, i, mb.data)
		}
		a.downstream.EndEvent(crateID, eventIndex)
		return
	}

	for s := 0; s < maxSlices; s++ {
		a.downstream.BeginEvent(crateID, eventIndex)
		for i, mb := range a.buf {
			out := streamparser.ModuleData{Prefix: mb.data.Prefix, Suffix: mb.data.Suffix}
			if s < len(splitResults[i].Slices) {
				out.Dynamic = splitResults[i].Slices[s]
			}
			if len(out.Prefix) > 0 || len(out.Dynamic) > 0 || len(out.Suffix) > 0 {
				a.downstream.ModuleData(crateID, eventIndex, i, out)
			}
		}
		a.downstream.EndEvent(crateID, eventIndex)
	}
}

func (a *Adapter) SystemEvent(crateID uint8, subtype frame.SystemEventType, words []uint32) {
	a.downstream.SystemEvent(crateID, subtype, words)
}
