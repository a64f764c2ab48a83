package streamparser

import "github.com/mesycraft/mvlcdaq/internal/frame"

// stepModules walks the current event's module list (spec.md §4.4
// "Per-event progression"): for each module it reads the prefix, then (if
// the module has a dynamic part) a nested BlockRead frame, then the
// suffix, pausing whenever more raw data is needed and resuming from the
// saved position on the next call.
func (p *Parser) stepModules() bool {
	for {
		switch p.sub {
		case subPrefix:
			if p.wordsLeft == 0 {
				m, _ := p.layout.Module(p.eventIndex, p.moduleIndex)
				if m.HasDynamic {
					p.sub = subDynamicHeader
				} else {
					p.sub = subSuffix
					p.wordsLeft = m.SuffixWords
				}
				continue
			}
			if p.framePayloadLeft == 0 {
				ok, done := p.onFrameExhausted()
				if !ok {
					return false
				}
				if done {
					return true
				}
				continue
			}
			n := minInt(p.wordsLeft, p.framePayloadLeft)
			if len(p.pending) < n {
				return false
			}
			p.curPrefix = append(p.curPrefix, p.pending[:n]...)
			p.pending = p.pending[n:]
			p.framePayloadLeft -= n
			p.wordsLeft -= n

		case subDynamicHeader:
			if p.framePayloadLeft == 0 {
				ok, done := p.onFrameExhausted()
				if !ok {
					return false
				}
				if done {
					return true
				}
				continue
			}
			if len(p.pending) < 1 {
				return false
			}
			hdr := frame.DecodeHeader(p.pending[0])
			if hdr.Type != frame.TypeBlockRead {
				p.Counters.addResult(ResultUnexpectedOpenBlockFrame)
				p.Counters.addException()
				p.state = stateError
				return true
			}
			p.pending = p.pending[1:]
			p.framePayloadLeft--
			p.Counters.addFrameType("BlockRead")
			p.wordsLeft = int(hdr.Length)
			p.blockContinues = hdr.Flags.Continue()
			p.sub = subDynamicBody

		case subDynamicBody:
			if p.wordsLeft == 0 {
				if p.blockContinues {
					p.sub = subDynamicHeader
				} else {
					m, _ := p.layout.Module(p.eventIndex, p.moduleIndex)
					p.sub = subSuffix
					p.wordsLeft = m.SuffixWords
				}
				continue
			}
			if p.framePayloadLeft == 0 {
				ok, done := p.onFrameExhausted()
				if !ok {
					return false
				}
				if done {
					return true
				}
				continue
			}
			n := minInt(p.wordsLeft, p.framePayloadLeft)
			if len(p.pending) < n {
				return false
			}
			p.dynamicBuf = append(p.dynamicBuf, p.pending[:n]...)
			p.pending = p.pending[n:]
			p.framePayloadLeft -= n
			p.wordsLeft -= n

		case subSuffix:
			if p.wordsLeft == 0 {
				p.completeModule()
				return true
			}
			if p.framePayloadLeft == 0 {
				ok, done := p.onFrameExhausted()
				if !ok {
					return false
				}
				if done {
					return true
				}
				continue
			}
			n := minInt(p.wordsLeft, p.framePayloadLeft)
			if len(p.pending) < n {
				return false
			}
			p.curSuffix = append(p.curSuffix, p.pending[:n]...)
			p.pending = p.pending[n:]
			p.framePayloadLeft -= n
			p.wordsLeft -= n
		}
	}
}

// onFrameExhausted handles the moment the current physical frame's
// declared payload length runs out. If the frame's Continue flag was set
// it waits for (and consumes) a matching StackContinuation header; if
// not, and we are exactly at a fresh module boundary, the event ends
// cleanly with the remaining modules producing no data; otherwise the
// stream is structurally malformed.
//
// Returns (ok, done): ok is false when more raw bytes are needed before a
// decision can be made; when ok is true, done reports whether the caller
// should stop stepping this event (either because it just finished, or
// because parsing moved into the Error state).
func (p *Parser) onFrameExhausted() (ok bool, done bool) {
	if p.frameContinues {
		if len(p.pending) < 1 {
			return false, false
		}
		hdr := frame.DecodeHeader(p.pending[0])
		if hdr.Type != frame.TypeStackContinuation || hdr.StackID != p.stackID {
			p.Counters.addResult(ResultMissingContinuation)
			p.Counters.addException()
			p.state = stateError
			return true, true
		}
		p.pending = p.pending[1:]
		p.Counters.addFrameType("StackContinuation")
		p.framePayloadLeft = int(hdr.Length)
		p.frameContinues = hdr.Flags.Continue()
		return true, false
	}

	freshBoundary := p.sub == subPrefix && p.wordsLeft == p.currentModulePrefixWords()
	if freshBoundary {
		p.finishEvent()
		return true, true
	}
	p.Counters.addResult(ResultImpossibleFrameLength)
	p.Counters.addException()
	p.state = stateError
	return true, true
}

func (p *Parser) completeModule() {
	data := ModuleData{
		Prefix:  p.curPrefix,
		Dynamic: p.dynamicBuf,
		Suffix:  p.curSuffix,
	}
	if len(data.Prefix) > 0 || len(data.Dynamic) > 0 || len(data.Suffix) > 0 {
		p.cb.ModuleData(p.crateID, p.eventIndex, p.moduleIndex, data)
	}
	p.Counters.addResult(ResultOk)

	p.moduleIndex++
	p.curPrefix = nil
	p.dynamicBuf = nil
	p.curSuffix = nil
	ev := p.layout.Events
	if p.eventIndex >= len(ev) || p.moduleIndex >= len(ev[p.eventIndex].Modules) {
		p.finishEvent()
		return
	}
	p.sub = subPrefix
	p.wordsLeft = p.currentModulePrefixWords()
}

func (p *Parser) stepSystemEvent() bool {
	n := p.framePayloadLeft
	if len(p.pending) < n {
		return false
	}
	words := append([]uint32(nil), p.pending[:n]...)
	p.pending = p.pending[n:]
	p.framePayloadLeft = 0
	p.cb.SystemEvent(p.crateID, p.sysSubtype, words)
	p.Counters.addResult(ResultOk)
	p.state = stateIdle
	return true
}

func (p *Parser) finishEvent() {
	p.cb.EndEvent(p.crateID, p.eventIndex)
	p.curPrefix = nil
	p.dynamicBuf = nil
	p.curSuffix = nil
	p.state = stateIdle
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
