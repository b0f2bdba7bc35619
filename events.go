package main

import "github.com/go-gl/mathgl/mgl64"

// Event types recorded by the needle mechanic
const (
	EvtTransition  = "transition"
	EvtFired       = "fired"
	EvtPowerFired  = "power_fired"
	EvtStuck       = "stuck"
	EvtPinned      = "pinned"
	EvtUnpinned    = "unpinned"
	EvtPulled      = "pulled"
	EvtRetrieving  = "retrieving"
	EvtReturned    = "returned"
	EvtRegenerated = "regenerated"
	EvtRejected    = "rejected"
)

// Event is one mechanic occurrence
type Event struct {
	Type     string
	NeedleID string
	EntityID string // surface, target or empty
	From, To string // state names for transitions
	Position mgl64.Vec3
	Time     float64 // simulation clock, seconds
	Detail   string
}

// EventSink receives mechanic events. Implementations must not block.
type EventSink interface {
	Record(Event)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(Event)

func (f EventSinkFunc) Record(e Event) { f(e) }

// multiSink fans events out to several sinks
type multiSink []EventSink

func (m multiSink) Record(e Event) {
	for _, s := range m {
		s.Record(e)
	}
}

// MultiSink combines sinks, skipping nil entries
func MultiSink(sinks ...EventSink) EventSink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type discardSink struct{}

func (discardSink) Record(Event) {}
