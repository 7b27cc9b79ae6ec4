// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package timing defines the virtual tick scheduler the IPC kernel runs on,
// along with a deterministic implementation for tools and tests.
package timing

import (
	"container/heap"
	"fmt"
)

// Ticks counts emulated CPU cycles.
type Ticks int64

// The guest's timebase runs at one twelfth of the CPU clock.
const TicksPerTimebaseTick = 12

// Convert a count of timebase ticks, the unit latencies are usually measured
// in, into CPU ticks.
func TimebaseTicks(n int64) Ticks {
	return Ticks(n * TicksPerTimebaseTick)
}

// Callback is invoked when a scheduled event fires. late is how many ticks
// past its scheduled time the event is being delivered.
type Callback func(payload interface{}, late Ticks)

// EventType is a token returned by RegisterEvent.
type EventType struct {
	name     string
	callback Callback
}

func (e *EventType) Name() string {
	return e.name
}

func (e *EventType) String() string {
	return e.name
}

// Scheduler is the virtual clock shared by the guest CPU and the IPC kernel.
// Events scheduled for the same tick fire in the order they were scheduled.
type Scheduler interface {
	// Register a named callback. Registering a name that is already known
	// replaces its callback and returns the existing token.
	RegisterEvent(name string, cb Callback) *EventType

	// Arrange for ev's callback to be invoked with payload after delay ticks.
	ScheduleEvent(delay Ticks, ev *EventType, payload interface{})

	// Cancel every pending occurrence of ev.
	RemoveAllEvents(ev *EventType)

	// The current virtual time.
	Ticks() Ticks
}

////////////////////////////////////////////////////////////////////////
// Simulated
////////////////////////////////////////////////////////////////////////

// Simulated is a Scheduler whose clock moves only when Advance is called.
// It is not safe for concurrent use.
type Simulated struct {
	now   Ticks
	seq   uint64
	queue eventQueue
	types map[string]*EventType
}

var _ Scheduler = &Simulated{}

func NewSimulated() *Simulated {
	return &Simulated{
		types: make(map[string]*EventType),
	}
}

func (s *Simulated) RegisterEvent(name string, cb Callback) *EventType {
	if ev, ok := s.types[name]; ok {
		ev.callback = cb
		return ev
	}

	ev := &EventType{name: name, callback: cb}
	s.types[name] = ev
	return ev
}

func (s *Simulated) ScheduleEvent(
	delay Ticks,
	ev *EventType,
	payload interface{}) {
	if delay < 0 {
		panic(fmt.Sprintf("Negative delay for %s: %d", ev.name, delay))
	}

	s.seq++
	heap.Push(&s.queue, &pendingEvent{
		when:    s.now + delay,
		seq:     s.seq,
		ev:      ev,
		payload: payload,
	})
}

func (s *Simulated) RemoveAllEvents(ev *EventType) {
	kept := s.queue[:0]
	for _, p := range s.queue {
		if p.ev != ev {
			kept = append(kept, p)
		}
	}

	s.queue = kept
	heap.Init(&s.queue)
}

func (s *Simulated) Ticks() Ticks {
	return s.now
}

// Return the number of events not yet fired.
func (s *Simulated) Pending() int {
	return len(s.queue)
}

// Return the time of the next pending event, if any.
func (s *Simulated) NextEvent() (when Ticks, ok bool) {
	if len(s.queue) == 0 {
		return
	}

	when = s.queue[0].when
	ok = true
	return
}

// Move the clock forward by d ticks, firing every event that falls due along
// the way. The clock reads each event's scheduled time while its callback
// runs, so callbacks that schedule further events see consistent time.
func (s *Simulated) Advance(d Ticks) {
	target := s.now + d
	for len(s.queue) > 0 && s.queue[0].when <= target {
		p := heap.Pop(&s.queue).(*pendingEvent)
		s.now = p.when
		p.ev.callback(p.payload, 0)
	}

	s.now = target
}

////////////////////////////////////////////////////////////////////////
// eventQueue
////////////////////////////////////////////////////////////////////////

type pendingEvent struct {
	when    Ticks
	seq     uint64
	ev      *EventType
	payload interface{}
}

// A min-heap ordered by (when, seq).
type eventQueue []*pendingEvent

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].when != q[j].when {
		return q[i].when < q[j].when
	}

	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x interface{}) {
	*q = append(*q, x.(*pendingEvent))
}

func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return p
}
