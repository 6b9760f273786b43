package watcher

import "time"

// Bounds clamp the adaptive chunk width.
type Bounds struct {
	Initial uint64
	Min     uint64
	Max     uint64
}

// Range is an inclusive block span.
type Range struct {
	From uint64
	To   uint64
}

// Planner is the pure chunk/head state machine for one watcher identity.
// It never touches the network or storage; the loop feeds it head updates
// and success/failure outcomes and reads back what to fetch next.
type Planner struct {
	bounds       Bounds
	refreshEvery int

	nextFrom     uint64
	chunk        uint64
	head         uint64
	sinceRefresh int
	failures     int
}

// NewPlanner starts planning at nextFrom with the given chunk, clamped into
// bounds so a hand-edited cursor row cannot push the planner out of range.
func NewPlanner(nextFrom, chunk, head uint64, bounds Bounds, refreshEvery int) *Planner {
	if refreshEvery < 1 {
		refreshEvery = 1
	}
	return &Planner{
		bounds:       bounds,
		refreshEvery: refreshEvery,
		nextFrom:     nextFrom,
		chunk:        clampChunk(chunk, bounds),
		head:         head,
	}
}

// Next plans the next inclusive range. ok is false when the planner is
// caught up to its known head.
func (p *Planner) Next() (Range, bool) {
	if p.nextFrom > p.head {
		return Range{}, false
	}
	to := p.nextFrom + p.chunk - 1
	if to > p.head {
		to = p.head
	}
	return Range{From: p.nextFrom, To: to}, true
}

// NeedsRefresh reports whether the head should be re-read before planning:
// periodically, and always when within one chunk of the known head, where a
// stale head would make the watcher idle against live blocks.
func (p *Planner) NeedsRefresh() bool {
	if p.sinceRefresh >= p.refreshEvery {
		return true
	}
	if p.nextFrom > p.head {
		return true
	}
	return p.head-p.nextFrom < p.chunk
}

// SetHead records a fresh chain head.
func (p *Planner) SetHead(head uint64) {
	p.head = head
	p.sinceRefresh = 0
}

// Advance commits a successful range: the next range starts at to+1 and the
// chunk doubles up to the bound. grew is false when the chunk was already at
// the ceiling, letting the caller skip persisting an unchanged value.
func (p *Planner) Advance(to uint64) (chunk uint64, grew bool) {
	p.nextFrom = to + 1
	p.failures = 0
	p.sinceRefresh++
	if p.chunk < p.bounds.Max {
		p.chunk = clampChunk(p.chunk*2, p.bounds)
		return p.chunk, true
	}
	return p.chunk, false
}

// Fail records a failed range: the chunk halves down to the floor and the
// same range will be replanned. shrank is false at the floor.
func (p *Planner) Fail() (chunk uint64, shrank bool) {
	p.failures++
	p.sinceRefresh++
	if p.chunk > p.bounds.Min {
		p.chunk = clampChunk(p.chunk/2, p.bounds)
		return p.chunk, true
	}
	return p.chunk, false
}

// Backoff is the escalating post-failure sleep, capped at ten seconds.
func (p *Planner) Backoff() time.Duration {
	secs := 2 * p.failures
	if secs > 10 {
		secs = 10
	}
	return time.Duration(secs) * time.Second
}

// LastProcessed is the watermark implied by the planner position.
func (p *Planner) LastProcessed() uint64 { return p.nextFrom - 1 }

// Chunk returns the current chunk width.
func (p *Planner) Chunk() uint64 { return p.chunk }

// Head returns the last known chain head.
func (p *Planner) Head() uint64 { return p.head }

// Failures returns the consecutive failure count.
func (p *Planner) Failures() int { return p.failures }

func clampChunk(chunk uint64, b Bounds) uint64 {
	if chunk < b.Min {
		return b.Min
	}
	if chunk > b.Max {
		return b.Max
	}
	return chunk
}
