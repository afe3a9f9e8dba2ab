// Package window implements the sender-side segment bookkeeping shared by the
// server's download worker and the client's upload worker (spec.md §4.3/§4.4):
// a to-send queue, an in-flight set bounded by a CUBIC congestion window, and
// a refresh cycle that reconciles ACKs against the in-flight set.
package window

import (
	"time"

	"rdft/internal/cubic"
)

// Signal is a single inbound event the refresh cycle reconciles against the
// in-flight set: either an ACK for a segment id, or a terminal completion.
type Signal struct {
	Ack      bool
	SegmentID uint32
	Complete bool
}

// Sender owns the to-send/in-flight queues and the congestion controller for
// one outstanding transfer. Not safe for concurrent use; each caller (the
// server's download worker, the client's Upload) uses it from one goroutine.
type Sender struct {
	toSend   []uint32
	inFlight []uint32
	inSet    map[uint32]struct{}

	cc          *cubic.Controller
	lastRefresh time.Time
}

// New creates a Sender with to-send populated by all ids in [0, segmentsAmount).
func New(segmentsAmount uint32, cwndStart uint32) *Sender {
	toSend := make([]uint32, segmentsAmount)
	for i := range toSend {
		toSend[i] = uint32(i)
	}
	return &Sender{
		toSend:      toSend,
		inSet:       make(map[uint32]struct{}),
		cc:          cubic.New(cwndStart),
		lastRefresh: time.Now(),
	}
}

// Cwnd returns the current congestion window.
func (s *Sender) Cwnd() uint32 { return s.cc.Cwnd() }

// Done reports whether there is nothing left to send or in flight. Per
// spec.md §4.3 this does NOT by itself mean the transfer is complete — only
// an observed DownloadComplited/Close does.
func (s *Sender) Done() bool { return len(s.toSend) == 0 && len(s.inFlight) == 0 }

// NextToSend pops the head of to-send and moves it into in-flight, if the
// window has room and to-send is non-empty. Returns (id, true) on success.
func (s *Sender) NextToSend() (uint32, bool) {
	if len(s.toSend) == 0 || uint32(len(s.inFlight)) >= s.cc.Cwnd() {
		return 0, false
	}
	id := s.toSend[0]
	s.toSend = s.toSend[1:]
	s.inFlight = append(s.inFlight, id)
	s.inSet[id] = struct{}{}
	return id, true
}

// Ack removes segmentID from both queues. Duplicate/unknown ids are no-ops,
// satisfying the idempotent-ACK requirement.
func (s *Sender) Ack(segmentID uint32) {
	if _, ok := s.inSet[segmentID]; !ok {
		return
	}
	delete(s.inSet, segmentID)
	s.inFlight = removeID(s.inFlight, segmentID)
	s.toSend = removeID(s.toSend, segmentID)
}

func removeID(ids []uint32, target uint32) []uint32 {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// EndCycle closes out one refresh cycle: any ids still in flight are
// prepended back onto to-send (so losses are retried first) and the
// congestion window shrinks; otherwise it grows via CUBIC. It returns the
// elapsed wall-clock span used as the rtt sample, and resets the cycle clock.
func (s *Sender) EndCycle() time.Duration {
	now := time.Now()
	elapsed := now.Sub(s.lastRefresh)
	s.lastRefresh = now

	if len(s.inFlight) > 0 {
		remaining := s.inFlight
		s.toSend = append(append([]uint32(nil), remaining...), s.toSend...)
		s.inFlight = nil
		s.cc.Shrink()
	} else {
		s.cc.Grow(elapsed.Seconds())
	}
	return elapsed
}
