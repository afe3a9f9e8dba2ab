// Package handler defines the narrow capability set shared by every request
// handler (spec.md §9's "handler polymorphism" note) and its three concrete
// variants: Outbound (download/list — the server streams Segments),
// Inbound (upload — the server receives Segments), and Delete (a single
// immediate request/response with no further packets expected).
package handler

import (
	"sync"

	"rdft/internal/transport"
	"rdft/internal/wire"
)

// Handler is the capability set the dispatcher needs from any request: it
// never type-switches on the concrete variant to route a packet.
type Handler interface {
	RequestID() uint32
	ClientAddr() transport.Addr
	OnPacket(pkt wire.Packet) error
	Done() bool
}

// Outbound drives a download or list transfer: the payload bytes (a file's
// contents or a marshaled directory listing) are already resolved at
// construction time and streamed out by the owning worker in rserver. It
// exposes a mailbox the dispatcher feeds and the worker drains.
type Outbound struct {
	mu sync.Mutex

	requestID  uint32
	clientAddr transport.Addr
	payload    []byte
	segmentSize uint32

	Mailbox chan wire.Packet
	done    bool
}

func NewOutbound(requestID uint32, addr transport.Addr, payload []byte, segmentSize uint32) *Outbound {
	return &Outbound{
		requestID:   requestID,
		clientAddr:  addr,
		payload:     payload,
		segmentSize: segmentSize,
		Mailbox:     make(chan wire.Packet, 64),
	}
}

func (h *Outbound) RequestID() uint32            { return h.requestID }
func (h *Outbound) ClientAddr() transport.Addr   { return h.clientAddr }
func (h *Outbound) Payload() []byte              { return h.payload }
func (h *Outbound) SegmentSize() uint32          { return h.segmentSize }

// OnPacket delivers into the mailbox rather than handling synchronously —
// the owning worker goroutine is the only reader (spec.md §9's
// message-passing mailbox design).
func (h *Outbound) OnPacket(pkt wire.Packet) error {
	select {
	case h.Mailbox <- pkt:
	default:
		// Mailbox full: the worker is behind: drop rather than block the
		// single-threaded dispatcher.
	}
	return nil
}

func (h *Outbound) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

func (h *Outbound) MarkDone() {
	h.mu.Lock()
	h.done = true
	h.mu.Unlock()
}

// Inbound drives an upload: segments arrive and are ACKed synchronously on
// the dispatcher's goroutine (spec.md §4.4 — no worker, no mailbox).
type Inbound struct {
	mu sync.Mutex

	requestID      uint32
	clientAddr     transport.Addr
	segmentsAmount uint32
	segments       map[uint32][]byte
	done           bool

	send func(wire.Packet) error
}

func NewInbound(requestID uint32, addr transport.Addr, segmentsAmount uint32, send func(wire.Packet) error) *Inbound {
	return &Inbound{
		requestID:      requestID,
		clientAddr:     addr,
		segmentsAmount: segmentsAmount,
		segments:       make(map[uint32][]byte),
		send:           send,
	}
}

func (h *Inbound) RequestID() uint32          { return h.requestID }
func (h *Inbound) ClientAddr() transport.Addr { return h.clientAddr }
func (h *Inbound) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// OnPacket implements the upload receiver rules of spec.md §4.4: a segment
// whose id lies in [0, segmentsAmount) is inserted if new and ACKed
// (duplicates included); an out-of-range id is dropped without an ACK. Once
// every id has arrived Done reports true, and rserver, which polls Done,
// then calls Assemble to concatenate in ascending id order.
func (h *Inbound) OnPacket(pkt wire.Packet) error {
	if pkt.Kind != wire.KindSegment || pkt.Segment == nil {
		return nil
	}
	if wire.ValidateSegmentID(pkt.Segment.SegmentID, h.segmentsAmount) != nil {
		// Out-of-range id: drop rather than ACK, so a malformed sender can
		// never make len(segments) == segmentsAmount true without every
		// real id 0..segmentsAmount-1 present (spec.md §9).
		return nil
	}
	h.mu.Lock()
	if _, ok := h.segments[pkt.Segment.SegmentID]; !ok {
		h.segments[pkt.Segment.SegmentID] = pkt.Segment.Payload
	}
	complete := uint32(len(h.segments)) == h.segmentsAmount
	h.mu.Unlock()

	ack := wire.Packet{Kind: wire.KindACK, RequestID: h.requestID, ACK: &wire.ACK{SegmentID: pkt.Segment.SegmentID}}
	if err := h.send(ack); err != nil {
		return err
	}
	if complete {
		h.mu.Lock()
		h.done = true
		h.mu.Unlock()
	}
	return nil
}

// Assemble concatenates received segments in ascending id order. Only
// meaningful once Done() is true.
func (h *Inbound) Assemble() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []byte
	for id := uint32(0); id < h.segmentsAmount; id++ {
		out = append(out, h.segments[id]...)
	}
	return out
}

// Delete is a single immediate request/response handler: by the time it is
// registered the operation has already completed, so Done is always true.
type Delete struct {
	requestID  uint32
	clientAddr transport.Addr
}

func NewDelete(requestID uint32, addr transport.Addr) *Delete {
	return &Delete{requestID: requestID, clientAddr: addr}
}

func (h *Delete) RequestID() uint32            { return h.requestID }
func (h *Delete) ClientAddr() transport.Addr   { return h.clientAddr }
func (h *Delete) OnPacket(wire.Packet) error   { return nil }
func (h *Delete) Done() bool                   { return true }
