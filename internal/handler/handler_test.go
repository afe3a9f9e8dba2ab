package handler

import (
	"testing"

	"rdft/internal/transport"
	"rdft/internal/wire"
)

func newTestInbound(segmentsAmount uint32) (*Inbound, *[]wire.Packet) {
	var sent []wire.Packet
	send := func(p wire.Packet) error {
		sent = append(sent, p)
		return nil
	}
	h := NewInbound(1, transport.Addr{Host: "127.0.0.1", Port: 9000}, segmentsAmount, send)
	return h, &sent
}

func TestInboundAssemblesInOrder(t *testing.T) {
	h, _ := newTestInbound(2)
	if err := h.OnPacket(wire.Packet{Kind: wire.KindSegment, Segment: &wire.Segment{SegmentID: 1, Payload: []byte("b")}}); err != nil {
		t.Fatalf("segment 1: %v", err)
	}
	if err := h.OnPacket(wire.Packet{Kind: wire.KindSegment, Segment: &wire.Segment{SegmentID: 0, Payload: []byte("a")}}); err != nil {
		t.Fatalf("segment 0: %v", err)
	}
	if !h.Done() {
		t.Fatalf("expected done once both segments arrived")
	}
	if got := string(h.Assemble()); got != "ab" {
		t.Fatalf("expected assembled \"ab\", got %q", got)
	}
}

func TestInboundRejectsOutOfRangeSegmentID(t *testing.T) {
	h, sent := newTestInbound(2)
	if err := h.OnPacket(wire.Packet{Kind: wire.KindSegment, Segment: &wire.Segment{SegmentID: 5, Payload: []byte("x")}}); err != nil {
		t.Fatalf("onpacket: %v", err)
	}
	if h.Done() {
		t.Fatalf("an out-of-range segment must never count toward completion")
	}
	if len(*sent) != 0 {
		t.Fatalf("an out-of-range segment must not be ACKed, got %d ACKs", len(*sent))
	}

	if err := h.OnPacket(wire.Packet{Kind: wire.KindSegment, Segment: &wire.Segment{SegmentID: 0, Payload: []byte("a")}}); err != nil {
		t.Fatalf("segment 0: %v", err)
	}
	if err := h.OnPacket(wire.Packet{Kind: wire.KindSegment, Segment: &wire.Segment{SegmentID: 1, Payload: []byte("b")}}); err != nil {
		t.Fatalf("segment 1: %v", err)
	}
	if !h.Done() {
		t.Fatalf("expected done once the real segments arrived")
	}
	if got := string(h.Assemble()); got != "ab" {
		t.Fatalf("expected assembled \"ab\" unaffected by the rejected segment, got %q", got)
	}
}

func TestInboundDuplicateSegmentStillAcked(t *testing.T) {
	h, sent := newTestInbound(1)
	if err := h.OnPacket(wire.Packet{Kind: wire.KindSegment, Segment: &wire.Segment{SegmentID: 0, Payload: []byte("a")}}); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := h.OnPacket(wire.Packet{Kind: wire.KindSegment, Segment: &wire.Segment{SegmentID: 0, Payload: []byte("a")}}); err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if len(*sent) != 2 {
		t.Fatalf("expected duplicate segment to still be ACKed, got %d ACKs", len(*sent))
	}
}
