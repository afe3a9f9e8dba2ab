package window

import "testing"

func TestBasicSendAckCycle(t *testing.T) {
	w := New(3, 10)
	id, ok := w.NextToSend()
	if !ok || id != 0 {
		t.Fatalf("expected id 0, got %d ok=%v", id, ok)
	}
	w.Ack(0)
	if _, ok := w.NextToSend(); !ok {
		t.Fatalf("expected more to send")
	}
}

func TestDuplicateAckIsNoop(t *testing.T) {
	w := New(2, 10)
	w.NextToSend()
	w.Ack(0)
	w.Ack(0) // duplicate, must not panic or corrupt state
	if w.Done() {
		t.Fatalf("one segment remains unsent")
	}
}

func TestCwndBoundsInFlight(t *testing.T) {
	w := New(5, 2)
	w.NextToSend()
	w.NextToSend()
	if _, ok := w.NextToSend(); ok {
		t.Fatalf("expected window to be full at cwnd=2")
	}
}

func TestEndCycleRetransmitsUnacked(t *testing.T) {
	w := New(3, 10)
	w.NextToSend()
	w.NextToSend()
	w.Ack(0) // id 1 remains unacked
	w.EndCycle()
	if w.Cwnd() != 5 {
		t.Fatalf("expected cwnd to halve from 10 to 5, got %d", w.Cwnd())
	}
	id, ok := w.NextToSend()
	if !ok || id != 1 {
		t.Fatalf("expected retransmit of id 1 first, got %d ok=%v", id, ok)
	}
}

func TestEndCycleGrowsOnCleanAck(t *testing.T) {
	w := New(2, 10)
	w.NextToSend()
	w.NextToSend()
	w.Ack(0)
	w.Ack(1)
	w.EndCycle()
	if w.Cwnd() < 1 {
		t.Fatalf("cwnd below 1: %d", w.Cwnd())
	}
	if !w.Done() {
		t.Fatalf("expected sender done after all acked and no more to send")
	}
}
