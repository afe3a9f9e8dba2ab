package rmetrics

import (
	"context"
	"testing"
	"time"
)

func TestNewRegistersWithoutPanic(t *testing.T) {
	m := New()
	m.BytesSent.Add(10)
	m.SegmentsSent.Inc()
	m.ActiveTransfers.Inc()
	m.ActiveTransfers.Dec()
}

func TestServeRespectsContextCancellation(t *testing.T) {
	m := New()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.Serve(ctx, "127.0.0.1:0"); err != nil {
		t.Fatalf("serve: %v", err)
	}
}
