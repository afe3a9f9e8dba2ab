// Package registry implements the single-threaded request registry and
// dispatch rules of spec.md §4.5: a request_id -> handler map, and a
// request_id -> pending-first-response map for handlers awaiting the peer's
// readiness confirmation (downloads and lists only).
package registry

import (
	"sync"

	"rdft/internal/handler"
	"rdft/internal/transport"
	"rdft/internal/wire"
)

// pendingResponse is a first Response sent to a client that has not yet
// confirmed readiness. Retransmission targets addr — the handler's client
// address — never a request-id-keyed lookup treated as an address
// (spec.md §9's explicitly flagged anti-pattern).
type pendingResponse struct {
	packet []byte
	addr   transport.Addr
}

// Registry owns handler lifecycle and the pending-response retransmit set.
// It is not safe for concurrent use from multiple goroutines beyond the
// single dispatch loop that owns it, except via the exported methods which
// take the internal lock.
type Registry struct {
	mu       sync.Mutex
	nextID   uint32
	handlers map[uint32]handler.Handler
	pending  map[uint32]pendingResponse
}

func New() *Registry {
	return &Registry{
		handlers: make(map[uint32]handler.Handler),
		pending:  make(map[uint32]pendingResponse),
	}
}

// AllocateID returns the next request_id; ids are never reused within a
// process lifetime.
func (r *Registry) AllocateID() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

// Register installs h under its own RequestID.
func (r *Registry) Register(h handler.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.RequestID()] = h
}

// Lookup returns the handler for requestID, if any.
func (r *Registry) Lookup(requestID uint32) (handler.Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[requestID]
	return h, ok
}

// Remove drops requestID's handler and any pending entry, releasing it for
// garbage collection — the registry exclusively owns each handler per
// spec.md §3's ownership note.
func (r *Registry) Remove(requestID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, requestID)
	delete(r.pending, requestID)
}

// MarkPending records responsePacket as the first response for requestID,
// to be retransmitted to addr until the peer confirms readiness.
func (r *Registry) MarkPending(requestID uint32, responsePacket []byte, addr transport.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[requestID] = pendingResponse{packet: responsePacket, addr: addr}
}

// ConfirmReady clears requestID's pending entry (the client's
// ReadyForDownloading arrived).
func (r *Registry) ConfirmReady(requestID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, requestID)
}

// RetransmitPending returns every pending first response whose key differs
// from excludeRequestID, the rule of spec.md §4.5 step 1: processing one
// incoming packet retransmits every OTHER outstanding pending response,
// guarding against loss of the initial response while unrelated traffic
// flows.
func (r *Registry) RetransmitPending(excludeRequestID uint32) []struct {
	Packet []byte
	Addr   transport.Addr
} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []struct {
		Packet []byte
		Addr   transport.Addr
	}
	for id, p := range r.pending {
		if id == excludeRequestID {
			continue
		}
		out = append(out, struct {
			Packet []byte
			Addr   transport.Addr
		}{Packet: p.packet, Addr: p.addr})
	}
	return out
}

// Dispatch implements spec.md §4.5 step 3/4 for a non-Request packet:
// deliver to the known handler, or report unknown so the caller can send an
// unsolicited Close.
func (r *Registry) Dispatch(pkt wire.Packet) (known bool, err error) {
	h, ok := r.Lookup(pkt.RequestID)
	if !ok {
		return false, nil
	}
	return true, h.OnPacket(pkt)
}
