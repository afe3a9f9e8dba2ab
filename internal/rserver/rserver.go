// Package rserver implements the server control loop of spec.md §4.5: a
// single-threaded dispatcher over a Transport, backed by a bounded pool of
// download workers, an auth.Store, and per-user storage.Root instances.
package rserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"rdft/internal/auth"
	"rdft/internal/handler"
	"rdft/internal/registry"
	"rdft/internal/rlog"
	"rdft/internal/rmetrics"
	"rdft/internal/storage"
	"rdft/internal/transport"
	"rdft/internal/window"
	"rdft/internal/wire"
)

// Config bundles the tunables spec.md §6.1 exposes as defaults.
type Config struct {
	CwndStart        uint32
	SoftTimeout      time.Duration
	DownloadWorkers  int
	StorageBase      string
	FilePathMaxLen   int
	SingleSegmentMin int
	SingleSegmentMax int
}

// clampSegmentSize bounds a client-requested MaxSegmentSize into
// [min, max] (spec.md §6.1): a request outside the configured bounds —
// including the zero value of an unset field — is clamped rather than
// trusted verbatim, closing the divide-by-zero/oversized-allocation hole a
// client could otherwise open server-side.
func clampSegmentSize(requested uint32, min, max int) uint32 {
	lo, hi := uint32(min), uint32(max)
	switch {
	case requested < lo:
		return lo
	case requested > hi:
		return hi
	default:
		return requested
	}
}

// Server owns the dispatch loop.
type Server struct {
	cfg     Config
	tp      transport.Transport
	reg     *registry.Registry
	auth    *auth.Store
	fs      afero.Fs
	log     *logrus.Logger
	metrics *rmetrics.Metrics

	workerSem chan struct{}
}

func New(cfg Config, tp transport.Transport, fs afero.Fs, log *logrus.Logger, m *rmetrics.Metrics) (*Server, error) {
	store, err := auth.NewStore(fs, cfg.StorageBase+"/data.json", cfg.StorageBase)
	if err != nil {
		return nil, fmt.Errorf("rserver: loading auth store: %w", err)
	}
	return &Server{
		cfg:       cfg,
		tp:        tp,
		reg:       registry.New(),
		auth:      store,
		fs:        fs,
		log:       log,
		metrics:   m,
		workerSem: make(chan struct{}, cfg.DownloadWorkers),
	}, nil
}

// Run is the dispatch loop: it blocks on RecvFrom with the transport's soft
// timeout and never holds any lock across socket I/O (spec.md §5).
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, addr, err := s.tp.RecvFrom(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			var te *transport.TransportError
			if errors.As(err, &te) {
				s.log.WithError(err).Error("transport failure")
				continue
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			s.log.WithError(err).Warn("recv_from failed")
			continue
		}

		pkt, err := wire.Decode(raw)
		if err != nil {
			s.log.WithError(err).WithField("addr", addr.String()).Debug("malformed packet dropped")
			continue
		}
		s.handlePacket(ctx, pkt, addr)
	}
}

func (s *Server) handlePacket(ctx context.Context, pkt wire.Packet, addr transport.Addr) {
	// Step 1: retransmit every other pending first response.
	for _, p := range s.reg.RetransmitPending(pkt.RequestID) {
		_ = s.tp.SendTo(ctx, p.Packet, p.Addr)
	}

	switch {
	case pkt.Kind == wire.KindRequest:
		s.handleNewRequest(ctx, pkt, addr)
	case pkt.Kind == wire.KindReadyForDownloading:
		s.handleReady(ctx, pkt, addr)
	default:
		if pkt.Kind == wire.KindSegment && pkt.Segment != nil {
			s.metrics.SegmentsReceived.Inc()
			s.metrics.BytesReceived.Add(float64(len(pkt.Segment.Payload)))
		}
		known, err := s.reg.Dispatch(pkt)
		if err != nil {
			s.log.WithError(err).Warn("handler delivery failed")
		}
		if !known {
			closePkt := wire.Packet{Kind: wire.KindClose, RequestID: pkt.RequestID}
			_ = s.tp.SendTo(ctx, wire.Encode(closePkt), addr)
		}
	}
}

func (s *Server) send(ctx context.Context, pkt wire.Packet, addr transport.Addr) error {
	return s.tp.SendTo(ctx, wire.Encode(pkt), addr)
}

func (s *Server) handleNewRequest(ctx context.Context, pkt wire.Packet, addr transport.Addr) {
	if pkt.Request == nil {
		return
	}
	requestID := s.reg.AllocateID()
	rlog.WithRequest(s.log, requestID).WithField("sub_kind", pkt.SubKind).Debug("new request")

	root, err := s.resolveRoot(pkt.Request)
	if err != nil {
		resp := errorResponse(err)
		_ = s.send(ctx, wire.Packet{Kind: wire.KindResponse, RequestID: requestID, Response: &resp}, addr)
		return
	}

	switch pkt.SubKind {
	case wire.SubKindUpload:
		s.handleUploadRequest(ctx, requestID, pkt, addr, root)
	case wire.SubKindDownload:
		s.handleDownloadRequest(ctx, requestID, pkt, addr, root, pkt.DownloadRequest.Path)
	case wire.SubKindList:
		s.handleListRequest(ctx, requestID, pkt, addr, root)
	case wire.SubKindDelete:
		s.handleDeleteRequest(ctx, requestID, pkt, addr, root)
	default:
		resp := wire.Response{OK: false, Error: "unknown sub_kind"}
		_ = s.send(ctx, wire.Packet{Kind: wire.KindResponse, RequestID: requestID, Response: &resp}, addr)
	}
}

func (s *Server) resolveRoot(req *wire.Request) (*storage.Root, error) {
	rootPath, err := s.auth.Resolve(req.Anonymous, req.UserName, req.Password)
	if err != nil {
		return nil, err
	}
	return storage.NewRoot(s.fs, s.cfg.StorageBase+"/"+rootPath, s.cfg.FilePathMaxLen)
}

func errorResponse(err error) wire.Response {
	return wire.Response{OK: false, Error: err.Error()}
}

// handleUploadRequest allocates an Inbound handler immediately: uploads need
// no pending-response phase since the client starts streaming Segments as
// soon as it sees the Response (spec.md §4.4).
func (s *Server) handleUploadRequest(ctx context.Context, requestID uint32, pkt wire.Packet, addr transport.Addr, root *storage.Root) {
	segSize := clampSegmentSize(pkt.Request.MaxSegmentSize, s.cfg.SingleSegmentMin, s.cfg.SingleSegmentMax)
	segmentsAmount := wire.SegmentsAmount(pkt.Request.DataSize, segSize)

	send := func(p wire.Packet) error { return s.send(ctx, p, addr) }
	h := handler.NewInbound(requestID, addr, segmentsAmount, send)
	s.reg.Register(h)

	path := ""
	if pkt.UploadRequest != nil {
		path = pkt.UploadRequest.Path
	}
	if segmentsAmount == 0 {
		// Nothing to upload: no Segment will ever arrive to trigger
		// completion, so materialize the empty payload immediately.
		if err := root.Write(path, true, nil); err != nil {
			s.log.WithError(err).Warn("empty upload materialize failed")
		}
		s.reg.Remove(requestID)
	} else {
		go s.drainUpload(h, root, path)
	}

	resp := wire.Response{OK: true, DataSize: pkt.Request.DataSize, SegmentsAmount: segmentsAmount, SingleSegmentSize: segSize}
	_ = s.send(ctx, wire.Packet{Kind: wire.KindResponse, RequestID: requestID, Response: &resp}, addr)
}

// drainUpload waits for h.Done(), sends Close to the client, and
// materializes the assembled payload.
// Upload completion is driven by OnPacket (called from the dispatch
// goroutine), so this just polls for done at a short interval — matching
// the teacher's heartbeat-style wait rather than condvar machinery.
func (s *Server) drainUpload(h *handler.Inbound, root *storage.Root, path string) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if h.Done() {
			closePkt := wire.Packet{Kind: wire.KindClose, RequestID: h.RequestID()}
			_ = s.send(context.Background(), closePkt, h.ClientAddr())
			isFile, data := splitUploadPayload(h.Assemble())
			if err := root.Write(path, isFile, data); err != nil {
				s.log.WithError(err).Warn("upload materialize failed")
			}
			s.reg.Remove(h.RequestID())
			return
		}
	}
}

// splitUploadPayload strips the leading is_file bool the sender prepends to
// every upload payload (spec.md §4.6): 1 for a plain file, 0 for a ZIP
// archive of a directory. An empty payload has no such byte and is treated
// as an empty file, as handleUploadRequest does for segmentsAmount==0.
func splitUploadPayload(payload []byte) (isFile bool, data []byte) {
	if len(payload) == 0 {
		return true, nil
	}
	return payload[0] != 0, payload[1:]
}

func (s *Server) handleDownloadRequest(ctx context.Context, requestID uint32, pkt wire.Packet, addr transport.Addr, root *storage.Root, path string) {
	data, isFile, err := root.Read(path)
	if err != nil {
		resp := errorResponse(err)
		_ = s.send(ctx, wire.Packet{Kind: wire.KindResponse, RequestID: requestID, Response: &resp}, addr)
		return
	}
	// Prepend the is_file bool the receiver strips before writing, so a
	// directory download (ZIP bytes) can't be mistaken for a plain file on
	// the other end (spec.md §4.6).
	payload := make([]byte, 0, len(data)+1)
	if isFile {
		payload = append(payload, 1)
	} else {
		payload = append(payload, 0)
	}
	payload = append(payload, data...)
	s.beginOutbound(ctx, requestID, pkt, addr, payload)
}

func (s *Server) handleListRequest(ctx context.Context, requestID uint32, pkt wire.Packet, addr transport.Addr, root *storage.Root) {
	if pkt.ListRequest == nil {
		return
	}
	entries, err := root.List(pkt.ListRequest.Path, pkt.ListRequest.Recursive)
	if err != nil {
		resp := errorResponse(err)
		_ = s.send(ctx, wire.Packet{Kind: wire.KindResponse, RequestID: requestID, Response: &resp}, addr)
		return
	}
	payload := storage.MarshalListing(entries)
	s.beginOutbound(ctx, requestID, pkt, addr, payload)
}

// beginOutbound is shared by download and list: compute segmentation,
// register the Outbound handler, send the Response, and mark it pending
// until the client's ReadyForDownloading arrives (spec.md §4.3, §4.5).
func (s *Server) beginOutbound(ctx context.Context, requestID uint32, pkt wire.Packet, addr transport.Addr, payload []byte) {
	segSize := clampSegmentSize(pkt.Request.MaxSegmentSize, s.cfg.SingleSegmentMin, s.cfg.SingleSegmentMax)
	segmentsAmount := wire.SegmentsAmount(uint32(len(payload)), segSize)

	h := handler.NewOutbound(requestID, addr, payload, segSize)
	s.reg.Register(h)

	resp := wire.Response{OK: true, DataSize: uint32(len(payload)), SegmentsAmount: segmentsAmount, SingleSegmentSize: segSize}
	respPkt := wire.Packet{Kind: wire.KindResponse, RequestID: requestID, Response: &resp}
	encoded := wire.Encode(respPkt)
	_ = s.tp.SendTo(ctx, encoded, addr)
	s.reg.MarkPending(requestID, encoded, addr)
}

func (s *Server) handleDeleteRequest(ctx context.Context, requestID uint32, pkt wire.Packet, addr transport.Addr, root *storage.Root) {
	path := ""
	if pkt.DeleteRequest != nil {
		path = pkt.DeleteRequest.Path
	}
	isFile, err := root.Delete(path)
	if err != nil {
		resp := errorResponse(err)
		_ = s.send(ctx, wire.Packet{Kind: wire.KindResponse, RequestID: requestID, Response: &resp}, addr)
		return
	}
	h := handler.NewDelete(requestID, addr)
	s.reg.Register(h)
	resp := wire.Response{OK: true}
	delResp := wire.DeleteResponse{IsFile: isFile}
	respPkt := wire.Packet{Kind: wire.KindResponse, SubKind: wire.SubKindDelete, RequestID: requestID, Response: &resp, DeleteResponse: &delResp}
	_ = s.send(ctx, respPkt, addr)
	s.reg.Remove(requestID)
}

// handleReady confirms the peer's readiness for a download/list transfer
// and spawns the streaming worker, bounded by the worker pool semaphore.
func (s *Server) handleReady(ctx context.Context, pkt wire.Packet, addr transport.Addr) {
	h, ok := s.reg.Lookup(pkt.RequestID)
	if !ok {
		return
	}
	outbound, ok := h.(*handler.Outbound)
	if !ok {
		return
	}
	s.reg.ConfirmReady(pkt.RequestID)

	select {
	case s.workerSem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	go func() {
		defer func() { <-s.workerSem }()
		s.runDownloadWorker(ctx, outbound)
	}()
}

// runDownloadWorker implements the Streaming state of spec.md §4.3: the
// to_send/in_flight window bounded by cwnd, a refresh cycle that drains the
// mailbox for ACKs/DownloadComplited, and CUBIC regrowth/shrink at cycle
// end.
func (s *Server) runDownloadWorker(ctx context.Context, h *handler.Outbound) {
	s.metrics.ActiveTransfers.Inc()
	defer func() {
		h.MarkDone()
		s.reg.Remove(h.RequestID())
		s.metrics.ActiveTransfers.Dec()
	}()

	segSize := h.SegmentSize()
	payload := h.Payload()
	segmentsAmount := wire.SegmentsAmount(uint32(len(payload)), segSize)
	sender := window.New(segmentsAmount, s.cfg.CwndStart)

	for {
		for {
			id, ok := sender.NextToSend()
			if !ok {
				break
			}
			seg := wire.Packet{Kind: wire.KindSegment, RequestID: h.RequestID(), Segment: &wire.Segment{
				SegmentID: id,
				Payload:   segmentSlice(payload, id, segSize),
			}}
			if err := s.send(ctx, seg, h.ClientAddr()); err != nil {
				s.log.WithError(err).Debug("segment send failed")
				continue
			}
			s.metrics.SegmentsSent.Inc()
			s.metrics.BytesSent.Add(float64(len(seg.Segment.Payload)))
		}
		s.metrics.CwndCurrent.Set(float64(sender.Cwnd()))

		refreshDeadline := time.After(s.cfg.SoftTimeout)
	refresh:
		for {
			select {
			case pkt := <-h.Mailbox:
				switch pkt.Kind {
				case wire.KindACK:
					if pkt.ACK != nil && wire.ValidateSegmentID(pkt.ACK.SegmentID, segmentsAmount) == nil {
						sender.Ack(pkt.ACK.SegmentID)
					}
				case wire.KindDownloadComplited:
					closePkt := wire.Packet{Kind: wire.KindClose, RequestID: h.RequestID()}
					_ = s.send(ctx, closePkt, h.ClientAddr())
					return
				}
			case <-refreshDeadline:
				break refresh
			case <-ctx.Done():
				return
			}
			if sender.Done() {
				break refresh
			}
		}
		cwndBefore := sender.Cwnd()
		sender.EndCycle()
		if sender.Cwnd() < cwndBefore {
			s.metrics.Retransmissions.Inc()
		}
	}
}

func segmentSlice(payload []byte, id, segSize uint32) []byte {
	start := int(id) * int(segSize)
	if start >= len(payload) {
		return nil
	}
	end := start + int(segSize)
	if end > len(payload) {
		end = len(payload)
	}
	return payload[start:end]
}
