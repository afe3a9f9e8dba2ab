// Package rclient implements the client-side command drivers of spec.md
// §4.3/§4.4: upload (client is the reliable sender), download and list
// (client is the reliable receiver), and delete (single request/response).
package rclient

import (
	"context"
	"fmt"
	"time"

	"rdft/internal/storage"
	"rdft/internal/transport"
	"rdft/internal/window"
	"rdft/internal/wire"
)

// Config mirrors the tunables of rserver.Config on the client side.
type Config struct {
	CwndStart      uint32
	MaxSegmentSize uint32
	SoftTimeout    time.Duration
}

type Client struct {
	cfg        Config
	tp         transport.Transport
	serverAddr transport.Addr
}

func New(cfg Config, tp transport.Transport, serverAddr transport.Addr) *Client {
	return &Client{cfg: cfg, tp: tp, serverAddr: serverAddr}
}

func (c *Client) sendRecvResponse(ctx context.Context, req wire.Packet) (wire.Packet, error) {
	if err := c.tp.SendTo(ctx, wire.Encode(req), c.serverAddr); err != nil {
		return wire.Packet{}, err
	}
	for {
		raw, _, err := c.tp.RecvFrom(ctx)
		if err != nil {
			return wire.Packet{}, err
		}
		pkt, err := wire.Decode(raw)
		if err != nil {
			continue
		}
		if pkt.Kind != wire.KindResponse || pkt.Response == nil {
			continue
		}
		return pkt, nil
	}
}

// Upload streams data to destPath, acting as the reliable sender symmetric
// to the server's download worker (spec.md §4.4 sender rules). isFile
// selects how the receiver materializes the bytes: true for a plain file,
// false when data is a ZIP archive of a directory (spec.md §4.6/§8 scenario
// 3). The bool is prepended as a leading byte onto the wire payload itself,
// ahead of the actual segmented bytes.
func (c *Client) Upload(ctx context.Context, destPath string, data []byte, isFile bool, anonymous bool, user, password string) error {
	wirePayload := make([]byte, 0, len(data)+1)
	if isFile {
		wirePayload = append(wirePayload, 1)
	} else {
		wirePayload = append(wirePayload, 0)
	}
	wirePayload = append(wirePayload, data...)

	req := wire.Packet{
		Kind:    wire.KindRequest,
		SubKind: wire.SubKindUpload,
		Request: &wire.Request{
			DataSize:       uint32(len(wirePayload)),
			MaxSegmentSize: c.cfg.MaxSegmentSize,
			Anonymous:      anonymous,
			UserName:       user,
			Password:       password,
		},
		UploadRequest: &wire.UploadRequest{Path: destPath},
	}
	respPkt, err := c.sendRecvResponse(ctx, req)
	if err != nil {
		return err
	}
	requestID, resp := respPkt.RequestID, *respPkt.Response
	if !resp.OK {
		return fmt.Errorf("rclient: upload rejected: %s", resp.Error)
	}

	segmentsAmount := wire.SegmentsAmount(resp.DataSize, resp.SingleSegmentSize)
	sender := window.New(segmentsAmount, c.cfg.CwndStart)

	for !sender.Done() {
		for {
			id, ok := sender.NextToSend()
			if !ok {
				break
			}
			seg := wire.Packet{Kind: wire.KindSegment, RequestID: requestID, Segment: &wire.Segment{
				SegmentID: id,
				Payload:   segmentSlice(wirePayload, id, resp.SingleSegmentSize),
			}}
			if err := c.tp.SendTo(ctx, wire.Encode(seg), c.serverAddr); err != nil {
				return err
			}
		}
		c.drainAcks(ctx, requestID, sender, segmentsAmount)
		sender.EndCycle()
	}
	return nil
}

func (c *Client) drainAcks(ctx context.Context, requestID uint32, sender *window.Sender, segmentsAmount uint32) {
	deadline := time.Now().Add(c.cfg.SoftTimeout)
	for time.Now().Before(deadline) {
		if sender.Done() {
			return
		}
		raw, _, err := c.tp.RecvFrom(ctx)
		if err != nil {
			return
		}
		pkt, err := wire.Decode(raw)
		if err != nil || pkt.RequestID != requestID {
			continue
		}
		if pkt.Kind == wire.KindACK && pkt.ACK != nil && wire.ValidateSegmentID(pkt.ACK.SegmentID, segmentsAmount) == nil {
			sender.Ack(pkt.ACK.SegmentID)
		}
	}
}

// download is the shared reliable-receiver loop for Download and List
// (spec.md §4.4's receiver symmetry): send ReadyForDownloading, collect
// Segments into a sparse map, ACK each, and emit DownloadComplited once the
// full segment count has arrived.
func (c *Client) download(ctx context.Context, requestID uint32, resp wire.Response) ([]byte, error) {
	ready := wire.Packet{Kind: wire.KindReadyForDownloading, RequestID: requestID}
	if err := c.tp.SendTo(ctx, wire.Encode(ready), c.serverAddr); err != nil {
		return nil, err
	}

	segments := make(map[uint32][]byte)
	for uint32(len(segments)) < resp.SegmentsAmount {
		raw, _, err := c.tp.RecvFrom(ctx)
		if err != nil {
			if resp.SegmentsAmount == 0 {
				break
			}
			return nil, err
		}
		pkt, err := wire.Decode(raw)
		if err != nil || pkt.RequestID != requestID {
			continue
		}
		if pkt.Kind == wire.KindSegment && pkt.Segment != nil {
			if _, ok := segments[pkt.Segment.SegmentID]; !ok {
				segments[pkt.Segment.SegmentID] = pkt.Segment.Payload
			}
			ack := wire.Packet{Kind: wire.KindACK, RequestID: requestID, ACK: &wire.ACK{SegmentID: pkt.Segment.SegmentID}}
			_ = c.tp.SendTo(ctx, wire.Encode(ack), c.serverAddr)
		}
	}

	complete := wire.Packet{Kind: wire.KindDownloadComplited, RequestID: requestID}
	_ = c.tp.SendTo(ctx, wire.Encode(complete), c.serverAddr)

	out := make([]byte, 0, resp.DataSize)
	for id := uint32(0); id < resp.SegmentsAmount; id++ {
		out = append(out, segments[id]...)
	}
	return out, nil
}

// Download fetches srcPath's contents, returning the payload alongside
// isFile: true for plain file bytes, false when the payload is a ZIP
// archive of a directory (spec.md §4.6/§8 scenario 3) that the caller must
// extract rather than write verbatim.
func (c *Client) Download(ctx context.Context, srcPath string, anonymous bool, user, password string) (data []byte, isFile bool, err error) {
	req := wire.Packet{
		Kind:    wire.KindRequest,
		SubKind: wire.SubKindDownload,
		Request: &wire.Request{
			MaxSegmentSize: c.cfg.MaxSegmentSize,
			Anonymous:      anonymous,
			UserName:       user,
			Password:       password,
		},
		DownloadRequest: &wire.DownloadRequest{Path: srcPath},
	}
	respPkt, err := c.sendRecvResponse(ctx, req)
	if err != nil {
		return nil, false, err
	}
	resp := *respPkt.Response
	if !resp.OK {
		return nil, false, fmt.Errorf("rclient: download rejected: %s", resp.Error)
	}
	raw, err := c.download(ctx, respPkt.RequestID, resp)
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, true, nil
	}
	return raw[1:], raw[0] != 0, nil
}

// List fetches a directory listing and decodes it to storage.Entry values.
func (c *Client) List(ctx context.Context, path string, recursive bool, anonymous bool, user, password string) ([]storage.Entry, error) {
	req := wire.Packet{
		Kind:    wire.KindRequest,
		SubKind: wire.SubKindList,
		Request: &wire.Request{
			MaxSegmentSize: c.cfg.MaxSegmentSize,
			Anonymous:      anonymous,
			UserName:       user,
			Password:       password,
		},
		ListRequest: &wire.ListRequest{Path: path, Recursive: recursive},
	}
	respPkt, err := c.sendRecvResponse(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := *respPkt.Response
	if !resp.OK {
		return nil, fmt.Errorf("rclient: list rejected: %s", resp.Error)
	}
	payload, err := c.download(ctx, respPkt.RequestID, resp)
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalListing(payload)
}

// Delete removes path and reports whether it was a file.
func (c *Client) Delete(ctx context.Context, path string, anonymous bool, user, password string) (bool, error) {
	req := wire.Packet{
		Kind:    wire.KindRequest,
		SubKind: wire.SubKindDelete,
		Request: &wire.Request{
			Anonymous: anonymous,
			UserName:  user,
			Password:  password,
		},
		DeleteRequest: &wire.DeleteRequest{Path: path},
	}
	respPkt, err := c.sendRecvResponse(ctx, req)
	if err != nil {
		return false, err
	}
	resp := *respPkt.Response
	if !resp.OK {
		return false, fmt.Errorf("rclient: delete rejected: %s", resp.Error)
	}
	if respPkt.DeleteResponse != nil {
		return respPkt.DeleteResponse.IsFile, nil
	}
	return true, nil
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
