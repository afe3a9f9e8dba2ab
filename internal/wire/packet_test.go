package wire

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, p Packet) Packet {
	t.Helper()
	b := Encode(p)
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("decode(encode(p)) failed: %v", err)
	}
	return got
}

func TestRoundTripRequestUpload(t *testing.T) {
	p := Packet{
		Kind: KindRequest, SubKind: SubKindUpload, RequestID: 42,
		Request:       &Request{DataSize: 100, MaxSegmentSize: 500, Anonymous: false, UserName: "alice", Password: "secret"},
		UploadRequest: &UploadRequest{Path: "a/b.txt"},
	}
	got := roundTrip(t, p)
	if got.RequestID != 42 || got.Request.UserName != "alice" || got.UploadRequest.Path != "a/b.txt" {
		t.Fatalf("mismatch: %+v", got)
	}
}

func TestRoundTripListRequest(t *testing.T) {
	p := Packet{
		Kind: KindRequest, SubKind: SubKindList, RequestID: 7,
		Request:     &Request{Anonymous: true},
		ListRequest: &ListRequest{Path: "dir", Recursive: true},
	}
	got := roundTrip(t, p)
	if !got.ListRequest.Recursive || got.ListRequest.Path != "dir" {
		t.Fatalf("mismatch: %+v", got.ListRequest)
	}
}

func TestRoundTripResponseError(t *testing.T) {
	p := Packet{
		Kind: KindResponse, SubKind: SubKindUnknown, RequestID: 0,
		Response: &Response{OK: false, Error: "not found"},
	}
	got := roundTrip(t, p)
	if got.Response.OK || got.Response.Error != "not found" {
		t.Fatalf("mismatch: %+v", got.Response)
	}
}

func TestRoundTripDeleteResponse(t *testing.T) {
	p := Packet{
		Kind: KindResponse, SubKind: SubKindDelete, RequestID: 3,
		Response:       &Response{OK: true},
		DeleteResponse: &DeleteResponse{IsFile: true},
	}
	got := roundTrip(t, p)
	if got.DeleteResponse == nil || !got.DeleteResponse.IsFile {
		t.Fatalf("mismatch: %+v", got.DeleteResponse)
	}
}

func TestRoundTripSegment(t *testing.T) {
	payload := []byte("0123456789")
	p := Packet{Kind: KindSegment, RequestID: 9, Segment: &Segment{SegmentID: 2, Payload: payload}}
	got := roundTrip(t, p)
	if got.Segment.SegmentID != 2 || !bytes.Equal(got.Segment.Payload, payload) {
		t.Fatalf("mismatch: %+v", got.Segment)
	}
}

func TestRoundTripACK(t *testing.T) {
	p := Packet{Kind: KindACK, RequestID: 9, ACK: &ACK{SegmentID: 5}}
	got := roundTrip(t, p)
	if got.ACK.SegmentID != 5 {
		t.Fatalf("mismatch: %+v", got.ACK)
	}
}

func TestRoundTripControlOnly(t *testing.T) {
	for _, k := range []Kind{KindReadyForDownloading, KindDownloadComplited, KindClose} {
		p := Packet{Kind: k, RequestID: 1}
		got := roundTrip(t, p)
		if got.Kind != k || got.RequestID != 1 {
			t.Fatalf("mismatch for kind %v: %+v", k, got)
		}
	}
}

func TestDecodeTruncatedNeverPanics(t *testing.T) {
	full := Encode(Packet{
		Kind: KindSegment, RequestID: 1,
		Segment: &Segment{SegmentID: 1, Payload: []byte("hello world")},
	})
	for i := 0; i <= len(full); i++ {
		if _, err := Decode(full[:i]); err != nil && i == len(full) {
			t.Fatalf("full buffer should decode cleanly, got %v", err)
		}
	}
}

func TestSegmentsAmount(t *testing.T) {
	cases := []struct{ dataSize, seg, want uint32 }{
		{0, 100, 0},
		{1, 100, 1},
		{100, 100, 1},
		{101, 100, 2},
		{1000, 10, 100},
	}
	for _, c := range cases {
		if got := SegmentsAmount(c.dataSize, c.seg); got != c.want {
			t.Fatalf("SegmentsAmount(%d,%d)=%d want %d", c.dataSize, c.seg, got, c.want)
		}
	}
}

func TestValidateSegmentID(t *testing.T) {
	if err := ValidateSegmentID(4, 5); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := ValidateSegmentID(5, 5); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed for out-of-range id, got %v", err)
	}
}
