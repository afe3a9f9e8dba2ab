// Package wire implements the RDFT packet codec: a tagged union discriminated by
// (Kind, SubKind), serialized little-endian to a byte sequence bounded by the
// transport MTU. Every layer pack/unpack function is total and bounds-checked —
// a truncated or inconsistent buffer returns ErrMalformed, never a panic.
package wire

import (
	"encoding/binary"
	"errors"
)

// Kind is the top-level packet discriminator.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindRequest
	KindResponse
	KindReadyForDownloading
	KindSegment
	KindACK
	KindDownloadComplited
	KindClose
)

// SubKind further discriminates Request/Response packets by operation.
type SubKind uint8

const (
	SubKindUnknown SubKind = iota
	SubKindUpload
	SubKindDownload
	SubKindList
	SubKindDelete
)

// ErrMalformed is returned by Decode for any truncated or inconsistent buffer.
var ErrMalformed = errors.New("wire: malformed packet")

// Request carries transport parameters negotiated on the first packet of a request.
type Request struct {
	DataSize        uint32
	MaxSegmentSize  uint32
	Anonymous       bool
	UserName        string
	Password        string
}

type UploadRequest struct{ Path string }
type DownloadRequest struct{ Path string }
type ListRequest struct {
	Path      string
	Recursive bool
}
type DeleteRequest struct{ Path string }

// Response carries the server's reply to a Request.
type Response struct {
	OK                bool
	Error             string
	DataSize          uint32
	SegmentsAmount    uint32
	SingleSegmentSize uint32
}

type DeleteResponse struct{ IsFile bool }

type Segment struct {
	SegmentID uint32
	Payload   []byte
}

type ACK struct{ SegmentID uint32 }

// Packet is the full tagged union. Only the fields relevant to (Kind, SubKind)
// are populated; callers must branch on Kind/SubKind rather than probe for nil.
type Packet struct {
	Kind      Kind
	SubKind   SubKind
	RequestID uint32

	Request         *Request
	UploadRequest   *UploadRequest
	DownloadRequest *DownloadRequest
	ListRequest     *ListRequest
	DeleteRequest   *DeleteRequest

	Response       *Response
	DeleteResponse *DeleteResponse

	Segment *Segment
	ACK     *ACK
}

// SegmentsAmount computes ceil(dataSize / singleSegmentSize), 0 for an empty transfer.
func SegmentsAmount(dataSize, singleSegmentSize uint32) uint32 {
	if dataSize == 0 {
		return 0
	}
	n := dataSize / singleSegmentSize
	if n*singleSegmentSize < dataSize {
		n++
	}
	return n
}

// --- encoding primitives ---

func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func getU32(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }

func appendStr(buf []byte, s string) []byte {
	b := []byte(s)
	tmp := make([]byte, 4)
	putU32(tmp, uint32(len(b)))
	buf = append(buf, tmp...)
	buf = append(buf, b...)
	return buf
}

func readStr(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, ErrMalformed
	}
	n := getU32(b)
	b = b[4:]
	if uint64(len(b)) < uint64(n) {
		return "", nil, ErrMalformed
	}
	return string(b[:n]), b[n:], nil
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func readBool(b []byte) (bool, []byte, error) {
	if len(b) < 1 {
		return false, nil, ErrMalformed
	}
	return b[0] != 0, b[1:], nil
}

func appendU32(buf []byte, v uint32) []byte {
	tmp := make([]byte, 4)
	putU32(tmp, v)
	return append(buf, tmp...)
}

func readU32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, ErrMalformed
	}
	return getU32(b), b[4:], nil
}

// Encode serializes p to its wire representation.
func Encode(p Packet) []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, byte(p.Kind), byte(p.SubKind))
	buf = appendU32(buf, p.RequestID)

	switch p.Kind {
	case KindRequest:
		r := p.Request
		buf = appendU32(buf, r.DataSize)
		buf = appendU32(buf, r.MaxSegmentSize)
		buf = appendBool(buf, r.Anonymous)
		buf = appendStr(buf, r.UserName)
		buf = appendStr(buf, r.Password)
		switch p.SubKind {
		case SubKindUpload:
			buf = appendStr(buf, p.UploadRequest.Path)
		case SubKindDownload:
			buf = appendStr(buf, p.DownloadRequest.Path)
		case SubKindList:
			buf = appendStr(buf, p.ListRequest.Path)
			buf = appendBool(buf, p.ListRequest.Recursive)
		case SubKindDelete:
			buf = appendStr(buf, p.DeleteRequest.Path)
		}
	case KindResponse:
		r := p.Response
		buf = appendBool(buf, r.OK)
		errBytes := []byte(r.Error)
		buf = append(buf, byte(len(errBytes)))
		buf = append(buf, errBytes...)
		buf = appendU32(buf, r.DataSize)
		buf = appendU32(buf, r.SegmentsAmount)
		buf = appendU32(buf, r.SingleSegmentSize)
		if p.SubKind == SubKindDelete && p.DeleteResponse != nil {
			buf = appendBool(buf, p.DeleteResponse.IsFile)
		}
	case KindSegment:
		s := p.Segment
		buf = appendU32(buf, s.SegmentID)
		buf = appendU32(buf, uint32(len(s.Payload)))
		buf = append(buf, s.Payload...)
	case KindACK:
		buf = appendU32(buf, p.ACK.SegmentID)
	case KindReadyForDownloading, KindDownloadComplited, KindClose, KindUnknown:
		// Basic layer only.
	}
	return buf
}

// Decode parses b into a Packet. It never panics and never reads past b.
func Decode(b []byte) (Packet, error) {
	if len(b) < 6 {
		return Packet{}, ErrMalformed
	}
	p := Packet{Kind: Kind(b[0]), SubKind: SubKind(b[1])}
	reqID, rest, err := readU32(b[2:])
	if err != nil {
		return Packet{}, err
	}
	p.RequestID = reqID

	switch p.Kind {
	case KindRequest:
		var r Request
		var e error
		if r.DataSize, rest, e = readU32(rest); e != nil {
			return Packet{}, e
		}
		if r.MaxSegmentSize, rest, e = readU32(rest); e != nil {
			return Packet{}, e
		}
		if r.Anonymous, rest, e = readBool(rest); e != nil {
			return Packet{}, e
		}
		if r.UserName, rest, e = readStr(rest); e != nil {
			return Packet{}, e
		}
		if r.Password, rest, e = readStr(rest); e != nil {
			return Packet{}, e
		}
		p.Request = &r
		switch p.SubKind {
		case SubKindUpload:
			path, _, e := readStr(rest)
			if e != nil {
				return Packet{}, e
			}
			p.UploadRequest = &UploadRequest{Path: path}
		case SubKindDownload:
			path, _, e := readStr(rest)
			if e != nil {
				return Packet{}, e
			}
			p.DownloadRequest = &DownloadRequest{Path: path}
		case SubKindList:
			path, rest2, e := readStr(rest)
			if e != nil {
				return Packet{}, e
			}
			recursive, _, e := readBool(rest2)
			if e != nil {
				return Packet{}, e
			}
			p.ListRequest = &ListRequest{Path: path, Recursive: recursive}
		case SubKindDelete:
			path, _, e := readStr(rest)
			if e != nil {
				return Packet{}, e
			}
			p.DeleteRequest = &DeleteRequest{Path: path}
		default:
			return Packet{}, ErrMalformed
		}
	case KindResponse:
		var r Response
		var e error
		if r.OK, rest, e = readBool(rest); e != nil {
			return Packet{}, e
		}
		if len(rest) < 1 {
			return Packet{}, ErrMalformed
		}
		errLen := int(rest[0])
		rest = rest[1:]
		if len(rest) < errLen {
			return Packet{}, ErrMalformed
		}
		r.Error = string(rest[:errLen])
		rest = rest[errLen:]
		if r.DataSize, rest, e = readU32(rest); e != nil {
			return Packet{}, e
		}
		if r.SegmentsAmount, rest, e = readU32(rest); e != nil {
			return Packet{}, e
		}
		if r.SingleSegmentSize, rest, e = readU32(rest); e != nil {
			return Packet{}, e
		}
		p.Response = &r
		if p.SubKind == SubKindDelete && len(rest) > 0 {
			isFile, _, e := readBool(rest)
			if e != nil {
				return Packet{}, e
			}
			p.DeleteResponse = &DeleteResponse{IsFile: isFile}
		}
	case KindSegment:
		var s Segment
		var e error
		if s.SegmentID, rest, e = readU32(rest); e != nil {
			return Packet{}, e
		}
		var length uint32
		if length, rest, e = readU32(rest); e != nil {
			return Packet{}, e
		}
		if uint64(len(rest)) < uint64(length) {
			return Packet{}, ErrMalformed
		}
		s.Payload = append([]byte(nil), rest[:length]...)
		p.Segment = &s
	case KindACK:
		segID, _, e := readU32(rest)
		if e != nil {
			return Packet{}, e
		}
		p.ACK = &ACK{SegmentID: segID}
	case KindReadyForDownloading, KindDownloadComplited, KindClose:
		// Basic layer only; no trailing fields to validate.
	case KindUnknown:
		return Packet{}, ErrMalformed
	default:
		return Packet{}, ErrMalformed
	}
	return p, nil
}

// ValidateSegmentID rejects a segment id outside [0, segmentsAmount), per spec:
// the source silently tolerated oversized ids, this implementation does not.
func ValidateSegmentID(id, segmentsAmount uint32) error {
	if id >= segmentsAmount {
		return ErrMalformed
	}
	return nil
}
