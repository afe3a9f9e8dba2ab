// Package dhcp implements a codec-only encoding of the BOOTP fixed header
// plus a TLV options area (spec.md §6.4), grounded on
// original_source/src/dhcp/packets.py for field layout and on the other
// examples' DHCP client for the general big-endian network-order idiom.
// Lease tables, handler wiring, and the rest of the DHCP server's business
// logic are out of scope (spec.md §1) — only Marshal/Unmarshal are exposed.
package dhcp

import (
	"encoding/binary"
	"errors"
)

// MagicCookie identifies the start of the options area (RFC 2131 §3).
var MagicCookie = [4]byte{99, 130, 83, 99}

var ErrMalformed = errors.New("dhcp: malformed packet")

// Packet is the BOOTP fixed header plus TLV options.
type Packet struct {
	Op      byte
	HType   byte
	HLen    byte
	Hops    byte
	XID     uint32
	Secs    uint16
	Flags   uint16
	CIAddr  [4]byte
	YIAddr  [4]byte
	SIAddr  [4]byte
	GIAddr  [4]byte
	CHAddr  [16]byte
	SName   [64]byte
	File    [128]byte
	Options []Option
}

// Option is one tag/len/value TLV entry in the options area.
type Option struct {
	Tag   byte
	Value []byte
}

const fixedHeaderLen = 1 + 1 + 1 + 1 + 4 + 2 + 2 + 4 + 4 + 4 + 4 + 16 + 64 + 128 // 236

// Marshal serializes p to its wire representation: the fixed BOOTP header,
// the magic cookie, then each option as tag/len/value, terminated by the
// 0xFF end tag.
func Marshal(p Packet) []byte {
	buf := make([]byte, 0, fixedHeaderLen+4+16)
	buf = append(buf, p.Op, p.HType, p.HLen, p.Hops)
	buf = appendU32(buf, p.XID)
	buf = appendU16(buf, p.Secs)
	buf = appendU16(buf, p.Flags)
	buf = append(buf, p.CIAddr[:]...)
	buf = append(buf, p.YIAddr[:]...)
	buf = append(buf, p.SIAddr[:]...)
	buf = append(buf, p.GIAddr[:]...)
	buf = append(buf, p.CHAddr[:]...)
	buf = append(buf, p.SName[:]...)
	buf = append(buf, p.File[:]...)
	buf = append(buf, MagicCookie[:]...)
	for _, opt := range p.Options {
		buf = append(buf, opt.Tag, byte(len(opt.Value)))
		buf = append(buf, opt.Value...)
	}
	buf = append(buf, 0xFF)
	return buf
}

// Unmarshal parses b into a Packet. It never panics and never reads past b.
func Unmarshal(b []byte) (Packet, error) {
	if len(b) < fixedHeaderLen+4 {
		return Packet{}, ErrMalformed
	}
	var p Packet
	p.Op, p.HType, p.HLen, p.Hops = b[0], b[1], b[2], b[3]
	off := 4
	p.XID = binary.BigEndian.Uint32(b[off:])
	off += 4
	p.Secs = binary.BigEndian.Uint16(b[off:])
	off += 2
	p.Flags = binary.BigEndian.Uint16(b[off:])
	off += 2
	copy(p.CIAddr[:], b[off:off+4])
	off += 4
	copy(p.YIAddr[:], b[off:off+4])
	off += 4
	copy(p.SIAddr[:], b[off:off+4])
	off += 4
	copy(p.GIAddr[:], b[off:off+4])
	off += 4
	copy(p.CHAddr[:], b[off:off+16])
	off += 16
	copy(p.SName[:], b[off:off+64])
	off += 64
	copy(p.File[:], b[off:off+128])
	off += 128

	if off+4 > len(b) || [4]byte(b[off:off+4]) != MagicCookie {
		return Packet{}, ErrMalformed
	}
	off += 4

	for off < len(b) {
		tag := b[off]
		off++
		if tag == 0xFF {
			break
		}
		if tag == 0x00 {
			continue // pad
		}
		if off >= len(b) {
			return Packet{}, ErrMalformed
		}
		length := int(b[off])
		off++
		if off+length > len(b) {
			return Packet{}, ErrMalformed
		}
		p.Options = append(p.Options, Option{Tag: tag, Value: append([]byte(nil), b[off:off+length]...)})
		off += length
	}
	return p, nil
}

func appendU32(buf []byte, v uint32) []byte {
	tmp := make([]byte, 4)
	binary.BigEndian.PutUint32(tmp, v)
	return append(buf, tmp...)
}

func appendU16(buf []byte, v uint16) []byte {
	tmp := make([]byte, 2)
	binary.BigEndian.PutUint16(tmp, v)
	return append(buf, tmp...)
}
