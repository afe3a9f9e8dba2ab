// Package dns implements a codec-only encoding of an RFC 1035 message
// header, question section, and A-record resource records with
// pointer-based name compression (spec.md §6.4), grounded on
// original_source/src/dns/packets.py for field semantics and on
// other_examples' zp-j-dns msg.go for the compression-pointer bit layout
// (top two bits 0xC0 marking a pointer, 0x00 marking a length-prefixed
// label). Recursive resolution and caching are out of scope (spec.md §1) —
// only Marshal/Unmarshal are exposed.
package dns

import (
	"encoding/binary"
	"errors"
	"strings"
)

var ErrMalformed = errors.New("dns: malformed message")

const (
	TypeA     uint16 = 1
	ClassINET uint16 = 1

	maxPointerHops = 10
)

// Header is the fixed 12-byte RFC 1035 message header.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Question is one entry of the question section.
type Question struct {
	Name  string // dot-separated, no trailing dot
	Type  uint16
	Class uint16
}

// ResourceRecord is one answer/authority/additional entry; Data holds the
// already-decoded RDATA (e.g. 4 bytes for an A record).
type ResourceRecord struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  []byte
}

// Message bundles a header with its question and resource record sections.
type Message struct {
	Header    Header
	Questions []Question
	Answers   []ResourceRecord
}

// Marshal serializes m, compressing repeated names against the first
// occurrence of a matching suffix.
func Marshal(m Message) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint16(buf[0:], m.Header.ID)
	binary.BigEndian.PutUint16(buf[2:], m.Header.Flags)
	binary.BigEndian.PutUint16(buf[4:], uint16(len(m.Questions)))
	binary.BigEndian.PutUint16(buf[6:], uint16(len(m.Answers)))
	binary.BigEndian.PutUint16(buf[8:], 0)
	binary.BigEndian.PutUint16(buf[10:], 0)

	compression := make(map[string]int)
	for _, q := range m.Questions {
		buf = appendName(buf, q.Name, compression)
		buf = appendU16(buf, q.Type)
		buf = appendU16(buf, q.Class)
	}
	for _, rr := range m.Answers {
		buf = appendName(buf, rr.Name, compression)
		buf = appendU16(buf, rr.Type)
		buf = appendU16(buf, rr.Class)
		buf = appendU32(buf, rr.TTL)
		buf = appendU16(buf, uint16(len(rr.Data)))
		buf = append(buf, rr.Data...)
	}
	return buf
}

// appendName encodes name as length-prefixed labels, recording (and reusing)
// compression pointers for suffixes already written.
func appendName(buf []byte, name string, compression map[string]int) []byte {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return append(buf, 0)
	}
	labels := strings.Split(name, ".")
	for i := range labels {
		suffix := strings.Join(labels[i:], ".")
		if off, ok := compression[suffix]; ok && off < 0x3FFF {
			buf = append(buf, byte(0xC0|(off>>8)), byte(off))
			return buf
		}
		compression[suffix] = len(buf)
		label := labels[i]
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	return append(buf, 0)
}

func appendU16(buf []byte, v uint16) []byte {
	tmp := make([]byte, 2)
	binary.BigEndian.PutUint16(tmp, v)
	return append(buf, tmp...)
}

func appendU32(buf []byte, v uint32) []byte {
	tmp := make([]byte, 4)
	binary.BigEndian.PutUint32(tmp, v)
	return append(buf, tmp...)
}

// Unmarshal parses b into a Message. It never panics and never reads past b.
func Unmarshal(b []byte) (Message, error) {
	if len(b) < 12 {
		return Message{}, ErrMalformed
	}
	var m Message
	m.Header.ID = binary.BigEndian.Uint16(b[0:])
	m.Header.Flags = binary.BigEndian.Uint16(b[2:])
	m.Header.QDCount = binary.BigEndian.Uint16(b[4:])
	m.Header.ANCount = binary.BigEndian.Uint16(b[6:])
	m.Header.NSCount = binary.BigEndian.Uint16(b[8:])
	m.Header.ARCount = binary.BigEndian.Uint16(b[10:])

	off := 12
	for i := uint16(0); i < m.Header.QDCount; i++ {
		name, next, err := readName(b, off)
		if err != nil {
			return Message{}, err
		}
		off = next
		if off+4 > len(b) {
			return Message{}, ErrMalformed
		}
		q := Question{
			Name:  name,
			Type:  binary.BigEndian.Uint16(b[off:]),
			Class: binary.BigEndian.Uint16(b[off+2:]),
		}
		off += 4
		m.Questions = append(m.Questions, q)
	}

	for i := uint16(0); i < m.Header.ANCount; i++ {
		name, next, err := readName(b, off)
		if err != nil {
			return Message{}, err
		}
		off = next
		if off+10 > len(b) {
			return Message{}, ErrMalformed
		}
		rr := ResourceRecord{
			Name:  name,
			Type:  binary.BigEndian.Uint16(b[off:]),
			Class: binary.BigEndian.Uint16(b[off+2:]),
			TTL:   binary.BigEndian.Uint32(b[off+4:]),
		}
		rdlength := int(binary.BigEndian.Uint16(b[off+8:]))
		off += 10
		if off+rdlength > len(b) {
			return Message{}, ErrMalformed
		}
		rr.Data = append([]byte(nil), b[off:off+rdlength]...)
		off += rdlength
		m.Answers = append(m.Answers, rr)
	}
	return m, nil
}

// readName decodes a (possibly pointer-compressed) name starting at off,
// returning the name and the offset immediately after its on-the-wire
// encoding (the first pointer byte pair, not any followed location).
func readName(b []byte, off int) (string, int, error) {
	var labels []string
	hops := 0
	consumed := -1
	cur := off
	for {
		if cur >= len(b) {
			return "", 0, ErrMalformed
		}
		lenByte := b[cur]
		switch {
		case lenByte == 0:
			cur++
			if consumed == -1 {
				consumed = cur
			}
			return strings.Join(labels, "."), consumed, nil
		case lenByte&0xC0 == 0xC0:
			if cur+1 >= len(b) {
				return "", 0, ErrMalformed
			}
			if consumed == -1 {
				consumed = cur + 2
			}
			hops++
			if hops > maxPointerHops {
				return "", 0, ErrMalformed
			}
			cur = int(lenByte&0x3F)<<8 | int(b[cur+1])
		case lenByte&0xC0 == 0x00:
			n := int(lenByte)
			cur++
			if cur+n > len(b) {
				return "", 0, ErrMalformed
			}
			labels = append(labels, string(b[cur:cur+n]))
			cur += n
		default:
			return "", 0, ErrMalformed
		}
	}
}
