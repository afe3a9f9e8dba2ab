package dhcp

import (
	"bytes"
	"testing"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	p := Packet{
		Op: 1, HType: 1, HLen: 6, Hops: 0,
		XID: 0x12345678, Secs: 4, Flags: 0x8000,
		CIAddr: [4]byte{0, 0, 0, 0},
		YIAddr: [4]byte{192, 168, 1, 42},
		SIAddr: [4]byte{10, 0, 0, 1},
		GIAddr: [4]byte{0, 0, 0, 0},
		Options: []Option{
			{Tag: 53, Value: []byte{2}}, // DHCPOFFER
			{Tag: 1, Value: []byte{255, 255, 255, 0}},
		},
	}
	copy(p.CHAddr[:], []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})

	raw := Marshal(p)
	got, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.XID != p.XID || got.YIAddr != p.YIAddr || !bytes.Equal(got.CHAddr[:], p.CHAddr[:]) {
		t.Fatalf("header mismatch: %+v", got)
	}
	if len(got.Options) != 2 || got.Options[0].Tag != 53 || got.Options[1].Tag != 1 {
		t.Fatalf("options mismatch: %+v", got.Options)
	}
}

func TestUnmarshalRejectsMissingMagicCookie(t *testing.T) {
	raw := make([]byte, fixedHeaderLen+4)
	if _, err := Unmarshal(raw); err == nil {
		t.Fatalf("expected error for missing magic cookie")
	}
}

func TestUnmarshalNeverPanicsOnTruncation(t *testing.T) {
	p := Packet{Options: []Option{{Tag: 53, Value: []byte{2}}}}
	raw := Marshal(p)
	for i := 0; i <= len(raw); i++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("panicked at truncation %d: %v", i, r)
				}
			}()
			Unmarshal(raw[:i])
		}()
	}
}
