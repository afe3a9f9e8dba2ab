package dns

import "testing"

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	m := Message{
		Header: Header{ID: 0xBEEF, Flags: 0x0100, QDCount: 1, ANCount: 1},
		Questions: []Question{
			{Name: "example.com", Type: TypeA, Class: ClassINET},
		},
		Answers: []ResourceRecord{
			{Name: "example.com", Type: TypeA, Class: ClassINET, TTL: 300, Data: []byte{93, 184, 216, 34}},
		},
	}
	raw := Marshal(m)
	got, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Header.ID != m.Header.ID {
		t.Fatalf("id mismatch: %x vs %x", got.Header.ID, m.Header.ID)
	}
	if len(got.Questions) != 1 || got.Questions[0].Name != "example.com" {
		t.Fatalf("question mismatch: %+v", got.Questions)
	}
	if len(got.Answers) != 1 || got.Answers[0].Name != "example.com" {
		t.Fatalf("answer mismatch: %+v", got.Answers)
	}
}

func TestNameCompressionReusesOffset(t *testing.T) {
	m := Message{
		Header: Header{QDCount: 1, ANCount: 1},
		Questions: []Question{
			{Name: "www.example.com", Type: TypeA, Class: ClassINET},
		},
		Answers: []ResourceRecord{
			{Name: "www.example.com", Type: TypeA, Class: ClassINET, TTL: 60, Data: []byte{1, 2, 3, 4}},
		},
	}
	raw := Marshal(m)
	// The answer's name should compress to a pointer (2 bytes) rather than
	// repeating the full label sequence.
	uncompressedNameLen := len("www.example.com") + 2 // length bytes + trailing zero
	// header + question (name, type, class) + answer (pointer, type, class,
	// ttl, rdlength, 4 bytes of rdata)
	want := 12 + (uncompressedNameLen + 4) + (2 + 10 + 4)
	if len(raw) != want {
		t.Fatalf("expected name compression to shrink the wire size to %d bytes, got %d bytes", want, len(raw))
	}

	got, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Answers[0].Name != "www.example.com" {
		t.Fatalf("compressed name decoded wrong: %q", got.Answers[0].Name)
	}
}

func TestUnmarshalNeverPanicsOnTruncation(t *testing.T) {
	m := Message{
		Header:    Header{QDCount: 1},
		Questions: []Question{{Name: "a.b.c", Type: TypeA, Class: ClassINET}},
	}
	raw := Marshal(m)
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
