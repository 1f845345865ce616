package varint

import "testing"

func TestAppendIndexLiteral(t *testing.T) {
	for _, idx := range []uint32{0, 1, 249} {
		got := AppendIndex(nil, idx, -1, false)
		if len(got) != 1 || got[0] != byte(idx) {
			t.Fatalf("AppendIndex(%d): got %v, want single literal byte", idx, got)
		}
	}
}

func TestAppendIndexOneUp(t *testing.T) {
	got := AppendIndex(nil, 43, 42, true)
	if len(got) != 1 || got[0] != OneUp {
		t.Fatalf("AppendIndex one-up: got %v, want [OneUp]", got)
	}
	// Not allowed when oneUpAllowed is false, even if the shape matches.
	got = AppendIndex(nil, 43, 42, false)
	if len(got) != 1 || got[0] != 43 {
		t.Fatalf("AppendIndex with one-up disallowed: got %v, want literal 43", got)
	}
	// Not applicable when index isn't exactly prev+1.
	got = AppendIndex(nil, 44, 42, true)
	if got[0] == OneUp {
		t.Fatalf("AppendIndex applied one-up when index != prev+1")
	}
}

func TestRoundTripAllRanges(t *testing.T) {
	indices := []uint32{0, 1, 249, 250, 251 + 0xffff - 1, 250 + 0xffff, 250 + 0xffff + 0xffffff, 0xffffffff}
	prev := int64(-1)
	var stream []byte
	for _, idx := range indices {
		stream = AppendIndex(stream, idx, prev, false)
		prev = int64(idx)
	}
	prev = -1
	pos := 0
	for _, want := range indices {
		got, n, err := Decode(stream[pos:], prev)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != want {
			t.Fatalf("Decode: got %d want %d", got, want)
		}
		pos += n
		prev = int64(got)
	}
	if pos != len(stream) {
		t.Fatalf("Decode left %d unread bytes", len(stream)-pos)
	}
}

func TestMissingAndEmpty(t *testing.T) {
	stream := AppendMissing(nil)
	stream = AppendEmpty(stream)

	idx, n, err := Decode(stream, -1)
	if err != nil || idx != IndexMissing || n != 1 {
		t.Fatalf("Decode missing: idx=%d n=%d err=%v", idx, n, err)
	}
	idx, n, err = Decode(stream[n:], -1)
	if err != nil || idx != IndexEmpty || n != 1 {
		t.Fatalf("Decode empty: idx=%d n=%d err=%v", idx, n, err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	cases := [][]byte{
		{},
		{esc16, 0x01},
		{esc24, 0x01, 0x02},
		{esc32, 0x01, 0x02, 0x03},
	}
	for _, c := range cases {
		if _, _, err := Decode(c, -1); err == nil {
			t.Fatalf("Decode(%v): want error on truncated input", c)
		}
	}
}

func TestDecodeOneUpWithNoPrevious(t *testing.T) {
	if _, _, err := Decode([]byte{OneUp}, -1); err == nil {
		t.Fatal("Decode: want error for one-up with no previous index")
	}
}
