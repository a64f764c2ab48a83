package frame

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{Type: TypeStackFrame, Length: 123, Flags: FlagContinue},
		{Type: TypeBlockRead, Length: 0, Flags: 0},
		{Type: TypeStackError, Length: 1, Flags: FlagSyntaxError | FlagBusError},
		{Type: TypeSystemEvent, Length: 42, SysType: SysEventEndOfFile},
		{Type: TypeSystemEvent, Length: 7, SysType: SysEventCrateConfig, Flags: FlagTimeout},
	}
	for _, h := range cases {
		got := DecodeHeader(h.Encode())
		if got != h {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
		}
	}
}

func TestFlagsPredicates(t *testing.T) {
	f := FlagSyntaxError | FlagContinue
	if !f.Continue() || !f.SyntaxError() || f.Timeout() || f.BusError() {
		t.Fatalf("unexpected predicate results for %v", f)
	}
	if !f.Erred() {
		t.Fatalf("expected Erred() true")
	}
	if (FlagContinue).Erred() {
		t.Fatalf("Continue alone must not count as erred")
	}
}

func TestMaxWordLength(t *testing.T) {
	h := Header{Type: TypeBlockRead, Length: MaxWordLength}
	got := DecodeHeader(h.Encode())
	if got.Length != MaxWordLength {
		t.Fatalf("got %d, want %d", got.Length, MaxWordLength)
	}
}
