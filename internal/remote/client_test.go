package remote

import "testing"

func TestClientGetSystemStateAndStats(t *testing.T) {
	s, err := Listen("127.0.0.1:0", fakeProvider{})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer s.Close()

	c, err := Dial(s.ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	state, err := c.GetSystemState()
	if err != nil {
		t.Fatalf("GetSystemState: %v", err)
	}
	if state.RunState != "running" || state.RunID != "r1" {
		t.Fatalf("unexpected state: %+v", state)
	}

	stats, err := c.GetDAQStats()
	if err != nil {
		t.Fatalf("GetDAQStats: %v", err)
	}
	if stats.BuffersRead != 10 || stats.EventsBuilt != 5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := c.call("unknownMethod", new(struct{})); err == nil {
		t.Fatal("expected an error for an unimplemented method")
	}
}
