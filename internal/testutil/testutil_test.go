package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPackDepth16_LittleEndian(t *testing.T) {
	got := PackDepth16([]uint16{0x1234, 0xE001})
	want := []byte{0x34, 0x12, 0x01, 0xE0}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestUniformDepth16(t *testing.T) {
	buf := UniformDepth16(3, 2, 1250)
	if len(buf) != 12 {
		t.Fatalf("len = %d, want 12", len(buf))
	}
	for i := 0; i < len(buf); i += 2 {
		if v := uint16(buf[i]) | uint16(buf[i+1])<<8; v != 1250 {
			t.Errorf("sample %d = %d, want 1250", i/2, v)
		}
	}
}

func TestWaitFor(t *testing.T) {
	var flag atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		flag.Store(true)
	}()

	WaitFor(t, time.Second, "flag never set", flag.Load)
}

func TestAssertStatusCode(t *testing.T) {
	AssertStatusCode(t, 200, 200)
	AssertNoError(t, nil)
}

func TestLocalRequest(t *testing.T) {
	req := LocalRequest("GET", "/debug/", nil)
	if req.RemoteAddr != "127.0.0.1:12345" {
		t.Errorf("RemoteAddr = %q, want loopback", req.RemoteAddr)
	}
	if req.Method != "GET" || req.URL.Path != "/debug/" {
		t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
	}
}
