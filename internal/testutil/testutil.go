// Package testutil holds DEPTH16 fixtures, polling waits and HTTP helpers
// shared by the package tests.
package testutil

import (
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// PackDepth16 encodes row-major 16-bit samples as a little-endian DEPTH16
// plane. Samples are written verbatim, so callers can set confidence bits.
func PackDepth16(samples []uint16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], s)
	}
	return buf
}

// UniformDepth16 returns a width*height DEPTH16 plane with every sample set
// to value.
func UniformDepth16(width, height int, value uint16) []byte {
	samples := make([]uint16, width*height)
	for i := range samples {
		samples[i] = value
	}
	return PackDepth16(samples)
}

// WaitFor polls cond every few milliseconds until it returns true or the
// timeout expires, in which case the test fails with msg.
func WaitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("timed out after %v: %s", timeout, msg)
	}
}

// LocalRequest creates an httptest request that appears to come from
// localhost, which tsweb debug routes require.
func LocalRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}
