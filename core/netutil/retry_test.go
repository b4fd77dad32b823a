package netutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("bad request"), false},
		{"timeout", timeoutErr{}, true},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"url wrapped timeout", &url.Error{Op: "Get", URL: "https://x", Err: timeoutErr{}}, true},
		{"url wrapped plain", &url.Error{Op: "Get", URL: "https://x", Err: errors.New("tls")}, false},
	}
	for _, tc := range cases {
		if got := ShouldRetry(tc.err); got != tc.want {
			t.Fatalf("%s: ShouldRetry = %v, want %v", tc.name, got, tc.want)
		}
	}
}

type flakyTransport struct {
	failures int
	calls    int
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
}

func TestRetryTransportRecoversFromDialErrors(t *testing.T) {
	base := &flakyTransport{failures: 2}
	rt := &RetryTransport{Base: base, MaxRetries: 3, Backoff: time.Millisecond}
	req, _ := http.NewRequest(http.MethodGet, "https://www.instagram.com/", nil)

	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if resp.StatusCode != http.StatusOK || base.calls != 3 {
		t.Fatalf("status=%d calls=%d", resp.StatusCode, base.calls)
	}
}

func TestRetryTransportGivesUp(t *testing.T) {
	base := &flakyTransport{failures: 10}
	rt := &RetryTransport{Base: base, MaxRetries: 1, Backoff: time.Millisecond}
	req, _ := http.NewRequest(http.MethodGet, "https://api.telegram.org/", nil)

	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatal("expected error after retries are exhausted")
	}
	if base.calls != 2 {
		t.Fatalf("calls = %d, want 2", base.calls)
	}
}
