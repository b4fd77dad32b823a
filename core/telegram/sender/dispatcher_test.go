package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})

	var calls atomic.Int32
	done := make(chan struct{})
	err := d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		if calls.Add(1) < 3 {
			return &net.OpError{Op: "read", Err: syscall.ECONNRESET}
		}
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not succeed")
	}
	d.Close()
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
	if d.ErrorCount() != 0 {
		t.Fatalf("ErrorCount = %d, want 0", d.ErrorCount())
	}
}

func TestDispatcherPermanentErrorCounted(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	_ = d.Enqueue(context.Background(), "send.text", "", func() error {
		calls.Add(1)
		return errors.New("telegram: chat not found (400)")
	})
	d.Close()
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("ErrorCount = %d, want 1", d.ErrorCount())
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	d.Close()
	if err := d.Enqueue(context.Background(), "a", "", func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Enqueue after Close = %v, want ErrQueueClosed", err)
	}
}

func TestRedactError(t *testing.T) {
	base := errors.New("boom")
	err := RedactError(fmt.Errorf(`Post "https://api.telegram.org/bot123456:AAH-x_y/sendMessage": %w`, base))
	if got := err.Error(); got != `Post "https://api.telegram.org/bot<redacted>/sendMessage": boom` {
		t.Fatalf("RedactError = %q", got)
	}
	if !errors.Is(err, base) {
		t.Fatal("redacted error lost its cause")
	}
	if RedactError(nil) != nil {
		t.Fatal("RedactError(nil) != nil")
	}
}

func TestClassifyError(t *testing.T) {
	cases := map[string]error{
		"timeout":  context.DeadlineExceeded,
		"dns":      &net.DNSError{Err: "no such host", Name: "api.telegram.org"},
		"http_4xx": errors.New("telegram: message is too long (400)"),
		"http_5xx": errors.New("telegram: internal error (502)"),
		"unknown":  errors.New("boom"),
	}
	for want, err := range cases {
		if got := ClassifyError(err); got != want {
			t.Errorf("ClassifyError(%v) = %q, want %q", err, got, want)
		}
	}
}
