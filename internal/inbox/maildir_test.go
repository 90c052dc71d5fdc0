package inbox

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/reply"
	"go.uber.org/zap/zaptest"
)

func deliver(t *testing.T, dir, name, body string) {
	t.Helper()
	tmp := filepath.Join(dir, "tmp", name)
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, "new", name)); err != nil {
		t.Fatalf("deliver: %v", err)
	}
}

func TestMaildirPendingAndAck(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m, err := Open(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	deliver(t, dir, "1700000001.a", "Message-ID: <a@x>\r\nSubject: Re: Review\r\n\r\nREJECT "+hash+"\r\n")
	deliver(t, dir, "1700000002.b", "Subject: Re: Review\r\n\r\n\r\n")

	got, err := m.Pending(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(got))
	}
	if got[0].MessageID != "<a@x>" || got[1].MessageID != "<1700000002.b>" {
		t.Fatalf("unexpected ids %q %q", got[0].MessageID, got[1].MessageID)
	}

	if err := m.Ack(got[0]); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "cur", "1700000001.a:2,S")); err != nil {
		t.Fatalf("acked reply not in cur: %v", err)
	}
	if err := m.Ack(got[0]); err == nil {
		t.Fatalf("second ack should fail")
	}

	again, err := m.Pending(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(again) != 1 || again[0].MessageID != "<1700000002.b>" {
		t.Fatalf("unacked reply should remain pending, got %+v", again)
	}
}

func TestMaildirWatch(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- m.Watch(ctx, 50*time.Millisecond, func(context.Context) {
			calls.Add(1)
			cancel()
		})
	}()

	// Give the watcher time to register before delivering.
	time.Sleep(100 * time.Millisecond)
	deliver(t, dir, "1700000003.c", "Subject: x\r\n\r\nAPPROVE "+hash+"\r\n")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("watch did not return")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one callback, got %d", calls.Load())
	}
}

func TestMaildirAckDuplicateDelivery(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m, err := Open(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	msg := "Message-ID: <dup@x>\r\nSubject: Re: Review\r\n\r\nREJECT " + hash + "\r\n"
	deliver(t, dir, "1700000001.a", msg)
	deliver(t, dir, "1700000002.b", msg)

	got, err := m.Pending(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(got))
	}
	for i, r := range got {
		if err := m.Ack(r); err != nil {
			t.Fatalf("ack %d: %v", i, err)
		}
	}
	left, _ := os.ReadDir(filepath.Join(dir, "new"))
	if len(left) != 0 {
		t.Fatalf("expected new/ to be empty, %d files left", len(left))
	}
	for _, name := range []string{"1700000001.a:2,S", "1700000002.b:2,S"} {
		if _, err := os.Stat(filepath.Join(dir, "cur", name)); err != nil {
			t.Fatalf("%s not in cur: %v", name, err)
		}
	}
}

func TestMaildirPendingTwiceDoesNotDoubleQueue(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m, err := Open(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	deliver(t, dir, "1700000001.a", "Message-ID: <a@x>\r\nSubject: x\r\n\r\nREJECT "+hash+"\r\n")
	for i := 0; i < 2; i++ {
		if _, err := m.Pending(context.Background()); err != nil {
			t.Fatalf("pending: %v", err)
		}
	}
	r := reply.Reply{MessageID: "<a@x>"}
	if err := m.Ack(r); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := m.Ack(r); err == nil {
		t.Fatalf("second ack should fail")
	}
}
