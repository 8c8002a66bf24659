package bytesbuf

import (
	"io"
	"testing"
	"time"
)

func TestDuplexRoundTrip(t *testing.T) {
	a, b := NewDuplex(16)
	if _, err := a.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 5)
	n, err := b.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestDuplexBlocksUntilCapacityFrees(t *testing.T) {
	a, b := NewDuplex(4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := a.Write([]byte("abcdefgh")); err != nil {
			t.Errorf("write: %v", err)
		}
	}()

	buf := make([]byte, 4)
	if n, err := b.Read(buf); err != nil || n != 4 {
		t.Fatalf("first read: n=%d err=%v", n, err)
	}
	if n, err := b.Read(buf); err != nil || n != 4 {
		t.Fatalf("second read: n=%d err=%v", n, err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer never unblocked")
	}
}

func TestReadDeadlineExceeded(t *testing.T) {
	a, b := NewDuplex(16)
	defer a.Close()
	defer b.Close()
	b.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	buf := make([]byte, 4)
	_, err := b.Read(buf)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestReadEOFAfterWriterClose(t *testing.T) {
	a, b := NewDuplex(16)
	a.Close()
	buf := make([]byte, 4)
	if _, err := b.Read(buf); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}
