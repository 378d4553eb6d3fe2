package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func startEnd(t *testing.T, e *PipeEnd) chan []byte {
	t.Helper()

	got := make(chan []byte, 16)
	e.SetReceiver(func(msg Message) {
		got <- msg
	})
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %+v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return got
}

func TestPipeDelivery(t *testing.T) {
	a, b := NewPipe(4)
	fromB := startEnd(t, a)
	fromA := startEnd(t, b)

	if err := a.Send([]byte("ping")); err != nil {
		t.Fatalf("Send: %+v", err)
	}
	if err := b.Send([]byte("pong")); err != nil {
		t.Fatalf("Send: %+v", err)
	}

	select {
	case msg := <-fromA:
		if string(msg) != "ping" {
			t.Fatalf("b received %q, want ping", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("b never received")
	}

	select {
	case msg := <-fromB:
		if string(msg) != "pong" {
			t.Fatalf("a received %q, want pong", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("a never received")
	}

	if a.ID() == b.ID() || a.ID() == "" {
		t.Fatalf("ends share an id: %q / %q", a.ID(), b.ID())
	}
}

func TestPipeCopiesPayload(t *testing.T) {
	a, b := NewPipe(4)
	fromA := startEnd(t, b)
	_ = startEnd(t, a)

	buf := []byte("original")
	if err := a.Send(buf); err != nil {
		t.Fatalf("Send: %+v", err)
	}
	copy(buf, "CLOBBER!")

	select {
	case msg := <-fromA:
		if !bytes.Equal(msg, []byte("original")) {
			t.Fatalf("received %q; sender's buffer reuse leaked through", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("never received")
	}
}

func TestPipeClose(t *testing.T) {
	a, b := NewPipe(4)
	_ = startEnd(t, a)
	_ = startEnd(t, b)

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %+v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %+v", err)
	}

	if err := a.Send([]byte("late")); !errors.Is(err, ErrPipeClosed) {
		t.Fatalf("Send after Close = %v, want ErrPipeClosed", err)
	}
	if err := a.Start(); !errors.Is(err, ErrPipeClosed) {
		t.Fatalf("Start after Close = %v, want ErrPipeClosed", err)
	}

	// the other end keeps working toward a closed peer without error
	if err := b.Send([]byte("into the void")); err != nil {
		t.Fatalf("peer Send after remote close: %+v", err)
	}
}

func TestPipeBufferFull(t *testing.T) {
	a, _ := NewPipe(1)
	// no pumps started; the single buffer slot fills immediately

	if err := a.Send([]byte("one")); err != nil {
		t.Fatalf("Send: %+v", err)
	}
	if err := a.Send([]byte("two")); err == nil {
		t.Fatal("Send succeeded past the buffer capacity")
	}
}
