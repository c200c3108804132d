package media

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestLoopbackFrames(t *testing.T) {
	a, b := NewLoopbackPair(4)
	defer a.Close()
	defer b.Close()
	ctx := context.Background()

	f := NewFrame(2, 2, FormatRGBA)
	f.Timestamp = 42
	if err := a.SendFrame(ctx, f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := b.ReceiveFrame(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Timestamp != 42 {
		t.Errorf("expected timestamp 42, got %d", got.Timestamp)
	}

	// reverse direction
	if err := b.SendFrame(ctx, NewFrame(1, 1, FormatRGB24)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := a.ReceiveFrame(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoopbackEndOfStream(t *testing.T) {
	t.Run("DrainThenEOF", func(t *testing.T) {
		a, b := NewLoopbackPair(4)
		ctx := context.Background()

		a.SendFrame(ctx, NewFrame(1, 1, FormatRGBA))
		a.SendFrame(ctx, NewFrame(1, 1, FormatRGBA))
		a.Close()

		for i := 0; i < 2; i++ {
			if _, err := b.ReceiveFrame(ctx); err != nil {
				t.Fatalf("frame %d lost at close: %v", i, err)
			}
		}
		if _, err := b.ReceiveFrame(ctx); !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF, got %v", err)
		}
	})

	t.Run("SendAfterPeerClose", func(t *testing.T) {
		a, b := NewLoopbackPair(1)
		b.Close()
		err := a.SendFrame(context.Background(), NewFrame(1, 1, FormatRGBA))
		if err == nil {
			t.Error("expected error sending to a closed peer")
		}
	})

	t.Run("CloseIdempotent", func(t *testing.T) {
		a, b := NewLoopbackPair(1)
		_ = b
		if err := a.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := a.Close(); err != nil {
			t.Fatalf("second close failed: %v", err)
		}
	})
}

func TestLoopbackText(t *testing.T) {
	a, b := NewLoopbackPair(1)
	defer a.Close()
	defer b.Close()

	received := make(chan string, 1)
	b.OnText(func(s string) { received <- s })

	opened := false
	b.OnOpen(func() { opened = true })
	if !opened {
		t.Error("loopback channel should be open at registration")
	}

	if err := a.SendText(context.Background(), "(10, 20)"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case s := <-received:
		if s != "(10, 20)" {
			t.Errorf("expected %q, got %q", "(10, 20)", s)
		}
	case <-time.After(time.Second):
		t.Fatal("text not delivered")
	}
}

func TestLoopbackReceiveCancel(t *testing.T) {
	a, b := NewLoopbackPair(1)
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := b.ReceiveFrame(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
