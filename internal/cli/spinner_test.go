package cli

import (
	"context"
	"testing"
	"time"
)

func TestSpinnerStartStop(t *testing.T) {
	s := newSpinner(context.Background(), "working")
	s.Start()
	time.Sleep(120 * time.Millisecond)
	s.Stop()
}

func TestSpinnerStopWithoutStart(t *testing.T) {
	s := newSpinner(context.Background(), "working")
	s.Start()
	s.Stop()
	// A second Stop must not panic or block.
	s.Stop()
}

func TestSpinnerContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSpinner(ctx, "working")
	s.Start()
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after context cancellation")
	}
}
