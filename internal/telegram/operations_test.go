package telegram

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCallReturnsWhenRequestStalls(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	o := &Operations{}
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	err := o.call(ctx, "edit caption", func() error {
		<-release
		return nil
	})
	if err == nil {
		t.Fatal("expected deadline error from stalled request")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("call held the caller for %v past a 20ms deadline", elapsed)
	}
}

func TestCallHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := &Operations{}
	release := make(chan struct{})
	defer close(release)

	err := o.call(ctx, "send message", func() error {
		<-release
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCallWrapsRequestError(t *testing.T) {
	t.Parallel()

	o := &Operations{}
	errDown := errors.New("telegram down")
	err := o.call(context.Background(), "send video", func() error { return errDown })
	if !errors.Is(err, errDown) {
		t.Fatalf("expected wrapped request error, got %v", err)
	}
	if got := err.Error(); got != "send video: telegram down" {
		t.Fatalf("unexpected error text %q", got)
	}
}

func TestChatRefConfig(t *testing.T) {
	t.Parallel()

	byID := ChatRef{ID: -1001000000001}.chatConfig()
	if byID.ChatID != -1001000000001 || byID.SuperGroupUsername != "" {
		t.Fatalf("unexpected config for numeric ref: %+v", byID)
	}

	byName := ChatRef{Username: "menfeschannel"}.chatConfig()
	if byName.SuperGroupUsername != "@menfeschannel" {
		t.Fatalf("unexpected config for username ref: %+v", byName)
	}
}
