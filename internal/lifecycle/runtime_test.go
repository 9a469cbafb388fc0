package lifecycle

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type testComponent struct {
	name     string
	startErr error
	stopErr  error
	events   *[]string
}

func (c *testComponent) Start(ctx context.Context) error {
	*c.events = append(*c.events, "start:"+c.name)
	return c.startErr
}

func (c *testComponent) Stop(ctx context.Context) error {
	*c.events = append(*c.events, "stop:"+c.name)
	return c.stopErr
}

func TestStartsInOrderStopsInReverse(t *testing.T) {
	t.Parallel()

	events := []string{}
	r := NewRuntime(
		&testComponent{name: "a", events: &events},
		&testComponent{name: "b", events: &events},
	)

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "stop:b", "stop:a"}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("unexpected events %v, want %v", events, want)
	}
}

func TestStartFailureStopsStartedComponents(t *testing.T) {
	t.Parallel()

	events := []string{}
	boom := errors.New("boom")
	r := NewRuntime(
		&testComponent{name: "a", events: &events},
		&testComponent{name: "b", startErr: boom, events: &events},
		&testComponent{name: "c", events: &events},
	)

	err := r.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}

	want := []string{"start:a", "start:b", "stop:a"}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("unexpected events %v, want %v", events, want)
	}
}

func TestStopCollectsErrors(t *testing.T) {
	t.Parallel()

	events := []string{}
	boom := errors.New("boom")
	r := NewRuntime(
		&testComponent{name: "a", stopErr: boom, events: &events},
		&testComponent{name: "b", events: &events},
	)

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Stop(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected stop error, got %v", err)
	}
}

func TestRegisterIgnoresNil(t *testing.T) {
	t.Parallel()

	r := NewRuntime()
	r.Register(nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
}
