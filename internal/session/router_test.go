package session

import (
	"context"
	"testing"
	"time"

	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
)

type chanSource chan Batch

func (c chanSource) Subscribe(context.Context) (<-chan Batch, error) { return c, nil }

func TestRouterAppliesInOrder(t *testing.T) {
	s, _ := openSession(t, helloDoc())
	src := make(chanSource, 2)
	src <- Batch{Remote: true, Patches: []patch.Patch{patch.Set{Path: pt.Path{pt.Key("a"), pt.Field("style")}, Value: "h1"}}}
	src <- Batch{Remote: true, Patches: []patch.Patch{patch.Set{Path: pt.Path{pt.Key("a"), pt.Field("style")}, Value: "h2"}}}
	close(src)

	batches, err := src.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := NewRouter(s).Run(context.Background(), batches); err != nil {
		t.Fatalf("Run: %v", err)
	}
	el, _ := s.WorkingValue().Element(0)
	if el.Style != "h2" {
		t.Fatalf("style = %q, want the later batch", el.Style)
	}
}

func TestRouterStopsOnCancel(t *testing.T) {
	s, _ := openSession(t, helloDoc())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRouter(s).Run(ctx, make(chan Batch)) }()
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRouterStopsOnClosedSession(t *testing.T) {
	s, _ := openSession(t, helloDoc())
	_ = s.Close()
	batches := make(chan Batch, 1)
	batches <- Batch{Remote: true}
	if err := NewRouter(s).Run(context.Background(), batches); err != nil {
		t.Fatalf("Run err = %v", err)
	}
}
