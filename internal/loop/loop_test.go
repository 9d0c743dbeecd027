package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc, chan struct{}) {
	t.Helper()
	l := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(exited)
	}()
	return l, cancel, exited
}

func TestDoRunsSerially(t *testing.T) {
	l, cancel, exited := startLoop(t)
	defer func() { cancel(); <-exited }()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Do(context.Background(), func() { counter++ }); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	var got int
	if err := l.Do(context.Background(), func() { got = counter }); err != nil {
		t.Fatal(err)
	}
	if got != 50 {
		t.Errorf("counter = %d, want 50", got)
	}
}

func TestPost(t *testing.T) {
	l, cancel, exited := startLoop(t)
	defer func() { cancel(); <-exited }()

	ran := make(chan struct{})
	if !l.Post(func() { close(ran) }) {
		t.Fatal("Post rejected on running loop")
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("posted job never ran")
	}
}

func TestStoppedLoop(t *testing.T) {
	l, cancel, exited := startLoop(t)
	cancel()
	<-exited

	if err := l.Do(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Do after stop = %v", err)
	}
	if l.Post(func() {}) {
		t.Error("Post after stop reported success")
	}
}

func TestDoContextCancelled(t *testing.T) {
	l := New(0) // never run
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Do(ctx, func() {}); !errors.Is(err, context.Canceled) {
		t.Errorf("Do = %v, want context.Canceled", err)
	}
}
