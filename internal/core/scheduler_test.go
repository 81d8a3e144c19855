package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingPurger struct {
	calls atomic.Int32
}

func (p *countingPurger) PurgeExpired(ctx context.Context) (int64, error) {
	p.calls.Add(1)
	return 2, nil
}

func TestStartStatsSweeper(t *testing.T) {
	p := &countingPurger{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- StartStatsSweeper(ctx, p, "@every 1h") }()

	deadline := time.After(2 * time.Second)
	for p.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not run at startup")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("StartStatsSweeper = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestStartStatsSweeper_BadSchedule(t *testing.T) {
	if err := StartStatsSweeper(context.Background(), &countingPurger{}, "not a schedule"); err == nil {
		t.Error("invalid schedule should fail")
	}
}
