package future

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// All followers observe the single published value.
func TestFuture_SetWakesWaiters(t *testing.T) {
	t.Parallel()

	f := New[int]()
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			v, err := f.Wait(context.Background())
			if err != nil {
				return err
			}
			if v != 42 {
				return errors.New("unexpected value")
			}
			return nil
		})
	}

	time.Sleep(5 * time.Millisecond)
	if !f.Set(42) {
		t.Fatal("first Set must win")
	}
	if f.Set(7) || f.SetError(errors.New("late")) {
		t.Fatal("second completion must be rejected")
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if !f.IsDone() {
		t.Fatal("future must report done")
	}
}

func TestFuture_SetError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	f := New[string]()
	f.SetError(boom)

	if _, err := f.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
}

// A cancelled follower returns ctx.Err() while the future stays pending.
func TestFuture_WaitContextCancel(t *testing.T) {
	t.Parallel()

	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	if f.IsDone() {
		t.Fatal("future must still be pending")
	}
}
