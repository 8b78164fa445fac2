package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("boom")

func TestChainFirstSuccessWins(t *testing.T) {
	c := NewChain[string](BreakerConfig{})
	c.Add("a", "A")
	c.Add("b", "B")

	var tried []string
	got, winner, err := Run(context.Background(), c, func(_ context.Context, v string) (string, error) {
		tried = append(tried, v)
		return v + "!", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "A!" || winner != "a" {
		t.Errorf("got %q from %q, want A! from a", got, winner)
	}
	if len(tried) != 1 {
		t.Errorf("fallback tried despite primary success: %v", tried)
	}
}

func TestChainFallsBack(t *testing.T) {
	c := NewChain[string](BreakerConfig{})
	c.Add("a", "A")
	c.Add("b", "B")

	got, winner, err := Run(context.Background(), c, func(_ context.Context, v string) (string, error) {
		if v == "A" {
			return "", errTest
		}
		return v + "!", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "B!" || winner != "b" {
		t.Errorf("got %q from %q, want B! from b", got, winner)
	}
}

func TestChainAllFailed(t *testing.T) {
	c := NewChain[string](BreakerConfig{})
	c.Add("a", "A")
	c.Add("b", "B")

	_, _, err := Run(context.Background(), c, func(_ context.Context, _ string) (string, error) {
		return "", errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("got %v, want ErrAllFailed", err)
	}
}

func TestChainEmpty(t *testing.T) {
	c := NewChain[int](BreakerConfig{})
	_, _, err := Run(context.Background(), c, func(_ context.Context, _ int) (int, error) {
		t.Fatal("fn called on empty chain")
		return 0, nil
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("got %v, want ErrAllFailed", err)
	}
}

func TestChainSkipsOpenBreaker(t *testing.T) {
	c := NewChain[string](BreakerConfig{Trip: 1, Cooldown: time.Hour})
	c.Add("a", "A")
	c.Add("b", "B")

	// Trip a's breaker.
	_, _, err := Run(context.Background(), c, func(_ context.Context, v string) (string, error) {
		return "", errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("setup run: got %v", err)
	}

	var tried []string
	_, winner, err := Run(context.Background(), c, func(_ context.Context, v string) (string, error) {
		tried = append(tried, v)
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if winner != "b" {
		t.Errorf("winner = %q, want b", winner)
	}
	if len(tried) != 1 || tried[0] != "B" {
		t.Errorf("open breaker was not skipped: tried %v", tried)
	}
}

func TestChainContextCancelled(t *testing.T) {
	c := NewChain[string](BreakerConfig{})
	c.Add("a", "A")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Run(ctx, c, func(_ context.Context, v string) (string, error) {
		return v, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
