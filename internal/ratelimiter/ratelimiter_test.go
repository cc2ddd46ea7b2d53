package ratelimiter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetDelay(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		chatID   int64
		lastSent time.Time
		wantZero bool
	}{
		{
			"Private chat - no delay needed",
			123456789,
			now.Add(-2 * time.Second),
			true,
		},
		{
			"Private chat - delay needed",
			123456789,
			now.Add(-500 * time.Millisecond),
			false,
		},
		{
			"Group chat - no delay needed",
			-123456789,
			now.Add(-4 * time.Second),
			true,
		},
		{
			"Group chat - delay needed",
			-123456789,
			now.Add(-1 * time.Second),
			false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := getDelay(test.chatID, test.lastSent)

			if test.wantZero && got > 0 {
				t.Errorf("Expected zero delay, got %v", got)
			}

			if !test.wantZero && got <= 0 {
				t.Errorf("Expected positive delay, got %v", got)
			}
		})
	}
}

func TestGetRate(t *testing.T) {
	tests := []struct {
		name   string
		chatID int64
		want   time.Duration
	}{
		{"PrivateChatRate", 1, privateChatRate},
		{"GroupChatRate", -1, groupChatRate},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := getRate(test.chatID); got != test.want {
				t.Errorf("Expected %v rate, got %v", test.want, got)
			}
		})
	}
}

func TestSendReturnsSendError(t *testing.T) {
	rl := New(discardLogger())
	defer rl.Stop()

	want := errors.New("bad request")
	err := rl.Send(context.Background(), 1, func(context.Context) error { return want })

	if !errors.Is(err, want) {
		t.Fatalf("expected send error, got %v", err)
	}
}

func TestSendPacesSameChat(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the private chat rate")
	}

	rl := New(discardLogger())
	defer rl.Stop()

	var (
		mu    sync.Mutex
		times []time.Time
	)
	record := func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()

		times = append(times, time.Now())

		return nil
	}

	for range 2 {
		if err := rl.Send(context.Background(), 42, record); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if gap := times[1].Sub(times[0]); gap < privateChatRate-50*time.Millisecond {
		t.Fatalf("expected messages to be paced, gap was %v", gap)
	}
}

func TestSendHonorsCanceledContext(t *testing.T) {
	rl := New(discardLogger())
	defer rl.Stop()

	if err := rl.Send(context.Background(), 7, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	called := false
	err := rl.Send(ctx, 7, func(context.Context) error {
		called = true
		return nil
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	rl.Stop()

	if called {
		t.Fatalf("expected paced send to be dropped after deadline")
	}
}

func TestSendAfterStop(t *testing.T) {
	rl := New(discardLogger())
	rl.Stop()

	err := rl.Send(context.Background(), 1, func(context.Context) error { return nil })
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
