package telegram

import (
	"context"
	"testing"
)

func TestBotSenderWithoutBot(t *testing.T) {
	if err := NewBotSender().Send(context.Background(), 1, "hi"); err == nil {
		t.Fatal("expected an error before SetBot")
	}
}

func TestRateLimitedSenderForwards(t *testing.T) {
	next := &fakeSender{}
	s := NewRateLimitedSender(next, 1000)

	for i := range 3 {
		if err := s.Send(context.Background(), int64(i), "hi"); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if len(next.sent) != 3 {
		t.Fatalf("forwarded %d messages, want 3", len(next.sent))
	}
}

func TestRateLimitedSenderHonorsContext(t *testing.T) {
	s := NewRateLimitedSender(&fakeSender{}, 0.001)
	ctx := context.Background()
	if err := s.Send(ctx, 1, "first"); err != nil {
		t.Fatalf("first Send: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.Send(cancelled, 1, "second"); err == nil {
		t.Fatal("expected the limiter to give up on a cancelled context")
	}
}
