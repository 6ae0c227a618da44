package commands

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/nextlevelbuilder/joinbridge/internal/bus"
	"github.com/nextlevelbuilder/joinbridge/internal/store"
)

func TestSplitReply(t *testing.T) {
	if got := SplitReply("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("short text = %q", got)
	}

	got := SplitReply("aaaa\nbbbb\ncccc", 9)
	want := []string{"aaaa\nbbbb", "cccc"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("line split = %q, want %q", got, want)
	}

	long := strings.Repeat("é", 10) // 20 bytes
	for _, chunk := range SplitReply(long, 7) {
		if len(chunk) > 7 {
			t.Errorf("chunk %q exceeds limit", chunk)
		}
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %q splits a rune", chunk)
		}
	}
	if strings.Join(SplitReply(long, 7), "") != long {
		t.Error("hard split lost content")
	}
}

func TestSplitReply_BoundList(t *testing.T) {
	var lines []string
	for range 200 {
		lines = append(lines, "• someone_with_a_long_name (123456789012345678)")
	}
	text := strings.Join(lines, "\n")
	chunks := SplitReply(text, MaxReplyLength)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c) > MaxReplyLength {
			t.Errorf("chunk length %d > %d", len(c), MaxReplyLength)
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Error("chunk should be cut on a line boundary")
		}
	}
	if strings.Join(chunks, "\n") != text {
		t.Error("rejoined chunks differ from the input")
	}
}

func TestServe_RepliesAndDedupes(t *testing.T) {
	stores := newStores(t, store.BoundUser{ID: "1", Username: "a"})
	d := NewDispatcher(stores, &recordingJoiner{}, fakeLink{})
	mb := bus.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Serve(ctx, mb)
		close(done)
	}()

	msg := guildMsg("!users")
	mb.PublishInbound(ctx, msg)
	mb.PublishInbound(ctx, msg) // replayed event

	rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
	defer rcancel()
	out, ok := mb.SubscribeOutbound(rctx)
	if !ok {
		t.Fatal("no reply published")
	}
	if out.Content != "🔍 Bound Users: 1" || out.ChatID != "c1" || out.ReplyTo != "m1" {
		t.Errorf("outbound = %+v", out)
	}

	qctx, qcancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer qcancel()
	if extra, ok := mb.SubscribeOutbound(qctx); ok {
		t.Errorf("duplicate message produced a second reply: %+v", extra)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
