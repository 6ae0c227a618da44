package bus

import (
	"context"
	"testing"
	"time"
)

func TestMessageBus_InboundRoundTrip(t *testing.T) {
	mb := New()
	ctx := context.Background()

	if !mb.PublishInbound(ctx, InboundMessage{MessageID: "m1", Content: "!users"}) {
		t.Fatal("publish failed")
	}
	msg, ok := mb.ConsumeInbound(ctx)
	if !ok || msg.MessageID != "m1" {
		t.Errorf("ConsumeInbound = (%+v, %v)", msg, ok)
	}
}

func TestMessageBus_ConsumeCancelled(t *testing.T) {
	mb := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Error("expected false after cancellation")
	}
	if _, ok := mb.SubscribeOutbound(ctx); ok {
		t.Error("expected false after cancellation")
	}
}

func TestMessageBus_PublishFullQueueHonorsContext(t *testing.T) {
	mb := New()
	ctx := context.Background()
	for i := 0; i < cap(mb.outbound); i++ {
		mb.PublishOutbound(ctx, OutboundMessage{})
	}

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if mb.PublishOutbound(cctx, OutboundMessage{}) {
		t.Error("publish into a full queue should give up on cancel")
	}
}

func TestDedupeCache(t *testing.T) {
	d := NewDedupeCache(time.Minute, 100)

	if d.IsDuplicate("m1") {
		t.Error("first sighting is not a duplicate")
	}
	if !d.IsDuplicate("m1") {
		t.Error("second sighting is a duplicate")
	}
	if d.IsDuplicate("m2") {
		t.Error("different key is not a duplicate")
	}
	if d.IsDuplicate("") || d.IsDuplicate("") {
		t.Error("empty keys are never duplicates")
	}
}

func TestDedupeCache_Expiry(t *testing.T) {
	d := NewDedupeCache(30*time.Millisecond, 100)
	d.IsDuplicate("m1")
	time.Sleep(60 * time.Millisecond)
	if d.IsDuplicate("m1") {
		t.Error("entry should have expired")
	}
}

func TestDedupeCache_MaxSize(t *testing.T) {
	d := NewDedupeCache(time.Hour, 3)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		d.IsDuplicate(k)
	}
	d.mu.Lock()
	n := len(d.entries)
	d.mu.Unlock()
	if n > 3 {
		t.Errorf("entries = %d, want <= 3", n)
	}
}
