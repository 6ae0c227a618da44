package commands

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/joinbridge/internal/bus"
)

// MaxReplyLength is Discord's per-message content limit.
const MaxReplyLength = 2000

// Serve consumes inbound messages until ctx is cancelled, running each one
// in its own goroutine so a long batch join never holds up other commands.
// Replies are published to the outbound queue. Serve waits for in-flight
// commands before returning.
func (d *Dispatcher) Serve(ctx context.Context, mb *bus.MessageBus) {
	dedupe := bus.NewDedupeCache(10*time.Minute, 5000)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		msg, ok := mb.ConsumeInbound(ctx)
		if !ok {
			return
		}
		if dedupe.IsDuplicate(msg.Channel + ":" + msg.MessageID) {
			slog.Debug("duplicate inbound message dropped", "message_id", msg.MessageID)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, ok := d.Handle(ctx, msg)
			if !ok {
				return
			}
			for _, chunk := range SplitReply(reply, MaxReplyLength) {
				mb.PublishOutbound(ctx, bus.OutboundMessage{
					Channel: msg.Channel,
					ChatID:  msg.ChatID,
					ReplyTo: msg.MessageID,
					Content: chunk,
				})
			}
		}()
	}
}

// SplitReply breaks text into chunks of at most limit bytes, cutting on line
// boundaries. A single line longer than limit is cut at the last rune
// boundary that fits.
func SplitReply(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for line := range strings.SplitSeq(text, "\n") {
		for len(line) > limit {
			flush()
			cut := limit
			for cut > 0 && !isRuneStart(line[cut]) {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		extra := len(line)
		if cur.Len() > 0 {
			extra++
		}
		if cur.Len()+extra > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
