package ai

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/domain/ports/adapter"
)

var _ adapter.AssistantStreamer = (*NoopAdapter)(nil)

// NoopAdapter streams a deterministic scripted answer for local/dev use and
// tests; no network is involved.
type NoopAdapter struct {
	reply string
	delay time.Duration
}

func NewNoopAdapter() *NoopAdapter {
	return &NoopAdapter{
		reply: "This is a simulated assistant answer for development.",
		delay: 10 * time.Millisecond,
	}
}

func (a *NoopAdapter) Name() string { return "noop" }

func (a *NoopAdapter) CountTokens(ctx context.Context, text string) (int, error) {
	return (len(text) + 3) / 4, nil
}

func (a *NoopAdapter) Ask(ctx context.Context, session *model.ChatSession, question string) (<-chan model.StreamEvent, error) {
	if err := ValidateQuestion(session, question); err != nil {
		return nil, err
	}

	out := make(chan model.StreamEvent)
	go func() {
		defer close(out)
		if !emit(ctx, out, model.StreamEvent{Type: model.EventStart, InteractionID: ulid.Make().String()}) {
			return
		}
		// One word per delta so the UI gets a visible typing effect.
		for _, w := range strings.SplitAfter(a.reply, " ") {
			select {
			case <-time.After(a.delay):
			case <-ctx.Done():
				return
			}
			if !emit(ctx, out, model.StreamEvent{Type: model.EventContent, Content: w}) {
				return
			}
		}
		emit(ctx, out, model.StreamEvent{Type: model.EventEnd})
	}()
	return out, nil
}
