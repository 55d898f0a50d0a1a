package adapter

import (
	"context"

	"meddoc-assistant/internal/domain/model"
)

// AssistantStreamer is the port for the streaming answer backend.
//
// Ask opens a single logical request for the given session/question and
// returns a one-shot event sequence. Implementations must:
//   - deliver events in arrival order,
//   - emit exactly one terminal event (end or error) and then close the channel,
//   - surface transport failures, non-2xx responses and malformed payloads as
//     a single synthetic error event followed by channel close.
//
// The sequence is not restartable; every Ask call is a fresh request.
type AssistantStreamer interface {
	Ask(ctx context.Context, session *model.ChatSession, question string) (<-chan model.StreamEvent, error)

	// CountTokens returns prompt tokens for the text, best-effort when the
	// provider has no exact counter. Used for usage metrics only.
	CountTokens(ctx context.Context, text string) (int, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}
