package ai

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/domain/ports/adapter"
)

var _ adapter.AssistantStreamer = (*OpenAIAdapter)(nil)

const systemPrompt = "You are a clinical document assistant. Answer questions " +
	"about the referenced patient document concisely and cite the document when possible. " +
	"If the answer is not supported by the document, say so."

// OpenAIAdapter streams answers from the OpenAI Chat Completions API and
// demultiplexes the chunk stream into the shared event union.
type OpenAIAdapter struct {
	client openai.Client
	model  string
}

func NewOpenAIAdapter(apiKey, model string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errEmptyKey
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIAdapter{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) CountTokens(ctx context.Context, text string) (int, error) {
	enc, err := tiktoken.EncodingForModel(o.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, err
		}
	}
	return len(enc.Encode(text, nil, nil)), nil
}

func (o *OpenAIAdapter) Ask(ctx context.Context, session *model.ChatSession, question string) (<-chan model.StreamEvent, error) {
	if err := ValidateQuestion(session, question); err != nil {
		return nil, err
	}
	q := strings.TrimSpace(question)

	out := make(chan model.StreamEvent)
	go func() {
		defer close(out)

		stream := o.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(o.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage("Document ID: " + session.DocumentID + "\n\n" + q),
			},
		})
		defer stream.Close()

		// The chunk stream has no explicit start frame; the interaction id
		// is minted locally.
		if !emit(ctx, out, model.StreamEvent{Type: model.EventStart, InteractionID: ulid.Make().String()}) {
			return
		}

		sawContent := false
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			sawContent = true
			if !emit(ctx, out, model.StreamEvent{Type: model.EventContent, Content: delta}) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			emit(ctx, out, model.StreamEvent{Type: model.EventError, Err: err.Error()})
			return
		}
		if !sawContent {
			emit(ctx, out, model.StreamEvent{Type: model.EventError, Err: "no choice content"})
			return
		}
		emit(ctx, out, model.StreamEvent{Type: model.EventEnd})
	}()
	return out, nil
}
