package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	"google.golang.org/genai"

	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/domain/ports/adapter"
)

var _ adapter.AssistantStreamer = (*GeminiAdapter)(nil)

var errEmptyKey = errors.New("ai adapter: empty api key")

// GeminiAdapter streams answers through the official Gemini SDK.
type GeminiAdapter struct {
	client *genai.Client
	model  string
	maxOut int
}

func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, model string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errEmptyKey
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiAdapter{client: c, model: model, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

func (g *GeminiAdapter) CountTokens(ctx context.Context, text string) (int, error) {
	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}},
	}
	resp, err := g.client.Models.CountTokens(ctx, g.model, contents, nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAdapter) Ask(ctx context.Context, session *model.ChatSession, question string) (<-chan model.StreamEvent, error) {
	if err := ValidateQuestion(session, question); err != nil {
		return nil, err
	}
	q := strings.TrimSpace(question)

	out := make(chan model.StreamEvent)
	go func() {
		defer close(out)

		chat, err := g.client.Chats.Create(
			ctx,
			g.model,
			&genai.GenerateContentConfig{
				MaxOutputTokens:   int32(g.maxOut),
				SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
			},
			nil,
		)
		if err != nil {
			emit(ctx, out, model.StreamEvent{Type: model.EventError, Err: err.Error()})
			return
		}

		if !emit(ctx, out, model.StreamEvent{Type: model.EventStart, InteractionID: ulid.Make().String()}) {
			return
		}

		sawContent := false
		for resp, err := range chat.SendMessageStream(ctx, genai.Part{Text: "Document ID: " + session.DocumentID + "\n\n" + q}) {
			if err != nil {
				emit(ctx, out, model.StreamEvent{Type: model.EventError, Err: err.Error()})
				return
			}
			text := ""
			if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
				for _, p := range resp.Candidates[0].Content.Parts {
					text += p.Text
				}
			}
			if text == "" {
				continue
			}
			sawContent = true
			if !emit(ctx, out, model.StreamEvent{Type: model.EventContent, Content: text}) {
				return
			}
		}
		if !sawContent {
			emit(ctx, out, model.StreamEvent{Type: model.EventError, Err: "no candidate content"})
			return
		}
		emit(ctx, out, model.StreamEvent{Type: model.EventEnd})
	}()
	return out, nil
}
