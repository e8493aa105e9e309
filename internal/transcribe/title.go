package transcribe

import (
	"context"
	"strings"

	"github.com/fmueller/voicebox/internal/store"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const maxTitleInputChars = 2000

const titleSystemPrompt = "You label voice memos. Reply with a short title " +
	"for the transcript, at most six words, no quotes, no trailing punctuation."

// GenerateTitle derives a short label for a transcribed recording. Every
// failure is silent: the title is a nicety, never part of the transcription
// outcome. An existing title is never regenerated.
func (c *Client) GenerateTitle(ctx context.Context, id string) {
	rec, err := c.store.Get(id)
	if err != nil {
		c.logger.Debug("title generation skipped", zap.String("id", id), zap.Error(err))
		return
	}
	if rec.Title != "" || rec.Status != store.StatusDone || strings.TrimSpace(rec.Text) == "" {
		return
	}

	p, err := c.settings.Load()
	if err != nil || strings.TrimSpace(p.APIKey) == "" {
		return
	}

	input := rec.Text
	if len(input) > maxTitleInputChars {
		input = input[:maxTitleInputChars]
	}

	resp, err := c.newTitleAPI(p.APIKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.titleModel,
		MaxTokens: 32,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titleSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
	})
	if err != nil {
		c.logger.Debug("title generation failed", zap.String("id", id), zap.Error(err))
		return
	}
	if len(resp.Choices) == 0 {
		return
	}

	title := strings.Trim(strings.TrimSpace(resp.Choices[0].Message.Content), `"`)
	if title == "" {
		return
	}

	// Re-read before writing so only the title field is touched.
	fresh, err := c.store.Get(id)
	if err != nil || fresh.Title != "" {
		return
	}
	fresh.Title = title
	if err := c.store.Put(fresh); err != nil {
		c.logger.Debug("title persist failed", zap.String("id", id), zap.Error(err))
	}
}
