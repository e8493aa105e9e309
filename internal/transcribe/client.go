// Package transcribe turns stored recordings into text through the remote
// speech-to-text API and maps every outcome back onto the recording.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fmueller/voicebox/internal/logging"
	"github.com/fmueller/voicebox/internal/prefs"
	"github.com/fmueller/voicebox/internal/store"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	noCredentialMessage     = "no credential configured"
	audioUnavailableMessage = "audio unavailable"
	emptyRecordingMessage   = "recording was empty"
	genericFailureMessage   = "transcription failed"
)

// RecordStore is the slice of the record store the client needs.
type RecordStore interface {
	Get(id string) (store.Recording, error)
	Put(rec store.Recording) error
}

// Settings supplies the credential and vocabulary hint at transcription time.
type Settings interface {
	Load() (prefs.Preferences, error)
}

type api interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client performs transcription and best-effort title generation.
type Client struct {
	store    RecordStore
	settings Settings
	logger   *zap.Logger

	model      string
	titleModel string

	// newAPI and newTitleAPI are swapped by tests. The title transport
	// retries transparently because title generation is fire-and-forget;
	// transcription never retries below the user-visible retry action.
	newAPI      func(apiKey string) api
	newTitleAPI func(apiKey string) api
}

func NewClient(recordStore RecordStore, settings Settings, logger *zap.Logger) *Client {
	return &Client{
		store:       recordStore,
		settings:    settings,
		logger:      logging.OrNop(logger),
		model:       openai.Whisper1,
		titleModel:  openai.GPT4oMini,
		newAPI:      newOpenAIClient,
		newTitleAPI: newRetryingOpenAIClient,
	}
}

func newOpenAIClient(apiKey string) api {
	return openai.NewClient(apiKey)
}

func newRetryingOpenAIClient(apiKey string) api {
	retry := retryablehttp.NewClient()
	retry.RetryMax = 2
	retry.RetryWaitMin = 500 * time.Millisecond
	retry.Logger = nil

	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = retry.StandardClient()
	return openai.NewClientWithConfig(cfg)
}

// Transcribe resolves the recording to a terminal status, or back to pending
// when the context is cancelled mid-flight. The mutated recording is always
// persisted before returning. A missing id is a no-op.
func (c *Client) Transcribe(ctx context.Context, id string) error {
	rec, err := c.store.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	p, err := c.settings.Load()
	if err != nil {
		return err
	}

	if strings.TrimSpace(p.APIKey) == "" {
		return c.persistFailure(rec, noCredentialMessage)
	}

	if len(rec.Audio) == 0 {
		if rec.Audio == nil {
			return c.persistFailure(rec, audioUnavailableMessage)
		}
		return c.persistFailure(rec, emptyRecordingMessage)
	}

	c.logger.Debug("transcribing",
		zap.String("id", rec.ID),
		zap.Int("bytes", len(rec.Audio)),
		zap.String("mime", rec.MimeType),
	)

	resp, err := c.newAPI(p.APIKey).CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		Reader:   bytes.NewReader(rec.Audio),
		FilePath: "recording." + extensionForMime(rec.MimeType),
		Prompt:   p.VocabularyHint,
	})

	switch {
	case err == nil:
		rec.Status = store.StatusDone
		rec.Text = resp.Text
		rec.ErrorMessage = ""
	case errors.Is(err, context.Canceled):
		// Cancellation is a deferral, not a failure: back to pending,
		// audio intact, no error recorded.
		rec.Status = store.StatusPending
		rec.ErrorMessage = ""
	default:
		rec.Status = store.StatusError
		rec.ErrorMessage = errorMessageFrom(err)
	}

	// The recording may have been deleted while the request was in
	// flight; deletion wins over any settling outcome.
	if _, err := c.store.Get(id); errors.Is(err, store.ErrNotFound) {
		return nil
	}

	return c.store.Put(rec)
}

// TestCredential uploads a one-second silent WAV to verify the key works
// against the transcription endpoint.
func (c *Client) TestCredential(ctx context.Context, apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return errors.New(noCredentialMessage)
	}

	_, err := c.newAPI(apiKey).CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		Reader:   bytes.NewReader(silentWAV(16000, time.Second)),
		FilePath: "test.wav",
	})
	if err != nil {
		return fmt.Errorf("credential test failed: %s", errorMessageFrom(err))
	}
	return nil
}

func (c *Client) persistFailure(rec store.Recording, message string) error {
	rec.Status = store.StatusError
	rec.ErrorMessage = message
	return c.store.Put(rec)
}

func errorMessageFrom(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if message := strings.TrimSpace(apiErr.Message); message != "" {
			return message
		}
		if apiErr.HTTPStatusCode > 0 {
			return fmt.Sprintf("API error %d", apiErr.HTTPStatusCode)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return fmt.Sprintf("API error %d", reqErr.HTTPStatusCode)
	}

	if message := strings.TrimSpace(err.Error()); message != "" {
		return message
	}
	return genericFailureMessage
}

func extensionForMime(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "mp4"):
		return "mp4"
	case strings.Contains(mimeType, "ogg"):
		return "ogg"
	case strings.Contains(mimeType, "wav"):
		return "wav"
	default:
		return "webm"
	}
}
