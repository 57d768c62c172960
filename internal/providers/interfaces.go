package providers

import (
	"context"

	"github.com/cardland/jared-relay/internal/models"
)

type ChatCompletions interface {
	Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error)
}

type TextToSpeech interface {
	Synthesize(ctx context.Context, req models.SpeechRequest) (models.SpeechStream, error)
}
