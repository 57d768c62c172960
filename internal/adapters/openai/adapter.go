package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/cardland/jared-relay/internal/models"
)

// Options configure the OpenAI adapter.
type Options struct {
	APIKey  string
	BaseURL string
	Extra   []option.RequestOption
}

// Adapter wraps the official OpenAI SDK for the chat-completion and
// speech-synthesis capabilities the relay forwards to.
type Adapter struct {
	client *openai.Client
}

// New creates an adapter using the provided API key and optional base URL.
func New(opts Options) (*Adapter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai: api key required")
	}

	requestOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if strings.TrimSpace(opts.BaseURL) != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")))
	}
	requestOpts = append(requestOpts, opts.Extra...)

	client := openai.NewClient(requestOpts...)
	return &Adapter{client: &client}, nil
}

// Chat performs a non-streaming chat completion request.
func (a *Adapter) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	resp, err := a.client.Chat.Completions.New(ctx, buildChatParams(req))
	if err != nil {
		return models.ChatResponse{}, err
	}
	return convertChatResponse(*resp), nil
}

// Synthesize requests speech audio and hands back the provider's body as a
// stream so callers can pipe it without buffering the full payload.
func (a *Adapter) Synthesize(ctx context.Context, req models.SpeechRequest) (models.SpeechStream, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return models.SpeechStream{}, errors.New("openai: input is required for speech synthesis")
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = "alloy"
	}
	format := strings.TrimSpace(req.Format)
	if format == "" {
		format = "mp3"
	}

	params := openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(req.Model),
		Input:          input,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(format),
	}
	resp, err := a.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return models.SpeechStream{}, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = audioContentType(format)
	}
	return models.SpeechStream{Body: resp.Body, ContentType: contentType}, nil
}

func buildChatParams(req models.ChatRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch strings.ToLower(msg.Role) {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.ChatCompletionMessageParamOfAssistant(msg.Content))
		default:
			if len(msg.Parts) > 0 {
				parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts))
				for _, part := range msg.Parts {
					if part.ImageURL != "" {
						parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL: part.ImageURL,
						}))
						continue
					}
					parts = append(parts, openai.TextContentPart(part.Text))
				}
				messages = append(messages, openai.UserMessage(parts))
				continue
			}
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
}

func convertChatResponse(resp openai.ChatCompletion) models.ChatResponse {
	choices := make([]models.ChatChoice, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		choices = append(choices, models.ChatChoice{
			Index: int(choice.Index),
			Message: models.ChatMessage{
				Role:    string(choice.Message.Role),
				Content: choice.Message.Content,
			},
			FinishReason: choice.FinishReason,
		})
	}

	return models.ChatResponse{
		ID:      resp.ID,
		Created: time.Unix(resp.Created, 0),
		Model:   resp.Model,
		Choices: choices,
		Usage: models.Usage{
			PromptTokens:     int32(resp.Usage.PromptTokens),
			CompletionTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:      int32(resp.Usage.TotalTokens),
		},
	}
}

func audioContentType(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "mp3":
		return "audio/mpeg"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	case "opus":
		return "audio/opus"
	case "wav":
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}
