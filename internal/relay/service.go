package relay

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cardland/jared-relay/internal/models"
	"github.com/cardland/jared-relay/internal/observability"
	"github.com/cardland/jared-relay/internal/providers"
)

// Modes select the system persona for text inference. Anything unrecognized
// falls back to ModeCustomer.
const (
	ModeCustomer = "customer"
	ModePro      = "pro"
)

const (
	personaCustomer = "You are Jared, a friendly estimator for homeowners. Be clear, simple, and helpful."
	personaPro      = "You are Jared, a professional estimator for landscaping. Be concise, include line items, costs, and risks."

	analyzePersona     = "You analyze landscaping photos for beds, weeds, mulch, edging, materials and produce a brief summary + 3 bullet recommendations."
	analyzeInstruction = "Analyze this photo; be concise and practical."

	defaultInferText = "Say hello"
	defaultSpeakText = "Hello from Jared."

	fallbackContent = "No response"
	fallbackSummary = "No summary"

	// Fixed placeholder, not derived from model output.
	analyzeConfidence = 0.9
)

// Config carries the provider models the relay forwards to.
type Config struct {
	ChatModel       string
	SpeechModel     string
	SpeechVoice     string
	SpeechFormat    string
	ProviderTimeout time.Duration
}

// Analysis is the normalized image-analysis result.
type Analysis struct {
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// Service turns client requests into provider requests and maps the provider
// result back. One upstream attempt per request; no retries, no state.
type Service struct {
	chat providers.ChatCompletions
	tts  providers.TextToSpeech
	cfg  Config
	obs  *observability.Provider
}

func NewService(chat providers.ChatCompletions, tts providers.TextToSpeech, cfg Config, obs *observability.Provider) *Service {
	return &Service{chat: chat, tts: tts, cfg: cfg, obs: obs}
}

// Infer runs one chat completion with the persona selected by mode. The
// returned content is never empty: missing provider content is replaced with
// a fixed fallback.
func (s *Service) Infer(ctx context.Context, text, mode string) (string, error) {
	persona := personaCustomer
	if mode == ModePro {
		persona = personaPro
	}
	if strings.TrimSpace(text) == "" {
		text = defaultInferText
	}

	req := models.ChatRequest{
		Model: s.cfg.ChatModel,
		Messages: []models.ChatMessage{
			models.SystemMessage(persona),
			models.UserMessage(text),
		},
	}

	resp, err := s.completeChat(ctx, req)
	if err != nil {
		return "", err
	}
	if content := resp.FirstContent(); content != "" {
		return content, nil
	}
	return fallbackContent, nil
}

// Analyze sends one multimodal chat request carrying the image inline as a
// base64 data URI.
func (s *Service) Analyze(ctx context.Context, data []byte, contentType string) (Analysis, error) {
	mime := strings.TrimSpace(contentType)
	if mime == "" {
		mime = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))

	req := models.ChatRequest{
		Model: s.cfg.ChatModel,
		Messages: []models.ChatMessage{
			models.SystemMessage(analyzePersona),
			{
				Role: "user",
				Parts: []models.ContentPart{
					{Text: analyzeInstruction},
					{ImageURL: dataURL},
				},
			},
		},
	}

	resp, err := s.completeChat(ctx, req)
	if err != nil {
		return Analysis{}, err
	}
	summary := resp.FirstContent()
	if summary == "" {
		summary = fallbackSummary
	}
	return Analysis{Summary: summary, Confidence: analyzeConfidence}, nil
}

// Speak synthesizes speech for text, defaulting to a fixed greeting. The
// stream is handed to the caller unbuffered; no timeout is applied here
// because the body outlives the call.
func (s *Service) Speak(ctx context.Context, text string) (models.SpeechStream, error) {
	if strings.TrimSpace(text) == "" {
		text = defaultSpeakText
	}

	start := time.Now()
	stream, err := s.tts.Synthesize(ctx, models.SpeechRequest{
		Model:  s.cfg.SpeechModel,
		Input:  text,
		Voice:  s.cfg.SpeechVoice,
		Format: s.cfg.SpeechFormat,
	})
	s.obs.RecordUpstream("speech", outcomeLabel(err), time.Since(start))
	if err != nil {
		return models.SpeechStream{}, err
	}
	return stream, nil
}

func (s *Service) completeChat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	if s.cfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ProviderTimeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := s.chat.Chat(ctx, req)
	s.obs.RecordUpstream("chat", outcomeLabel(err), time.Since(start))
	return resp, err
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
