package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardland/jared-relay/internal/config"
	"github.com/cardland/jared-relay/internal/models"
	"github.com/cardland/jared-relay/internal/relay"
	"github.com/cardland/jared-relay/internal/storage/uploads"
)

const allowedOrigin = "https://cardland51-bot.github.io"

type stubChat struct {
	calls int
	resp  models.ChatResponse
	err   error
}

func (s *stubChat) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	s.calls++
	return s.resp, s.err
}

type stubTTS struct {
	calls  int
	stream models.SpeechStream
	err    error
}

func (s *stubTTS) Synthesize(ctx context.Context, req models.SpeechRequest) (models.SpeechStream, error) {
	s.calls++
	return s.stream, s.err
}

type closeTrackingReader struct {
	io.Reader
	closed bool
}

func (r *closeTrackingReader) Close() error {
	r.closed = true
	return nil
}

func chatResponse(content string) models.ChatResponse {
	return models.ChatResponse{
		Choices: []models.ChatChoice{
			{Message: models.ChatMessage{Role: "assistant", Content: content}},
		},
	}
}

type testEnv struct {
	srv      *Server
	chat     *stubChat
	tts      *stubTTS
	spoolDir string
}

func newTestEnv(t *testing.T, chat *stubChat, tts *stubTTS) *testEnv {
	t.Helper()

	spoolDir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{
			ListenAddr:  ":0",
			BodyLimitMB: 16,
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{allowedOrigin, "http://localhost:3000"},
		},
		Uploads: config.UploadsConfig{
			Directory: spoolDir,
			MaxSizeMB: 16,
		},
	}

	spool, err := uploads.NewSpool(cfg.Uploads)
	require.NoError(t, err)

	svc := relay.NewService(chat, tts, relay.Config{
		ChatModel:    "gpt-4o-mini",
		SpeechModel:  "gpt-4o-mini-tts",
		SpeechVoice:  "alloy",
		SpeechFormat: "mp3",
	}, nil)

	srv, err := New(cfg, svc, spool, nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, chat: chat, tts: tts, spoolDir: spoolDir}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := e.srv.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (e *testEnv) spoolEntries(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(e.spoolDir)
	require.NoError(t, err)
	return entries
}

func jsonRequest(method, target, payload string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, fieldName string, payload []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="` + fieldName + `"; filename="photo.jpg"`}
	header["Content-Type"] = []string{"image/jpeg"}
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze-image", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &stubChat{}, &stubTTS{})
	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, decodeJSON(t, resp)["ok"])
}

func TestAnalyzeInfoRoute(t *testing.T) {
	env := newTestEnv(t, &stubChat{}, &stubTTS{})
	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/analyze", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, decodeJSON(t, resp)["status"])
}

func TestOriginAllowlist(t *testing.T) {
	tests := []struct {
		name       string
		origin     string
		wantStatus int
	}{
		{name: "no origin passes", origin: "", wantStatus: http.StatusOK},
		{name: "allowed origin passes", origin: allowedOrigin, wantStatus: http.StatusOK},
		{name: "unknown origin rejected", origin: "https://evil.example.com", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			chat := &stubChat{resp: chatResponse("hi")}
			env := newTestEnv(t, chat, &stubTTS{})

			req := jsonRequest(http.MethodPost, "/inference", `{"text":"hello"}`)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			resp := env.do(t, req)
			require.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantStatus == http.StatusForbidden {
				require.Equal(t, "origin_not_allowed", decodeJSON(t, resp)["error"])
				require.Zero(t, chat.calls, "handler must not run for rejected origins")
			} else {
				require.Equal(t, 1, chat.calls)
			}
		})
	}
}

func TestOriginAllowlistSetsCORSHeaders(t *testing.T) {
	env := newTestEnv(t, &stubChat{}, &stubTTS{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", allowedOrigin)
	resp := env.do(t, req)

	require.Equal(t, allowedOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestOriginAllowlistPreflight(t *testing.T) {
	chat := &stubChat{}
	env := newTestEnv(t, chat, &stubTTS{})

	req := httptest.NewRequest(http.MethodOptions, "/inference", nil)
	req.Header.Set("Origin", allowedOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := env.do(t, req)

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
	require.Zero(t, chat.calls)
}

func TestInferenceEmptyBodyUsesDefaults(t *testing.T) {
	chat := &stubChat{resp: chatResponse("Hello!")}
	env := newTestEnv(t, chat, &stubTTS{})

	resp := env.do(t, httptest.NewRequest(http.MethodPost, "/inference", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Hello!", decodeJSON(t, resp)["content"])
	require.Equal(t, 1, chat.calls)
}

func TestInferenceAlwaysReturnsContent(t *testing.T) {
	// Provider payload without the expected field still yields a content string.
	env := newTestEnv(t, &stubChat{resp: models.ChatResponse{}}, &stubTTS{})

	resp := env.do(t, jsonRequest(http.MethodPost, "/inference", `{"text":"hi"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	content, ok := body["content"].(string)
	require.True(t, ok)
	require.NotEmpty(t, content)
}

func TestInferenceUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, &stubChat{err: errors.New("boom")}, &stubTTS{})

	resp := env.do(t, jsonRequest(http.MethodPost, "/inference", `{"text":"hi"}`))
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "inference_failed", decodeJSON(t, resp)["error"])
}

func TestInferenceDeterministicWithStub(t *testing.T) {
	env := newTestEnv(t, &stubChat{resp: chatResponse("fixed quote")}, &stubTTS{})

	first := env.do(t, jsonRequest(http.MethodPost, "/inference", `{"text":"mulch","mode":"pro"}`))
	second := env.do(t, jsonRequest(http.MethodPost, "/inference", `{"text":"mulch","mode":"pro"}`))
	require.Equal(t, decodeJSON(t, first)["content"], decodeJSON(t, second)["content"])
}

func TestAnalyzeImageMissingFile(t *testing.T) {
	chat := &stubChat{}
	env := newTestEnv(t, chat, &stubTTS{})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("note", "no file here"))
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/analyze-image", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp := env.do(t, req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "no_file", decodeJSON(t, resp)["error"])
	require.Zero(t, chat.calls, "no upstream call without a file")
}

func TestAnalyzeImageSuccessCleansSpool(t *testing.T) {
	env := newTestEnv(t, &stubChat{resp: chatResponse("tidy beds, fresh mulch")}, &stubTTS{})

	resp := env.do(t, multipartRequest(t, "file", []byte{0xff, 0xd8, 0xff}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	require.Equal(t, "tidy beds, fresh mulch", body["summary"])
	require.Equal(t, 0.9, body["confidence"])
	require.Empty(t, env.spoolEntries(t), "spooled upload must be removed")
}

func TestAnalyzeImageUpstreamFailureCleansSpool(t *testing.T) {
	env := newTestEnv(t, &stubChat{err: errors.New("vision down")}, &stubTTS{})

	resp := env.do(t, multipartRequest(t, "file", []byte("jpeg")))
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "analyze_failed", decodeJSON(t, resp)["error"])
	require.Empty(t, env.spoolEntries(t), "spooled upload must be removed on failure too")
}

func TestSpeakUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, &stubChat{}, &stubTTS{err: errors.New("tts rejected")})

	resp := env.do(t, jsonRequest(http.MethodPost, "/speak", `{"text":"hi"}`))
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "tts_failed", decodeJSON(t, resp)["error"])
	require.NotEqual(t, "audio/mpeg", resp.Header.Get("Content-Type"))
}

func TestSpeakStreamsAudio(t *testing.T) {
	audio := []byte("ID3 fake mp3 payload")
	reader := &closeTrackingReader{Reader: bytes.NewReader(audio)}
	tts := &stubTTS{stream: models.SpeechStream{Body: reader, ContentType: "audio/mpeg"}}
	env := newTestEnv(t, &stubChat{}, tts)

	resp := env.do(t, jsonRequest(http.MethodPost, "/speak", `{"text":"hello"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, audio, got)
	require.True(t, reader.closed, "provider stream must be closed after piping")
	require.Equal(t, 1, tts.calls)
}
