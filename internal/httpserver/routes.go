package httpserver

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/cardland/jared-relay/internal/httpserver/httputil"
	"github.com/cardland/jared-relay/internal/relay"
	"github.com/cardland/jared-relay/internal/storage/uploads"
)

type relayHandler struct {
	svc   *relay.Service
	spool *uploads.Spool
}

func registerRoutes(app *fiber.App, svc *relay.Service, spool *uploads.Spool) {
	h := &relayHandler{svc: svc, spool: spool}
	app.Get("/health", h.health)
	app.Get("/analyze", h.analyzeInfo)
	app.Post("/inference", h.inference)
	app.Post("/analyze-image", h.analyzeImage)
	app.Post("/speak", h.speak)
}

func (h *relayHandler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

func (h *relayHandler) analyzeInfo(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "analyze endpoint ready for POST uploads"})
}

type inferenceRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

func (h *relayHandler) inference(c *fiber.Ctx) error {
	var req inferenceRequest
	// Empty or malformed bodies fall back to the service defaults.
	_ = c.BodyParser(&req)

	content, err := h.svc.Infer(c.UserContext(), req.Text, req.Mode)
	if err != nil {
		log.Printf("inference error: %v", err)
		return httputil.WriteError(c, fiber.StatusInternalServerError, "inference_failed")
	}
	return c.JSON(fiber.Map{"content": content})
}

func (h *relayHandler) analyzeImage(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "no_file")
	}

	asset, err := h.spool.Stash(fh)
	if err != nil {
		if errors.Is(err, uploads.ErrTooLarge) {
			return httputil.WriteError(c, fiber.StatusRequestEntityTooLarge, "file_too_large")
		}
		log.Printf("analyze-image spool error: %v", err)
		return httputil.WriteError(c, fiber.StatusInternalServerError, "analyze_failed")
	}
	defer func() {
		if err := asset.Remove(); err != nil {
			log.Printf("analyze-image spool cleanup error: %v", err)
		}
	}()

	data, err := asset.ReadAll()
	if err != nil {
		log.Printf("analyze-image read error: %v", err)
		return httputil.WriteError(c, fiber.StatusInternalServerError, "analyze_failed")
	}

	analysis, err := h.svc.Analyze(c.UserContext(), data, asset.ContentType)
	if err != nil {
		log.Printf("analyze-image error: %v", err)
		return httputil.WriteError(c, fiber.StatusInternalServerError, "analyze_failed")
	}
	return c.JSON(analysis)
}

type speakRequest struct {
	Text string `json:"text"`
}

func (h *relayHandler) speak(c *fiber.Ctx) error {
	var req speakRequest
	_ = c.BodyParser(&req)

	stream, err := h.svc.Speak(c.UserContext(), req.Text)
	if err != nil {
		log.Printf("speak error: %v", err)
		return httputil.WriteError(c, fiber.StatusInternalServerError, "tts_failed")
	}

	// SendStream pipes the provider body through without buffering it; Fiber
	// closes the reader once the response is written.
	c.Set(fiber.HeaderContentType, stream.ContentType)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.SendStream(stream.Body)
}
