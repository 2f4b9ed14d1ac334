package webhook

import (
	"github.com/gofiber/fiber/v2"
	gh "github.com/google/go-github/v60/github"

	perrors "github.com/p-blackswan/chatmesh/internal/errors"
	"github.com/p-blackswan/chatmesh/internal/payload"
)

var genericVendors = map[string]bool{
	"vercel":   true,
	"supabase": true,
	"upstash":  true,
	"custom":   true,
}

func (s *Server) handleLinear(c *fiber.Ctx) error {
	body := c.Body()

	if s.cfg.LinearSecret != "" {
		sig := c.Get("linear-signature")
		if sig == "" || !verifyHMACHex([]byte(s.cfg.LinearSecret), body, sig) {
			s.logger.Debug().Err(perrors.ErrSignatureInvalid).Str("vendor", "linear").Msg("rejecting webhook")
			s.recordWebhook("linear", "unauthorized")
			return c.SendStatus(fiber.StatusUnauthorized)
		}
	}

	rendered, err := payload.RenderLinear(body)
	if err != nil {
		s.recordWebhook("linear", "bad_request")
		return c.SendStatus(fiber.StatusBadRequest)
	}

	s.publish(c.Context(), "linear", rendered)
	s.recordWebhook("linear", "ok")
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleGitHub(c *fiber.Ctx) error {
	body := c.Body()

	if s.cfg.GitHubSecret != "" {
		sig := c.Get("x-hub-signature-256")
		if err := gh.ValidateSignature(sig, body, []byte(s.cfg.GitHubSecret)); err != nil {
			s.logger.Debug().Err(perrors.ErrSignatureInvalid).Str("vendor", "github").Msg("rejecting webhook")
			s.recordWebhook("github", "unauthorized")
			return c.SendStatus(fiber.StatusUnauthorized)
		}
	}

	eventType := c.Get("x-github-event")
	rendered, err := payload.RenderGitHub(eventType, body)
	if err != nil {
		s.recordWebhook("github", "bad_request")
		return c.SendStatus(fiber.StatusBadRequest)
	}

	s.publish(c.Context(), "github", rendered)
	s.recordWebhook("github", "ok")
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleGenericVendor(c *fiber.Ctx) error {
	vendor := c.Params("vendor")
	if !genericVendors[vendor] {
		return c.SendStatus(fiber.StatusNotFound)
	}

	body := c.Body()

	if s.cfg.GenericSecret != "" {
		sig := c.Get("x-webhook-signature")
		if sig == "" || !verifyHMACPrefixed([]byte(s.cfg.GenericSecret), body, sig) {
			s.logger.Debug().Err(perrors.ErrSignatureInvalid).Str("vendor", vendor).Msg("rejecting webhook")
			s.recordWebhook(vendor, "unauthorized")
			return c.SendStatus(fiber.StatusUnauthorized)
		}
	}

	var rendered string
	var err error
	switch vendor {
	case "vercel":
		rendered, err = payload.RenderVercel(body)
	case "supabase":
		rendered, err = payload.RenderSupabase(body)
	case "upstash":
		rendered, err = payload.RenderUpstash(body)
	case "custom":
		rendered, err = payload.RenderCustom(body)
	}
	if err != nil {
		s.recordWebhook(vendor, "bad_request")
		return c.SendStatus(fiber.StatusBadRequest)
	}

	s.publish(c.Context(), vendor, rendered)
	s.recordWebhook(vendor, "ok")
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) recordWebhook(vendor, status string) {
	if s.metrics != nil {
		s.metrics.RecordWebhookRequest(vendor, status)
	}
}
