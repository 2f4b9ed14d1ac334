// Package webhook implements the HTTP ingress for Linear, GitHub, Vercel,
// Supabase, Upstash, and custom vendor webhooks: HMAC verification,
// vendor-specific payload transformation, and enqueueing the result onto the
// shared outbound bus as a ChannelMessage the agent can act on.
package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatmesh/internal/channel"
	"github.com/p-blackswan/chatmesh/internal/health"
	"github.com/p-blackswan/chatmesh/internal/message"
	"github.com/p-blackswan/chatmesh/internal/metrics"
	"github.com/p-blackswan/chatmesh/internal/requestid"
)

// Config holds webhook server configuration.
type Config struct {
	ListenAddr    string
	LinearSecret  string
	GitHubSecret  string
	GenericSecret string // shared secret for vercel/supabase/upstash/custom
	NotifyTarget  string // reply_target messages are enqueued against
}

// Server is the webhook ingress Fiber application.
type Server struct {
	app     *fiber.App
	cfg     Config
	bus     *channel.Bus
	metrics *metrics.Metrics
	checker *health.Checker
	logger  zerolog.Logger
}

// NewServer creates and configures a webhook ingress server.
func NewServer(cfg Config, bus *channel.Bus, m *metrics.Metrics, checker *health.Checker, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s := &Server{
		app:     app,
		cfg:     cfg,
		bus:     bus,
		metrics: m,
		checker: checker,
		logger:  logger.With().Str("component", "webhook.server").Logger(),
	}

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(func(c *fiber.Ctx) error {
		_, reqID := requestid.New(c.Context())
		c.Set("X-Request-ID", reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", adaptor.HTTPHandler(health.LivenessHandler()))
	if s.checker != nil {
		s.app.Get("/readyz", adaptor.HTTPHandler(s.checker.ReadinessHandler()))
	} else {
		s.app.Get("/readyz", adaptor.HTTPHandler(health.LivenessHandler()))
	}
	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	s.app.Post("/webhook/linear", s.handleLinear)
	s.app.Post("/webhook/github", s.handleGitHub)
	s.app.Post("/webhooks/:vendor", s.handleGenericVendor)
}

// Start begins serving. Blocks until the listener stops.
func (s *Server) Start() error {
	addr := s.cfg.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Info().Str("addr", addr).Msg("webhook ingress starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("webhook ingress shutting down")
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying Fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// publish enqueues a rendered vendor message onto the bus. Publish errors
// are logged, never surfaced to the vendor — per spec, handler errors never
// fail the webhook response.
func (s *Server) publish(ctx context.Context, vendor, content string) {
	if content == "" {
		return
	}
	msg := message.ChannelMessage{
		ID:          vendor + "_" + requestid.FromContext(ctx),
		Sender:      "webhook:" + vendor,
		ReplyTarget: s.cfg.NotifyTarget,
		Content:     content,
		Channel:     "webhook",
		Timestamp:   time.Now().Unix(),
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.bus.Publish(pctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("vendor", vendor).Msg("failed to enqueue webhook message")
	}
}
