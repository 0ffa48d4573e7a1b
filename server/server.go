package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrsingh-rishi/meeting-transcriber/metrics"
	"github.com/mrsingh-rishi/meeting-transcriber/output"
	"github.com/mrsingh-rishi/meeting-transcriber/session"
	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

// Recorder is the command surface the API exposes.
type Recorder interface {
	Start(ctx context.Context, req session.StartRequest) (*session.Session, error)
	Stop(ctx context.Context) error
	PushMic(samples []float32) error
	PushScreen(samples []float32) error
	Mute()
	Unmute()
	ToggleMute() bool
	Muted() bool
	Transcript() types.TranscriptSnapshot
	State() session.Status
	Enroll(ctx context.Context, req session.EnrollRequest) ([]string, error)
	StartCapture() error
	StopCapture() error
	Capturing() bool
}

// Options wires a Server.
type Options struct {
	Recorder Recorder
	Hub      *output.Hub
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Server is the control and event API.
type Server struct {
	app      *fiber.App
	recorder Recorder
	hub      *output.Hub
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type samplesRequest struct {
	Samples []float32 `json:"samples"`
}

type muteResponse struct {
	Muted bool `json:"muted"`
}

type captureResponse struct {
	Capturing bool `json:"capturing"`
}

type startResponse struct {
	SessionID string        `json:"session_id"`
	State     session.State `json:"state"`
}

type stopResponse struct {
	Status     session.Status           `json:"status"`
	Transcript types.TranscriptSnapshot `json:"transcript"`
}

type enrollResponse struct {
	SpeakerIdentifiers []string `json:"speaker_identifiers"`
}

// New builds the fiber app and registers every route.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Hub == nil {
		opts.Hub = output.NewHub(0, opts.Logger)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		recorder: opts.Recorder,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(s.withMetrics)

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))

	rec := s.app.Group("/recording")
	rec.Post("/start", s.handleStart)
	rec.Post("/stop", s.handleStop)
	rec.Post("/mic", s.handlePush(s.recorder.PushMic))
	rec.Post("/screen", s.handlePush(s.recorder.PushScreen))
	rec.Post("/mute", func(c *fiber.Ctx) error {
		s.recorder.Mute()
		return c.JSON(muteResponse{Muted: s.recorder.Muted()})
	})
	rec.Post("/unmute", func(c *fiber.Ctx) error {
		s.recorder.Unmute()
		return c.JSON(muteResponse{Muted: s.recorder.Muted()})
	})
	rec.Post("/mute/toggle", func(c *fiber.Ctx) error {
		return c.JSON(muteResponse{Muted: s.recorder.ToggleMute()})
	})
	rec.Get("/mute", func(c *fiber.Ctx) error {
		return c.JSON(muteResponse{Muted: s.recorder.Muted()})
	})
	rec.Get("/transcript", func(c *fiber.Ctx) error {
		return c.JSON(s.recorder.Transcript())
	})
	rec.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(s.recorder.State())
	})

	s.app.Post("/speakers/enroll", s.handleEnroll)

	preview := s.app.Group("/capture")
	preview.Post("/start", func(c *fiber.Ctx) error {
		if err := s.recorder.StartCapture(); err != nil {
			return err
		}
		return c.JSON(captureResponse{Capturing: s.recorder.Capturing()})
	})
	preview.Post("/stop", func(c *fiber.Ctx) error {
		if err := s.recorder.StopCapture(); err != nil {
			return err
		}
		return c.JSON(captureResponse{Capturing: s.recorder.Capturing()})
	})

	// Middleware to require WebSocket upgrade on /events
	s.app.Use("/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/events", websocket.New(s.handleEvents))

	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "address", addr)
	return s.app.Listen(addr)
}

// Listener serves on an existing listener until Shutdown.
func (s *Server) Listener(ln net.Listener) error {
	s.logger.Info("http server listening", "address", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown disconnects event consumers and stops the server.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.hub.Close()
	return s.app.ShutdownWithTimeout(timeout)
}

func (s *Server) withMetrics(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = errorStatus(err)
	}
	s.metrics.RecordHTTPRequest(c.Method(), c.Route().Path, status, time.Since(start).Seconds())
	return err
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	var req session.StartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON")
		}
	}

	sess, err := s.recorder.Start(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(startResponse{SessionID: sess.ID(), State: sess.State()})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.recorder.Stop(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(stopResponse{Status: s.recorder.State(), Transcript: s.recorder.Transcript()})
}

func (s *Server) handlePush(push func([]float32) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req samplesRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON")
		}
		if err := push(req.Samples); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}

func (s *Server) handleEnroll(c *fiber.Ctx) error {
	var req session.EnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON")
	}
	ids, err := s.recorder.Enroll(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(enrollResponse{SpeakerIdentifiers: ids})
}

func (s *Server) handleEvents(ws *websocket.Conn) {
	detach := s.hub.Attach(ws)
	defer detach()

	// Consumers never send anything meaningful; reading detects the close.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func errorStatus(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if errors.Is(err, session.ErrNotRecording) ||
		errors.Is(err, session.ErrNotCapturing) ||
		errors.Is(err, session.ErrCaptureBusy) {
		return fiber.StatusConflict
	}
	kind, ok := types.KindOf(err)
	if !ok {
		return fiber.StatusInternalServerError
	}
	switch kind {
	case types.KindConfig:
		return fiber.StatusBadRequest
	case types.KindAuth:
		return fiber.StatusUnauthorized
	case types.KindTransport, types.KindRemote, types.KindProtocol:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}
