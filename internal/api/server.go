// Package api exposes the bot's HTTP surface: the webhook endpoint,
// health, and runtime stats.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/joegemini/internal/event"
	"github.com/joegemini/internal/orchestrator"
)

const serviceName = "joegemini"

// shutdownTimeout bounds the drain window for in-flight requests and
// inline event processing.
const shutdownTimeout = 10 * time.Second

// Server is the webhook HTTP server.
type Server struct {
	echo         *echo.Echo
	orchestrator *orchestrator.Orchestrator
	port         int
	version      string
}

// NewServer creates the HTTP server around an orchestrator.
func NewServer(port int, version string, orch *orchestrator.Orchestrator) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:         e,
		orchestrator: orch,
		port:         port,
		version:      version,
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.handleHealth)

	// GitHub deliveries land here. The /api/github prefix is kept so
	// hooks configured against the original deployment keep working.
	s.echo.POST("/webhook", s.handleWebhook)
	s.echo.POST("/api/github/webhook", s.handleWebhook)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/stats", s.handleStats)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
		"version": s.version,
	})
}

// handleWebhook receives one GitHub delivery. The orchestrator answers
// synchronously with an ack; processing of accepted events continues in
// the background.
func (s *Server) handleWebhook(c echo.Context) error {
	ack, err := s.orchestrator.HandleWebhook(c.Request())
	if err != nil {
		if errors.Is(err, event.ErrBadSignature) {
			log.Printf("[WARN] Rejected webhook delivery: %v", err)
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid_signature",
			})
		}
		log.Printf("[ERROR] Failed to handle webhook delivery: %v", err)
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid_payload",
		})
	}
	return c.JSON(http.StatusOK, ack)
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orchestrator.StatsSnapshot())
}

// Start runs the server until SIGINT or SIGTERM, then drains in-flight
// work before returning.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Printf("[INFO] Shutting down, draining in-flight work")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.orchestrator.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("[WARN] Timed out waiting for in-flight event processing")
	}

	return nil
}
