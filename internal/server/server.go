// Package server exposes the pipeline engine over HTTP with gin and streams
// committed changes to browsers over server-sent events.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/hopewell/crm/internal/kanban"
	log "github.com/sirupsen/logrus"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Service *kanban.Service
	Port    int
	Out     io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Service == nil {
		return fmt.Errorf("server: service is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	broker := NewBroker()
	opts.Service.Subscribe(broker)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           NewRouter(opts.Service, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		broker.Close()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "CRM API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine serving svc. broker may be nil, in which
// case /api/events only sends the connected event.
func NewRouter(svc *kanban.Service, broker *Broker) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log.WithField("component", "http")))

	h := &handlers{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	registerRoutes(router, h, broker)
	return router
}

// requestLogger logs one line per request at debug level, or warn for 5xx.
func requestLogger(entry *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		e := entry.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  status,
			"latency": time.Since(start).Round(time.Microsecond).String(),
		})
		if status >= http.StatusInternalServerError {
			e.Warn("request failed")
			return
		}
		e.Debug("request")
	}
}
