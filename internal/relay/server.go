package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const defaultShutdownTimeout = 10 * time.Second

// RouterOpts configures NewRouter.
type RouterOpts struct {
	// OTelServiceName enables otelgin tracing when non-empty.
	OTelServiceName string
	// Gatherer backs GET /metrics; nil omits the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the gin engine serving r's endpoints.
func NewRouter(r *Relay, opts RouterOpts) *gin.Engine {
	router := gin.New()

	// otelgin first so recovery and request logs carry the span.
	if opts.OTelServiceName != "" {
		router.Use(otelgin.Middleware(opts.OTelServiceName))
	}
	router.Use(Recovery(), RequestID(), Logger())

	r.RegisterRoutes(router)
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

// RegisterRoutes adds the health check and webhook endpoints.
func (r *Relay) RegisterRoutes(router gin.IRoutes) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.POST("/webhooks/slack/events", r.handleSlackEvents)
	router.POST("/webhooks/agent", r.handleAgentWebhook)
	router.POST("/webhooks/rooaak", r.handleAgentWebhook)
}

// ServeOpts holds parameters for Serve.
type ServeOpts struct {
	Addr            string // e.g. ":8787"
	Handler         http.Handler
	ShutdownTimeout time.Duration // default 10s
	// Listener, if set, is used instead of listening on Addr.
	Listener net.Listener
}

// Serve runs an HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func Serve(ctx context.Context, opts ServeOpts) error {
	if opts.Handler == nil {
		return fmt.Errorf("relay: handler is required")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           opts.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln := opts.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", opts.Addr)
		if err != nil {
			return fmt.Errorf("relay: listen %s: %w", opts.Addr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	slog.InfoContext(ctx, "http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relay: shutdown: %w", err)
	}
	return nil
}
