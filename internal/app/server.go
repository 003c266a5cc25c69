package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/feldspar-health/murmur/internal/observe"
)

// Routes returns the gateway HTTP handler: the UI websocket at /ws, the
// Prometheus scrape endpoint at /metrics, and the health probes. Everything
// is wrapped in the observability middleware.
func (p *Pipeline) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", p.hub)
	mux.Handle("GET /metrics", promhttp.Handler())
	p.health.Register(mux)
	return observe.Middleware(p.metrics)(mux)
}

// Run serves the UI gateway until ctx is cancelled, then shuts the server
// down gracefully.
func (p *Pipeline) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              p.cfg.Server.ListenAddr,
		Handler:           p.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.log.Info("gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
