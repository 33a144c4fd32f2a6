package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serveMetrics exposes the default Prometheus registry on addr until ctx is done
func serveMetrics(ctx context.Context, addr string, log logr.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error(err, "unable to stop metrics server")
		}
	}()
	go func() {
		log.Info("serving metrics", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server failed")
		}
	}()
	return nil
}

// startMetrics serves metrics when --metrics-addr is set
func (a *app) startMetrics(ctx context.Context) error {
	addr := a.viper.GetString("metrics-addr")
	if addr == "" {
		return nil
	}
	return serveMetrics(ctx, addr, a.log)
}
