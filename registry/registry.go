// Package registry assembles the application into a runnable HTTP server:
// logging, middleware, listener and lifecycle around handlers.App.
package registry

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorhandlers "github.com/gorilla/handlers"
	log "github.com/sirupsen/logrus"

	"github.com/zpkg/registry/configuration"
	dcontext "github.com/zpkg/registry/context"
	"github.com/zpkg/registry/registry/handlers"
	"github.com/zpkg/registry/tracing"
	"github.com/zpkg/registry/version"
)

// A Registry represents a complete instance of the registry.
type Registry struct {
	config *configuration.Configuration
	app    *handlers.App
	server *http.Server
	ln     net.Listener
}

// NewRegistry creates a new registry from a context and configuration
// struct.
func NewRegistry(ctx context.Context, config *configuration.Configuration) (*Registry, error) {
	ctx, err := configureLogging(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error configuring logger: %v", err)
	}

	if err := tracing.InitOpenTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("error during open telemetry initialization: %v", err)
	}

	app, err := handlers.NewApp(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error configuring application: %v", err)
	}

	var handler http.Handler = app
	handler = panicHandler(handler)
	handler = gorhandlers.CombinedLoggingHandler(os.Stdout, handler)

	server := &http.Server{
		Handler: handler,
		// Uploads stream for minutes; only bound the header read here and
		// leave body deadlines to the per-request contexts.
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", config.Addr())
	if err != nil {
		return nil, err
	}

	dcontext.GetLogger(ctx).Infof("listening on %v", ln.Addr())

	return &Registry{
		app:    app,
		config: config,
		server: server,
		ln:     ln,
	}, nil
}

// Serve runs the registry's HTTP server until it fails or a termination
// signal arrives, then drains in-flight requests before closing the
// catalog.
func (registry *Registry) Serve() error {
	defer registry.ln.Close()

	errChan := make(chan error, 1)
	go func() {
		errChan <- registry.server.Serve(registry.ln)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		registry.app.Close()
		return err
	case sig := <-sigChan:
		log.Infof("received %v, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := registry.server.Shutdown(ctx)
	if cerr := registry.app.Close(); err == nil {
		err = cerr
	}
	return err
}

// configureLogging prepares the process and context loggers from the
// configured level.
func configureLogging(ctx context.Context, config *configuration.Configuration) (context.Context, error) {
	level, err := log.ParseLevel(string(config.Loglevel))
	if err != nil {
		return ctx, fmt.Errorf("invalid loglevel %q: %v", config.Loglevel, err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: time.RFC3339Nano,
		FullTimestamp:   true,
	})

	ctx = dcontext.WithValues(ctx, map[string]interface{}{"version": version.Version()})
	ctx = dcontext.WithLogger(ctx, dcontext.GetLogger(ctx, "version"))

	return ctx, nil
}

// panicHandler turns handler panics into logged 500s instead of killed
// connections.
func panicHandler(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, err)
				http.Error(w, http.StatusText(http.StatusInternalServerError),
					http.StatusInternalServerError)
			}
		}()
		handler.ServeHTTP(w, r)
	})
}
