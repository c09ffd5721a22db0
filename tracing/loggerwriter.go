package tracing

import dcontext "github.com/zpkg/registry/context"

// loggerWriter redirects exporter output and OpenTelemetry errors into
// the context logger.
type loggerWriter struct {
	logger dcontext.Logger
}

func (lw *loggerWriter) Write(p []byte) (n int, err error) {
	lw.logger.Debug(string(p))
	return len(p), nil
}

// Handle logs the error, satisfying otel.ErrorHandler.
func (lw *loggerWriter) Handle(err error) {
	lw.logger.Error(err)
}
