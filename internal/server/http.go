package server

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/dcr-tools/dcr/internal/config"
)

// fasthttpLogger routes fasthttp's internal messages (mostly connection
// errors) to zap.
type fasthttpLogger struct {
	log *zap.SugaredLogger
}

func (l fasthttpLogger) Printf(format string, args ...any) {
	l.log.Warnf(format, args...)
}

// NewServer wraps handler in a fasthttp server. Request bodies are streamed
// so the handlers decide how much of them to buffer.
func NewServer(cfg config.Config, handler *Handler, logger *zap.Logger) *fasthttp.Server {
	return &fasthttp.Server{
		Handler:           handler.Serve,
		Name:              "dcr",
		StreamRequestBody: true,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		CloseOnShutdown:   true,
		Logger:            fasthttpLogger{log: logger.Named("fasthttp").Sugar()},
	}
}
