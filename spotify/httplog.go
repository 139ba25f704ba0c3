package spotify

import "github.com/rs/zerolog"

// retryLogger routes go-httpretry events into zerolog. The library's
// default writes through slog to stderr regardless of the debug setting.
type retryLogger struct {
	l zerolog.Logger
}

func (r retryLogger) Debug(msg string, args ...any) { r.l.Debug().Fields(args).Msg(msg) }
func (r retryLogger) Info(msg string, args ...any)  { r.l.Info().Fields(args).Msg(msg) }
func (r retryLogger) Warn(msg string, args ...any)  { r.l.Warn().Fields(args).Msg(msg) }
func (r retryLogger) Error(msg string, args ...any) { r.l.Error().Fields(args).Msg(msg) }
