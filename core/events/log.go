package events

import "log/slog"

// attributed is implemented by events that expose a flat attribute map in
// addition to their type. Engine event wrappers satisfy it.
type attributed interface {
	Event
	Attributes() map[string]string
}

// LogEmitter writes every emitted event to a structured logger. It is the
// default subscriber wired by the daemon so transitions remain observable
// without an external indexer.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter returns an emitter backed by the supplied logger. A nil logger
// falls back to slog.Default.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements the Emitter interface.
func (l *LogEmitter) Emit(evt Event) {
	if l == nil || l.logger == nil || evt == nil {
		return
	}
	args := []any{slog.String("event", evt.EventType())}
	if withAttrs, ok := evt.(attributed); ok {
		for key, value := range withAttrs.Attributes() {
			args = append(args, slog.String(key, value))
		}
	}
	l.logger.Info("event emitted", args...)
}
