package eventbus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/forgekeeper/forgekeeper/internal/logging"
)

// wmLogger adapts internal/logging's zerolog sink to watermill's
// LoggerAdapter interface, the same "make a third-party logging
// interface speak our structured logger" shape as
// logging.SlogHandler does for sutureslog.
type wmLogger struct {
	fields watermill.LogFields
}

func newWMLogger() watermill.LoggerAdapter {
	return wmLogger{}
}

func (l wmLogger) Error(msg string, err error, fields watermill.LogFields) {
	ev := logging.Error().Err(err)
	applyFields(applyFields(ev, l.fields), fields).Msg(msg)
}

func (l wmLogger) Info(msg string, fields watermill.LogFields) {
	applyFields(applyFields(logging.Info(), l.fields), fields).Msg(msg)
}

func (l wmLogger) Debug(msg string, fields watermill.LogFields) {
	applyFields(applyFields(logging.Debug(), l.fields), fields).Msg(msg)
}

func (l wmLogger) Trace(msg string, fields watermill.LogFields) {
	applyFields(applyFields(logging.Debug(), l.fields), fields).Msg(msg)
}

func (l wmLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(watermill.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return wmLogger{fields: merged}
}

// applyFields folds watermill log fields into a zerolog event.
func applyFields(ev *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	return ev
}
