package sim

import (
	"reflect"

	"github.com/sirupsen/logrus"
)

// EventLogger is a hook that logs every event before it is handled.
type EventLogger struct {
	Logger logrus.FieldLogger
}

// NewEventLogger returns a new EventLogger which will write into the logger
func NewEventLogger(logger logrus.FieldLogger) *EventLogger {
	return &EventLogger{Logger: logger}
}

// Func writes the event information into the logger
func (h *EventLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(Event)
	if !ok {
		return
	}

	fields := logrus.Fields{
		"time":  float64(evt.Time()),
		"event": reflect.TypeOf(evt).String(),
	}

	if comp, ok := evt.Handler().(Component); ok {
		fields["handler"] = comp.Name()
	}

	h.Logger.WithFields(fields).Debug("event")
}
