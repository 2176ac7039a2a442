// internal/services/events.go
package services

import (
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-licensing/internal/event"
)

// outbox collects events raised inside a unit of work so they are published
// only after it commits.
type outbox struct {
	events []event.Event
}

func (o *outbox) add(eventType event.EventType, data any) {
	o.events = append(o.events, event.NewEvent(eventType, data))
}

func (o *outbox) flush(publisher event.Publisher, logger *logrus.Entry) {
	if publisher == nil {
		return
	}
	for _, evt := range o.events {
		if !publisher.PublishAsync(evt.Type, evt) {
			logger.WithField("type", evt.Type).Warn("event not published")
		}
	}
	o.events = nil
}

func componentLogger(logger *logrus.Entry, component string) *logrus.Entry {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return logger.WithField("component", component)
}
