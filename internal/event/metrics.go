// Copyright 2024 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Derived from github.com/blinklabs-io/dingo event/event.go. Modified: bus
// counters moved to their own file with imi_ metric names.

// internal/event/metrics.go
package event

import (
	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	eventsTotal    *prometheus.CounterVec
	deliveryErrors *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	subscribers    *prometheus.GaugeVec
}

func (e *EventBus) initMetrics(reg prometheus.Registerer) {
	m := &eventMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imi_event_published_total",
			Help: "Events delivered through the event bus",
		}, []string{"type"}),
		deliveryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imi_event_delivery_errors_total",
			Help: "Event deliveries that failed and unsubscribed the receiver",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imi_event_dropped_total",
			Help: "Async events dropped because the queue was full",
		}, []string{"type"}),
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "imi_event_subscribers",
			Help: "Current subscribers per event type",
		}, []string{"type"}),
	}
	reg.MustRegister(m.eventsTotal, m.deliveryErrors, m.dropped, m.subscribers)
	e.metrics = m
}
