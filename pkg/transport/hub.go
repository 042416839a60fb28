// Copyright 2025 UMH Systems GmbH
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

// Package transport fans attribute changes out to observers. The hub is the
// single place where core-side Set calls become visible to the outside;
// gateways subscribe here instead of polling attributes.
package transport

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pea-core/pkg/attribute"
)

// Update is one observed attribute change.
type Update struct {
	Service   string    `json:"service"`
	Element   string    `json:"element,omitempty"`
	Attribute string    `json:"attribute"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub distributes attribute updates to subscribers. Delivery is best effort:
// a subscriber that stops draining its channel loses updates rather than
// stalling the core.
type Hub struct {
	// mu protects subscribers
	mu sync.RWMutex

	subscribers map[int64]chan Update
	nextID      int64

	logger *zap.SugaredLogger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		subscribers: make(map[int64]chan Update),
		logger:      logger,
	}
}

// Subscribe registers an observer. The returned cancel function must be
// called when the observer goes away.
func (h *Hub) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan Update, buffer)
	h.subscribers[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if sub, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(sub)
		}
	}

	return ch, cancel
}

// Publish fans one update out to all subscribers.
func (h *Hub) Publish(update Update) {
	update.Timestamp = time.Now()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- update:
		default:
			h.logger.Debugf("Dropping update %s/%s for slow subscriber",
				update.Service, update.Attribute)
		}
	}
}

// Attach wires every attribute of the registry to the hub. Element is empty
// for service-level attributes.
func (h *Hub) Attach(serviceName, element string, attrs *attribute.Registry) {
	for _, attr := range attrs.All() {
		attr.AttachPublisher(func(name string, value any) {
			h.Publish(Update{
				Service:   serviceName,
				Element:   element,
				Attribute: name,
				Value:     value,
			})
		})
	}
}
