// Package events fans node events out to websocket viewers. Node messages
// carrying the viewer prefix are parsed into events and every viewer
// receives the kinds it subscribed to.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Prefix marks the node messages that are forwarded to viewers. A viewer
// message has the form "viewer: <kind>: <json>".
const Prefix = "viewer:"

// Set of event kinds the node produces.
const (
	KindBlock = "block"
	KindTx    = "tx"
	KindPeer  = "peer"
)

// Event is one node message delivered to viewers.
type Event struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Parse extracts the event carried by a node message. Messages without the
// prefix, without a kind or with a payload that isn't JSON are not events.
func Parse(msg string) (Event, bool) {
	rest, ok := strings.CutPrefix(msg, Prefix)
	if !ok {
		return Event{}, false
	}

	kind, data, ok := strings.Cut(rest, ":")
	if !ok {
		return Event{}, false
	}

	kind = strings.TrimSpace(kind)
	data = strings.TrimSpace(data)

	if kind == "" || !json.Valid([]byte(data)) {
		return Event{}, false
	}

	return Event{Kind: kind, Data: json.RawMessage(data)}, true
}

// =============================================================================

// viewer is one registered receiver. An empty kinds set receives everything.
type viewer struct {
	ch    chan Event
	kinds map[string]struct{}
}

func (v viewer) wants(kind string) bool {
	if len(v.kinds) == 0 {
		return true
	}

	_, exists := v.kinds[kind]
	return exists
}

// Events maintains the set of viewers keyed by a unique id.
type Events struct {
	m  map[string]viewer
	mu sync.RWMutex
}

// New constructs an events value for registering viewers.
func New() *Events {
	return &Events{
		m: make(map[string]viewer),
	}
}

// Shutdown closes and removes every viewer channel.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, v := range evt.m {
		delete(evt.m, id)
		close(v.ch)
	}
}

// Acquire registers a viewer for the specified kinds, or every kind when
// none are given, and returns the channel its events arrive on. Acquiring
// an id twice returns the existing channel.
func (evt *Events) Acquire(id string, kinds ...string) <-chan Event {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if v, exists := evt.m[id]; exists {
		return v.ch
	}

	// Events are dropped for a viewer that isn't ready.
	const eventBuffer = 100

	v := viewer{
		ch:    make(chan Event, eventBuffer),
		kinds: make(map[string]struct{}, len(kinds)),
	}
	for _, kind := range kinds {
		v.kinds[kind] = struct{}{}
	}

	evt.m[id] = v
	return v.ch
}

// Release closes and removes the viewer registered under the id.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	v, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(v.ch)
	return nil
}

// Count returns the number of registered viewers.
func (evt *Events) Count() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.m)
}

// Send delivers the event to every viewer subscribed to its kind. Send
// never blocks on a viewer.
func (evt *Events) Send(e Event) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, v := range evt.m {
		if !v.wants(e.Kind) {
			continue
		}

		select {
		case v.ch <- e:
		default:
		}
	}
}

// SendMessage parses the node message and delivers it when it is an event.
// It reports whether the message was an event.
func (evt *Events) SendMessage(msg string) bool {
	e, ok := Parse(msg)
	if !ok {
		return false
	}

	evt.Send(e)
	return true
}
