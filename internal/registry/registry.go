// Package registry provides the in-memory template registry. The file store
// fills it at startup and on change, and the server's websocket layer
// subscribes to its events to push template updates to editing clients.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/casefolio/casefolio/internal/document"
)

// TemplateInfo holds a loaded template document and its source metadata.
type TemplateInfo struct {
	Name     string
	FilePath string
	Content  document.Map
	LastMod  time.Time
}

// EventType represents the type of template registry event.
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeUpdated
	EventTypeRemoved
)

// String returns the event type name used on the wire.
func (t EventType) String() string {
	switch t {
	case EventTypeAdded:
		return "added"
	case EventTypeUpdated:
		return "updated"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event represents a change in the template registry.
type Event struct {
	Type      EventType
	Template  *TemplateInfo
	Timestamp time.Time
}

// TemplateRegistry manages all loaded templates.
type TemplateRegistry struct {
	templates map[string]*TemplateInfo
	mutex     sync.RWMutex
	watchers  []chan Event
}

// NewTemplateRegistry creates an empty template registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]*TemplateInfo),
	}
}

// Register adds or updates a template and notifies watchers.
func (r *TemplateRegistry) Register(tmpl *TemplateInfo) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	eventType := EventTypeAdded
	if _, exists := r.templates[tmpl.Name]; exists {
		eventType = EventTypeUpdated
	}
	r.templates[tmpl.Name] = tmpl

	r.notify(Event{Type: eventType, Template: tmpl, Timestamp: time.Now()})
}

// Remove removes a template by name and notifies watchers.
func (r *TemplateRegistry) Remove(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	tmpl, exists := r.templates[name]
	if !exists {
		return
	}
	delete(r.templates, name)

	r.notify(Event{Type: EventTypeRemoved, Template: tmpl, Timestamp: time.Now()})
}

// Get retrieves a template by name.
func (r *TemplateRegistry) Get(name string) (*TemplateInfo, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	tmpl, exists := r.templates[name]
	return tmpl, exists
}

// List returns all templates sorted by name.
func (r *TemplateRegistry) List() []*TemplateInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*TemplateInfo, 0, len(r.templates))
	for _, tmpl := range r.templates {
		out = append(out, tmpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// Count returns the number of registered templates.
func (r *TemplateRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.templates)
}

// Watch returns a channel receiving registry events. The channel is buffered;
// events are dropped for watchers that fall behind rather than blocking the
// registry.
func (r *TemplateRegistry) Watch() <-chan Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan Event, 16)
	r.watchers = append(r.watchers, ch)
	return ch
}

// Unwatch removes a watcher channel and closes it.
func (r *TemplateRegistry) Unwatch(ch <-chan Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if (<-chan Event)(watcher) == ch {
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			close(watcher)
			return
		}
	}
}

func (r *TemplateRegistry) notify(event Event) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full.
		}
	}
}
