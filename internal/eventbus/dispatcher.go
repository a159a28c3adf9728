// Package eventbus implements the priority-ordered, filter-gated fan-out
// used to deliver updates from the call lifecycle and buffer fleet to
// host subscribers.
package eventbus

import (
	"sort"
	"sync"

	"github.com/TgCaller/TgCaller/internal/logging"
)

// UpdateKind discriminates the variants of Update.
type UpdateKind int

const (
	UpdateParticipant UpdateKind = iota
	UpdateKicked
	UpdateCallEnded
	UpdateHealthDegraded
	UpdateStreamEnd
	UpdateLeft
	UpdateError
	UpdateCustom
)

// Update is the single typed sum every handler receives, unifying the
// heterogeneous event shapes into one dispatch type.
type Update struct {
	Kind    UpdateKind
	ChatID  int64
	Payload any
}

// Filter gates whether a handler receives an Update. Implementations must
// be pure and non-blocking.
type Filter interface {
	Matches(u Update) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(u Update) bool

func (f FilterFunc) Matches(u Update) bool { return f(u) }

// And combines filters: matches iff every filter matches.
func And(filters ...Filter) Filter {
	return FilterFunc(func(u Update) bool {
		for _, f := range filters {
			if !f.Matches(u) {
				return false
			}
		}
		return true
	})
}

// Or combines filters: matches iff any filter matches.
func Or(filters ...Filter) Filter {
	return FilterFunc(func(u Update) bool {
		for _, f := range filters {
			if f.Matches(u) {
				return true
			}
		}
		return false
	})
}

// KindIs matches updates of a specific UpdateKind.
func KindIs(kind UpdateKind) Filter {
	return FilterFunc(func(u Update) bool { return u.Kind == kind })
}

// ChatIs matches updates for a specific chat id.
func ChatIs(chatID int64) Filter {
	return FilterFunc(func(u Update) bool { return u.ChatID == chatID })
}

// Handler receives a dispatched Update.
type Handler func(u Update)

type entry struct {
	id       int
	handler  Handler
	filter   Filter
	priority int
}

// Dispatcher is an ordered list of (handler, filter, priority) entries,
// sorted by descending priority, stable within equal priorities. Handler
// panics are recovered, logged, and never abort dispatch to the remaining
// handlers.
type Dispatcher struct {
	logger logging.Logger

	mu      sync.Mutex
	entries []entry
	nextID  int
}

// New builds an empty Dispatcher.
func New(logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{logger: logger.Named("event_dispatcher")}
}

// HandlerID identifies a registered handler for later removal.
type HandlerID int

// AddHandler registers handler, invoked when filter is nil or returns
// true, in descending priority order.
func (d *Dispatcher) AddHandler(handler Handler, filter Filter, priority int) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.entries = append(d.entries, entry{id: id, handler: handler, filter: filter, priority: priority})
	sort.SliceStable(d.entries, func(i, j int) bool {
		return d.entries[i].priority > d.entries[j].priority
	})
	return HandlerID(id)
}

// RemoveHandler unregisters a handler by the id returned from AddHandler.
func (d *Dispatcher) RemoveHandler(id HandlerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.entries {
		if e.id == int(id) {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return
		}
	}
}

// Dispatch delivers u to every matching handler in priority order. A
// handler that panics is logged and isolated; it never interrupts
// delivery to the remaining handlers.
func (d *Dispatcher) Dispatch(u Update) {
	d.mu.Lock()
	snapshot := append([]entry(nil), d.entries...)
	d.mu.Unlock()

	for _, e := range snapshot {
		if e.filter != nil && !e.filter.Matches(u) {
			continue
		}
		d.invoke(e, u)
	}
}

func (d *Dispatcher) invoke(e entry, u Update) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("event handler panicked", "handler_id", e.id, "recovered", r)
		}
	}()
	e.handler(u)
}
