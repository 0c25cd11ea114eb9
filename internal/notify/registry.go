package notify

import (
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Handler receives every parsed inbound message. A returned error or a panic
// is logged and does not stop dispatch to the remaining handlers.
type Handler func(msg any) error

// HandlerID identifies a registration. Registering the same function twice
// yields two independent registrations.
type HandlerID string

type handlerEntry struct {
	id HandlerID
	fn Handler
}

// handlerRegistry insertion-ordered handler list
type handlerRegistry struct {
	mu      sync.RWMutex
	entries []handlerEntry
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{}
}

func (r *handlerRegistry) register(fn Handler) HandlerID {
	id := HandlerID(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, handlerEntry{id: id, fn: fn})
	return id
}

// unregister removes the first entry with the given id; unknown ids are ignored.
func (r *handlerRegistry) unregister(id HandlerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, idx, ok := lo.FindIndexOf(r.entries, func(e handlerEntry) bool {
		return e.id == id
	})
	if !ok {
		return false
	}
	r.entries = append(r.entries[:idx:idx], r.entries[idx+1:]...)
	return true
}

// snapshot returns a copy so that handlers may (un)register during dispatch.
func (r *handlerRegistry) snapshot() []handlerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]handlerEntry(nil), r.entries...)
}

func (r *handlerRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
