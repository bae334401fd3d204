// Package toast tracks transient per-query notifications. The tray is the
// in-process stand-in for a notification surface: submissions add a toast,
// completion marks it done, abort or failure dismisses it.
package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"docagent/internal/logging"
)

// State is the lifecycle state of one toast.
type State string

const (
	StateActive   State = "active"
	StateComplete State = "complete"
)

// Toast is one notification owned by a query.
type Toast struct {
	ID        string
	OwnerID   string
	Text      string
	State     State
	CreatedAt time.Time
}

// Tray holds the live toasts. All methods are safe for concurrent use and
// never block.
type Tray struct {
	mu     sync.Mutex
	toasts map[string]*Toast
	order  []string
}

// NewTray creates an empty tray.
func NewTray() *Tray {
	return &Tray{toasts: make(map[string]*Toast)}
}

// AddToast registers a toast for a query and returns its id.
func (t *Tray) AddToast(text, ownerID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	toast := &Toast{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Text:      text,
		State:     StateActive,
		CreatedAt: time.Now(),
	}
	t.toasts[toast.ID] = toast
	t.order = append(t.order, toast.ID)

	logging.SessionDebug("toast %s added for query %s", toast.ID, ownerID)
	return toast.ID
}

// MarkComplete flips a toast to its completed state. Unknown ids are
// ignored.
func (t *Tray) MarkComplete(toastID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if toast, ok := t.toasts[toastID]; ok {
		toast.State = StateComplete
	}
}

// DismissToast removes a toast. Unknown ids are ignored.
func (t *Tray) DismissToast(toastID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.toasts[toastID]; !ok {
		return
	}
	delete(t.toasts, toastID)
	for i, id := range t.order {
		if id == toastID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// List returns the live toasts in creation order.
func (t *Tray) List() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Toast, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.toasts[id])
	}
	return out
}
