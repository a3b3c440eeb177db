package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/txstatus"
	"github.com/google/uuid"
)

// View is one displayed transaction: a status poller bound to a stream.
type View struct {
	ID        string
	Signature string
	Selection cluster.Selection
	Poller    *txstatus.Poller
	CreatedAt time.Time
}

// ViewRegistry tracks live views so visibility and refresh requests can reach
// their poller. Removing a view closes its poller.
type ViewRegistry struct {
	mu     sync.Mutex
	views  map[string]*View
	logger *slog.Logger
}

// NewViewRegistry creates an empty registry.
func NewViewRegistry(logger *slog.Logger) *ViewRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewRegistry{
		views:  make(map[string]*View),
		logger: logger,
	}
}

// Add registers a poller under a new view id.
func (r *ViewRegistry) Add(signature string, sel cluster.Selection, p *txstatus.Poller) *View {
	v := &View{
		ID:        uuid.NewString(),
		Signature: signature,
		Selection: sel,
		Poller:    p,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.views[v.ID] = v
	n := len(r.views)
	r.mu.Unlock()

	r.logger.Debug("view registered", "view_id", v.ID, "signature", signature, "views", n)
	return v
}

// Get returns the view with id.
func (r *ViewRegistry) Get(id string) (*View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[id]
	return v, ok
}

// Remove unregisters the view and closes its poller. It reports whether the
// view existed.
func (r *ViewRegistry) Remove(id string) bool {
	r.mu.Lock()
	v, ok := r.views[id]
	delete(r.views, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	v.Poller.Close()
	r.logger.Debug("view removed", "view_id", id, "signature", v.Signature)
	return true
}

// Len returns the number of live views.
func (r *ViewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// CloseAll removes every view.
func (r *ViewRegistry) CloseAll() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*View)
	r.mu.Unlock()

	for _, v := range views {
		v.Poller.Close()
	}
	if len(views) > 0 {
		r.logger.Info("closed live views", "count", len(views))
	}
}
