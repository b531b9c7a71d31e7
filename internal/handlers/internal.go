package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shilpkart/api/internal/platform/jobs"
)

// InternalHandlers serves operational endpoints reachable only through the
// /internal group, which the router guards with service-to-service auth.
type InternalHandlers struct {
	reconciler *jobs.Reconciler
}

func NewInternalHandlers(reconciler *jobs.Reconciler) (*InternalHandlers, error) {
	if reconciler == nil {
		return nil, errors.New("handlers: reconciler is required")
	}
	return &InternalHandlers{reconciler: reconciler}, nil
}

// Register mounts the internal routes on the provided router group.
func (h *InternalHandlers) Register(r chi.Router) {
	r.Post("/reconcile", h.Reconcile)
}

// Reconcile triggers one sweep outside the periodic schedule. Cloud Scheduler
// calls this so a crashed sweeper loop never leaves stale orders unbounded.
func (h *InternalHandlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.reconciler.RunOnce(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reservationsReleased": stats.ReservationsReleased,
		"ordersCancelled":      stats.OrdersCancelled,
	})
}
