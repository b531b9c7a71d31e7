package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/platform/config"
	"github.com/shilpkart/api/internal/repositories"
	"github.com/shilpkart/api/internal/services"
)

const (
	defaultReconcileInterval   = 5 * time.Minute
	defaultPendingOrderAge     = 30 * time.Minute
	defaultReconcileBatchSize  = 50
	reconcileReleaseReason     = "reservation_expired"
	reconcileCancellationNotes = "Payment was not completed in time and the order was cancelled automatically."
)

// Reconciler is the background sweep that returns expired reservations to
// stock and cancels orders whose payment never arrived. It exists because
// crashes and abandoned gateway sessions leave both kinds of garbage behind.
type Reconciler struct {
	orders    repositories.OrderRepository
	stock     repositories.InventoryRepository
	inventory services.InventoryService
	events    services.OrderEventPublisher

	interval        time.Duration
	pendingOrderAge time.Duration
	batchSize       int

	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// ReconcilerDeps wires the reconciler.
type ReconcilerDeps struct {
	Orders    repositories.OrderRepository
	Stock     repositories.InventoryRepository
	Inventory services.InventoryService
	Events    services.OrderEventPublisher
	Config    config.ReconcilerConfig
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
}

// ReconcileStats summarises one sweep pass.
type ReconcileStats struct {
	ReservationsReleased int
	OrdersCancelled      int
}

// NewReconciler validates dependencies and returns the sweeper.
func NewReconciler(deps ReconcilerDeps) (*Reconciler, error) {
	if deps.Orders == nil {
		return nil, errors.New("reconciler: order repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("reconciler: inventory repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("reconciler: inventory service is required")
	}

	interval := deps.Config.Interval
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	pendingAge := deps.Config.PendingOrderAge
	if pendingAge <= 0 {
		pendingAge = defaultPendingOrderAge
	}
	batchSize := deps.Config.BatchSize
	if batchSize <= 0 {
		batchSize = defaultReconcileBatchSize
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Reconciler{
		orders:          deps.Orders,
		stock:           deps.Stock,
		inventory:       deps.Inventory,
		events:          deps.Events,
		interval:        interval,
		pendingOrderAge: pendingAge,
		batchSize:       batchSize,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Run sweeps immediately, then on every interval tick until the context ends.
func (r *Reconciler) Run(ctx context.Context) error {
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	stats, err := r.RunOnce(ctx)
	if err != nil {
		r.logger(ctx, "reconciler.sweep_failed", map[string]any{"error": err.Error()})
		return
	}
	if stats.ReservationsReleased > 0 || stats.OrdersCancelled > 0 {
		r.logger(ctx, "reconciler.sweep_completed", map[string]any{
			"reservationsReleased": stats.ReservationsReleased,
			"ordersCancelled":      stats.OrdersCancelled,
		})
	}
}

// RunOnce performs a single sweep pass and reports what it cleaned up.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats

	released, err := r.releaseExpiredReservations(ctx)
	stats.ReservationsReleased = released
	if err != nil {
		return stats, err
	}

	cancelled, err := r.cancelStaleOrders(ctx)
	stats.OrdersCancelled = cancelled
	return stats, err
}

func (r *Reconciler) releaseExpiredReservations(ctx context.Context) (int, error) {
	now := r.clock()
	expired, err := r.stock.ListExpiredReservations(ctx, now, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired reservations: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(expired))
	for _, reservation := range expired {
		ids = append(ids, reservation.ID)
	}
	if err := r.inventory.ReleaseReservations(ctx, ids, reconcileReleaseReason); err != nil {
		// Per-reservation failures were already skipped inside the
		// release; whatever remains is a store-level problem.
		return len(ids), fmt.Errorf("release expired reservations: %w", err)
	}
	return len(ids), nil
}

func (r *Reconciler) cancelStaleOrders(ctx context.Context) (int, error) {
	now := r.clock()
	cutoff := now.Add(-r.pendingOrderAge)

	stale, err := r.orders.ListStalePending(ctx, cutoff, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale pending orders: %w", err)
	}

	cancelled := 0
	for _, order := range stale {
		if order.PaymentTerminal() {
			continue
		}

		// The latch keeps a late gateway callback and the sweeper from
		// both settling the same order.
		claimed, err := r.orders.MarkPaymentProcessed(ctx, order.ID, now)
		if err != nil {
			r.logger(ctx, "reconciler.claim_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
			continue
		}
		if !claimed {
			continue
		}

		notes := reconcileCancellationNotes
		updated, err := r.orders.UpdatePaymentState(ctx, repositories.OrderPaymentStateUpdate{
			OrderID:       order.ID,
			Status:        domain.OrderStatusCancelled,
			PaymentStatus: domain.PaymentStatusFailed,
			OrderNotes:    &notes,
			CancelledAt:   &now,
			Now:           now,
		})
		if err != nil {
			r.logger(ctx, "reconciler.cancel_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
			continue
		}
		cancelled++

		if len(updated.ReservationIDs) > 0 {
			if err := r.inventory.ReleaseReservations(ctx, updated.ReservationIDs, reconcileReleaseReason); err != nil {
				r.logger(ctx, "reconciler.release_failed", map[string]any{
					"orderId": updated.ID,
					"error":   err.Error(),
				})
			}
		}

		r.publishCancellation(ctx, updated)
	}
	return cancelled, nil
}

func (r *Reconciler) publishCancellation(ctx context.Context, order domain.Order) {
	if r.events == nil {
		return
	}
	message := services.OrderEventMessage{
		EventType:     services.OrderEventCancelled,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		AmountPaise:   order.Totals.GrandTotal.Paise(),
		OccurredAt:    r.clock(),
	}
	if _, err := r.events.PublishOrderEvent(ctx, message); err != nil {
		r.logger(ctx, "reconciler.event_not_published", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}
