package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/repositories"
)

const defaultReservationTTL = 15 * time.Minute

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryInsufficientStock indicates on-hand stock is below the requested quantity.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryReservedByOthers indicates nominal stock exists but other
	// holders' unexpired reservations consume it.
	ErrInventoryReservedByOthers = errors.New("inventory: reserved by others")
	// ErrInventoryReservationNotFound indicates the reservation could not be located.
	ErrInventoryReservationNotFound = errors.New("inventory: reservation not found")
	// ErrInventoryInvalidState indicates the reservation cannot transition from its state.
	ErrInventoryInvalidState = errors.New("inventory: reservation state invalid")
	// ErrInventoryUnavailable indicates the stock store could not be reached.
	ErrInventoryUnavailable = errors.New("inventory: unavailable")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory      repositories.InventoryRepository
	ReservationTTL time.Duration
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.InventoryRepository
	ttl    time.Duration
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	ttl := deps.ReservationTTL
	if ttl <= 0 {
		ttl = defaultReservationTTL
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo: deps.Inventory,
		ttl:  ttl,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// AvailableStock returns the live unreserved quantity for a variant.
func (s *inventoryService) AvailableStock(ctx context.Context, variantID string) (int, error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return 0, fmt.Errorf("%w: variant id is required", ErrInventoryInvalidInput)
	}
	stock, err := s.repo.GetStock(ctx, variantID)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	available := stock.OnHand - stock.Reserved
	if available < 0 {
		available = 0
	}
	return available, nil
}

// ReserveStock places a provisional hold on a single variant. Availability is
// checked against live stock inside the repository transaction, never against
// cart-cached numbers.
func (s *inventoryService) ReserveStock(ctx context.Context, cmd ReserveStockCommand) (StockReservation, error) {
	if err := validateReserveCommand(cmd); err != nil {
		return StockReservation{}, err
	}

	now := s.clock()
	ttl := cmd.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}

	reservation := StockReservation{
		ID:        "sr_" + s.newID(),
		VariantID: strings.TrimSpace(cmd.VariantID),
		Quantity:  cmd.Quantity,
		UserRef:   strings.TrimSpace(cmd.UserID),
		OrderRef:  strings.TrimSpace(cmd.OrderID),
		Status:    domain.ReservationReserved,
		Reason:    strings.TrimSpace(cmd.Reason),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}

	result, err := s.repo.Reserve(ctx, repositories.InventoryReserveRequest{
		Reservation: reservation,
		Now:         now,
	})
	if err != nil {
		return StockReservation{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "inventory.reserved", map[string]any{
		"reservationId": result.Reservation.ID,
		"variantId":     result.Reservation.VariantID,
		"qty":           result.Reservation.Quantity,
		"available":     result.Stock.Available,
	})

	return result.Reservation, nil
}

// ConfirmReservations converts a batch of holds into committed decrements,
// sequentially. Any failure means the caller must treat the whole batch as
// failed and roll back.
func (s *inventoryService) ConfirmReservations(ctx context.Context, cmd ConfirmReservationsCommand) error {
	if len(cmd.ReservationIDs) == 0 {
		return fmt.Errorf("%w: at least one reservation id is required", ErrInventoryInvalidInput)
	}

	now := s.clock()
	for _, id := range cmd.ReservationIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return fmt.Errorf("%w: reservation id is required", ErrInventoryInvalidInput)
		}
		result, err := s.repo.Confirm(ctx, repositories.InventoryConfirmRequest{
			ReservationID: id,
			OrderRef:      strings.TrimSpace(cmd.OrderID),
			Now:           now,
		})
		if err != nil {
			return s.mapRepositoryError(err)
		}
		s.logger(ctx, "inventory.confirmed", map[string]any{
			"reservationId": id,
			"variantId":     result.Reservation.VariantID,
			"onHand":        result.Stock.OnHand,
		})
	}
	return nil
}

// ReleaseReservations returns holds to the pool. Best-effort: every id is
// attempted; already-released and missing reservations are skipped.
func (s *inventoryService) ReleaseReservations(ctx context.Context, reservationIDs []string, reason string) error {
	var firstErr error
	now := s.clock()
	for _, id := range reservationIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		_, err := s.repo.Release(ctx, repositories.InventoryReleaseRequest{
			ReservationID: id,
			Reason:        strings.TrimSpace(reason),
			Now:           now,
		})
		if err != nil {
			mapped := s.mapRepositoryError(err)
			if errors.Is(mapped, ErrInventoryReservationNotFound) || errors.Is(mapped, ErrInventoryInvalidState) {
				continue
			}
			s.logger(ctx, "inventory.release_failed", map[string]any{
				"reservationId": id,
				"reason":        reason,
				"error":         err.Error(),
			})
			if firstErr == nil {
				firstErr = mapped
			}
		}
	}
	return firstErr
}

// ValidateAvailability performs the advisory pre-checkout read. It reserves
// nothing and its verdict can be stale by the time reservation runs; it exists
// to fail obviously-doomed checkouts early with itemized detail.
func (s *inventoryService) ValidateAvailability(ctx context.Context, lines []CartLine) ([]StockShortfall, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	variantIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		if id := strings.TrimSpace(line.VariantID); id != "" {
			variantIDs = append(variantIDs, id)
		}
	}

	stocks, err := s.repo.GetStocks(ctx, variantIDs)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	var shortfalls []StockShortfall
	for _, line := range lines {
		variantID := strings.TrimSpace(line.VariantID)
		if variantID == "" || line.Quantity <= 0 {
			continue
		}
		stock, ok := stocks[variantID]
		if !ok {
			shortfalls = append(shortfalls, StockShortfall{
				VariantID: variantID,
				ItemName:  line.Name,
				Requested: line.Quantity,
				Reason:    domain.ShortfallUnverifiable,
				Message:   fmt.Sprintf("Could not verify stock for %s", line.Name),
			})
			continue
		}

		available := stock.OnHand - stock.Reserved
		if available < 0 {
			available = 0
		}
		if available >= line.Quantity {
			continue
		}

		shortfall := StockShortfall{
			VariantID: variantID,
			ItemName:  line.Name,
			Requested: line.Quantity,
			Available: available,
		}
		switch {
		case stock.OnHand <= 0:
			shortfall.Reason = domain.ShortfallOutOfStock
			shortfall.Message = fmt.Sprintf("%s is out of stock", line.Name)
		case stock.OnHand >= line.Quantity:
			shortfall.Reason = domain.ShortfallReserved
			shortfall.Message = fmt.Sprintf("%s is held by other shoppers right now, try again shortly", line.Name)
		default:
			shortfall.Reason = domain.ShortfallInsufficient
			shortfall.Message = fmt.Sprintf("Only %d available (you have %d in cart)", available, line.Quantity)
		}
		shortfalls = append(shortfalls, shortfall)
	}

	return shortfalls, nil
}

func validateReserveCommand(cmd ReserveStockCommand) error {
	if strings.TrimSpace(cmd.VariantID) == "" {
		return fmt.Errorf("%w: variant id is required", ErrInventoryInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInventoryInvalidInput)
	}
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInventoryInvalidInput)
	}
	if strings.TrimSpace(cmd.OrderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrInventoryInvalidInput)
	}
	return nil
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrInventoryInsufficientStock, invErr.Message)
		case repositories.InventoryErrorReservedByOthers:
			return fmt.Errorf("%w: %s", ErrInventoryReservedByOthers, invErr.Message)
		case repositories.InventoryErrorReservationNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryReservationNotFound, invErr.Message)
		case repositories.InventoryErrorInvalidReservationState:
			return fmt.Errorf("%w: %s", ErrInventoryInvalidState, invErr.Message)
		case repositories.InventoryErrorStockNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryInvalidInput, invErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrInventoryReservationNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
		}
	}

	return err
}
