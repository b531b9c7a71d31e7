package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shilpkart/api/internal/domain"
	pfirestore "github.com/shilpkart/api/internal/platform/firestore"
	"github.com/shilpkart/api/internal/repositories"
)

const (
	inventoryCollection         = "inventory"
	stockReservationsCollection = "stockReservations"
)

type InventoryRepository struct {
	provider     *pfirestore.Provider
	stocks       *pfirestore.BaseRepository[stockDocument]
	reservations *pfirestore.BaseRepository[reservationDocument]
}

func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	stocks := pfirestore.NewBaseRepository[stockDocument](provider, inventoryCollection, nil, nil)
	reservations := pfirestore.NewBaseRepository[reservationDocument](provider, stockReservationsCollection, nil, nil)
	return &InventoryRepository{provider: provider, stocks: stocks, reservations: reservations}, nil
}

// Reserve places a provisional hold on a single variant. The availability
// check and the reserved-count increment happen inside one transaction, so
// two shoppers racing for the last unit cannot both win. Expired holds do not
// count against availability: when contention is detected they are released
// within the same transaction rather than waiting for the sweeper.
func (r *InventoryRepository) Reserve(ctx context.Context, req repositories.InventoryReserveRequest) (repositories.InventoryReserveResult, error) {
	if r == nil || r.provider == nil {
		return repositories.InventoryReserveResult{}, errors.New("inventory repository not initialised")
	}
	reservation := req.Reservation
	if strings.TrimSpace(reservation.ID) == "" {
		return repositories.InventoryReserveResult{}, errors.New("inventory reserve: reservation id is required")
	}
	variantID := strings.TrimSpace(reservation.VariantID)
	if variantID == "" {
		return repositories.InventoryReserveResult{}, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "inventory reserve: variant id is required", nil)
	}
	if reservation.Quantity <= 0 {
		return repositories.InventoryReserveResult{}, repositories.NewInventoryError(repositories.InventoryErrorUnknown, fmt.Sprintf("inventory reserve: quantity for %s must be > 0", variantID), nil)
	}

	now := req.Now.UTC()
	reservation.Status = domain.ReservationReserved
	reservation.CreatedAt = reservation.CreatedAt.UTC()
	if reservation.CreatedAt.IsZero() {
		reservation.CreatedAt = now
	}
	reservation.UpdatedAt = now
	reservation.ExpiresAt = reservation.ExpiresAt.UTC()

	var result repositories.InventoryReserveResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		resRef, err := r.reservations.DocumentRef(ctx, reservation.ID)
		if err != nil {
			return err
		}

		if _, err := tx.Get(resRef); err == nil {
			return repositories.NewInventoryError(repositories.InventoryErrorInvalidReservationState, fmt.Sprintf("reservation %s already exists", reservation.ID), nil)
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		stockRef, err := r.stocks.DocumentRef(ctx, variantID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(stockRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("stock %s not found", variantID), err)
			}
			return err
		}
		var stockDoc stockDocument
		if err := snap.DataTo(&stockDoc); err != nil {
			return fmt.Errorf("decode inventory stock %s: %w", variantID, err)
		}
		if stockDoc.OnHand < reservation.Quantity {
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, fmt.Sprintf("insufficient stock for %s", variantID), nil)
		}
		var lapsed []lapsedHold
		if stockDoc.OnHand-stockDoc.Reserved < reservation.Quantity {
			// The reserved counter still includes holds whose TTL lapsed
			// before the sweeper ran. Release them inside this transaction so
			// an expired hold never blocks a live shopper.
			freed, holds, err := r.lapsedHoldsInTx(ctx, tx, variantID, now)
			if err != nil {
				return err
			}
			if freed > stockDoc.Reserved {
				freed = stockDoc.Reserved
			}
			stockDoc.Reserved -= freed
			lapsed = holds
			if stockDoc.OnHand-stockDoc.Reserved < reservation.Quantity {
				return repositories.NewInventoryError(repositories.InventoryErrorReservedByOthers, fmt.Sprintf("stock for %s is held by other reservations", variantID), nil)
			}
		}
		stockDoc.Reserved += reservation.Quantity
		stockDoc.UpdatedAt = now
		stockDoc.recalculate()
		if err := tx.Set(stockRef, stockDoc); err != nil {
			return err
		}
		for _, hold := range lapsed {
			if err := tx.Set(hold.ref, hold.doc); err != nil {
				return err
			}
		}

		resDoc := newReservationDocument(reservation)
		if err := tx.Create(resRef, resDoc); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return repositories.NewInventoryError(repositories.InventoryErrorInvalidReservationState, fmt.Sprintf("reservation %s already exists", reservation.ID), err)
			}
			return err
		}

		result = repositories.InventoryReserveResult{
			Reservation: resDoc.toDomain(reservation.ID),
			Stock:       stockDoc.toDomain(variantID),
		}
		return nil
	})
	if err != nil {
		return repositories.InventoryReserveResult{}, wrapInventoryError("inventory.reserve", err)
	}
	return result, nil
}

// lapsedHold pairs an expired reservation snapshot with the released document
// to write back once the transaction's reads are complete.
type lapsedHold struct {
	ref *firestore.DocumentRef
	doc reservationDocument
}

// lapsedHoldsInTx reads the expired reserved holds for a variant within the
// running transaction. Callers must apply the returned writes after all reads.
func (r *InventoryRepository) lapsedHoldsInTx(ctx context.Context, tx *firestore.Transaction, variantID string, now time.Time) (int, []lapsedHold, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, nil, err
	}

	query := client.Collection(stockReservationsCollection).
		Where("variantId", "==", variantID).
		Where("status", "==", string(domain.ReservationReserved)).
		Where("expiresAt", "<=", now)

	iter := tx.Documents(query)
	defer iter.Stop()

	freed := 0
	var holds []lapsedHold
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, nil, err
		}
		doc, err := decodeReservation(snap)
		if err != nil {
			return 0, nil, err
		}
		released := now
		doc.Status = string(domain.ReservationReleased)
		doc.UpdatedAt = now
		doc.ReleasedAt = &released
		doc.Reason = "reservation_expired"
		freed += doc.Quantity
		holds = append(holds, lapsedHold{ref: snap.Ref, doc: doc})
	}
	return freed, holds, nil
}

// Confirm converts a hold into a committed decrement of on-hand stock.
func (r *InventoryRepository) Confirm(ctx context.Context, req repositories.InventoryConfirmRequest) (repositories.InventoryConfirmResult, error) {
	if r == nil || r.provider == nil {
		return repositories.InventoryConfirmResult{}, errors.New("inventory repository not initialised")
	}
	if strings.TrimSpace(req.ReservationID) == "" {
		return repositories.InventoryConfirmResult{}, errors.New("inventory confirm: reservation id is required")
	}

	now := req.Now.UTC()
	var result repositories.InventoryConfirmResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		resRef, err := r.reservations.DocumentRef(ctx, req.ReservationID)
		if err != nil {
			return err
		}
		resSnap, err := tx.Get(resRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorReservationNotFound, fmt.Sprintf("reservation %s not found", req.ReservationID), err)
			}
			return err
		}
		resDoc, err := decodeReservation(resSnap)
		if err != nil {
			return err
		}
		if resDoc.Status != string(domain.ReservationReserved) {
			return repositories.NewInventoryError(repositories.InventoryErrorInvalidReservationState, fmt.Sprintf("reservation %s is not in reserved status", req.ReservationID), nil)
		}
		if req.OrderRef != "" && resDoc.OrderRef != "" && !strings.EqualFold(resDoc.OrderRef, req.OrderRef) {
			return repositories.NewInventoryError(repositories.InventoryErrorInvalidReservationState, fmt.Sprintf("reservation %s order mismatch", req.ReservationID), nil)
		}

		variantID := strings.TrimSpace(resDoc.VariantID)
		stockRef, err := r.stocks.DocumentRef(ctx, variantID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(stockRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("stock %s not found", variantID), err)
			}
			return err
		}
		var stockDoc stockDocument
		if err := snap.DataTo(&stockDoc); err != nil {
			return fmt.Errorf("decode inventory stock %s: %w", variantID, err)
		}
		if stockDoc.Reserved < resDoc.Quantity {
			return repositories.NewInventoryError(repositories.InventoryErrorInvalidReservationState, fmt.Sprintf("reserved quantity for %s is insufficient", variantID), nil)
		}
		if stockDoc.OnHand < resDoc.Quantity {
			return repositories.NewInventoryError(repositories.InventoryErrorInvalidReservationState, fmt.Sprintf("onHand for %s cannot drop below zero", variantID), nil)
		}
		stockDoc.Reserved -= resDoc.Quantity
		stockDoc.OnHand -= resDoc.Quantity
		stockDoc.UpdatedAt = now
		stockDoc.recalculate()
		if err := tx.Set(stockRef, stockDoc); err != nil {
			return err
		}

		resDoc.Status = string(domain.ReservationConfirmed)
		resDoc.UpdatedAt = now
		resDoc.ConfirmedAt = &now
		if req.OrderRef != "" {
			resDoc.OrderRef = strings.TrimSpace(req.OrderRef)
		}
		if err := tx.Set(resRef, resDoc); err != nil {
			return err
		}

		result = repositories.InventoryConfirmResult{
			Reservation: resDoc.toDomain(req.ReservationID),
			Stock:       stockDoc.toDomain(variantID),
		}
		return nil
	})
	if err != nil {
		return repositories.InventoryConfirmResult{}, wrapInventoryError("inventory.confirm", err)
	}
	return result, nil
}

// Release returns a hold to the available pool. A reserved hold gives back its
// reserved count; a confirmed hold restocks on-hand units.
func (r *InventoryRepository) Release(ctx context.Context, req repositories.InventoryReleaseRequest) (repositories.InventoryReleaseResult, error) {
	if r == nil || r.provider == nil {
		return repositories.InventoryReleaseResult{}, errors.New("inventory repository not initialised")
	}
	if strings.TrimSpace(req.ReservationID) == "" {
		return repositories.InventoryReleaseResult{}, errors.New("inventory release: reservation id is required")
	}

	now := req.Now.UTC()
	var result repositories.InventoryReleaseResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		resRef, err := r.reservations.DocumentRef(ctx, req.ReservationID)
		if err != nil {
			return err
		}
		resSnap, err := tx.Get(resRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorReservationNotFound, fmt.Sprintf("reservation %s not found", req.ReservationID), err)
			}
			return err
		}
		resDoc, err := decodeReservation(resSnap)
		if err != nil {
			return err
		}
		if resDoc.Status != string(domain.ReservationReserved) && resDoc.Status != string(domain.ReservationConfirmed) {
			return repositories.NewInventoryError(repositories.InventoryErrorInvalidReservationState, fmt.Sprintf("reservation %s already released", req.ReservationID), nil)
		}

		variantID := strings.TrimSpace(resDoc.VariantID)
		stockRef, err := r.stocks.DocumentRef(ctx, variantID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(stockRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("stock %s not found", variantID), err)
			}
			return err
		}
		var stockDoc stockDocument
		if err := snap.DataTo(&stockDoc); err != nil {
			return fmt.Errorf("decode inventory stock %s: %w", variantID, err)
		}
		switch resDoc.Status {
		case string(domain.ReservationReserved):
			if stockDoc.Reserved < resDoc.Quantity {
				return repositories.NewInventoryError(repositories.InventoryErrorInvalidReservationState, fmt.Sprintf("reserved quantity for %s is insufficient", variantID), nil)
			}
			stockDoc.Reserved -= resDoc.Quantity
		case string(domain.ReservationConfirmed):
			// Confirm already moved the hold out of Reserved and decremented
			// OnHand, so releasing a confirmed hold restocks the units. This is
			// the path a cancelled order takes after gateway failure or the
			// stale-order sweep.
			stockDoc.OnHand += resDoc.Quantity
		}
		stockDoc.UpdatedAt = now
		stockDoc.recalculate()
		if err := tx.Set(stockRef, stockDoc); err != nil {
			return err
		}

		resDoc.Status = string(domain.ReservationReleased)
		resDoc.UpdatedAt = now
		resDoc.ReleasedAt = &now
		if req.Reason != "" {
			resDoc.Reason = strings.TrimSpace(req.Reason)
		}
		if err := tx.Set(resRef, resDoc); err != nil {
			return err
		}

		result = repositories.InventoryReleaseResult{
			Reservation: resDoc.toDomain(req.ReservationID),
			Stock:       stockDoc.toDomain(variantID),
		}
		return nil
	})
	if err != nil {
		return repositories.InventoryReleaseResult{}, wrapInventoryError("inventory.release", err)
	}
	return result, nil
}

func (r *InventoryRepository) GetReservation(ctx context.Context, reservationID string) (domain.StockReservation, error) {
	if r == nil || r.reservations == nil {
		return domain.StockReservation{}, errors.New("inventory repository not initialised")
	}
	reservationID = strings.TrimSpace(reservationID)
	if reservationID == "" {
		return domain.StockReservation{}, errors.New("inventory get reservation: id is required")
	}

	doc, err := r.reservations.Get(ctx, reservationID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.StockReservation{}, repositories.NewInventoryError(repositories.InventoryErrorReservationNotFound, fmt.Sprintf("reservation %s not found", reservationID), err)
		}
		return domain.StockReservation{}, wrapInventoryError("inventory.getReservation", err)
	}

	return doc.Data.toDomain(doc.ID), nil
}

func (r *InventoryRepository) GetStock(ctx context.Context, variantID string) (domain.VariantStock, error) {
	if r == nil || r.stocks == nil {
		return domain.VariantStock{}, errors.New("inventory repository not initialised")
	}
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.VariantStock{}, errors.New("inventory get stock: variant id is required")
	}

	doc, err := r.stocks.Get(ctx, variantID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.VariantStock{}, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("stock %s not found", variantID), err)
		}
		return domain.VariantStock{}, wrapInventoryError("inventory.getStock", err)
	}

	return doc.Data.toDomain(doc.ID), nil
}

// GetStocks reads stock snapshots for the advisory availability check. A
// missing record surfaces as an absent map entry, not an error, so callers
// can report per-variant shortfalls.
func (r *InventoryRepository) GetStocks(ctx context.Context, variantIDs []string) (map[string]domain.VariantStock, error) {
	if r == nil || r.stocks == nil {
		return nil, errors.New("inventory repository not initialised")
	}

	stocks := make(map[string]domain.VariantStock, len(variantIDs))
	for _, variantID := range variantIDs {
		variantID = strings.TrimSpace(variantID)
		if variantID == "" {
			continue
		}
		if _, ok := stocks[variantID]; ok {
			continue
		}
		doc, err := r.stocks.Get(ctx, variantID)
		if err != nil {
			if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
				continue
			}
			return nil, wrapInventoryError("inventory.getStocks", err)
		}
		stocks[variantID] = doc.Data.toDomain(doc.ID)
	}
	return stocks, nil
}

// ListExpiredReservations returns holds still in reserved status whose expiry
// passed before cutoff. The reconciliation sweeper releases them.
func (r *InventoryRepository) ListExpiredReservations(ctx context.Context, cutoff time.Time, limit int) ([]domain.StockReservation, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, wrapInventoryError("inventory.listExpired", err)
	}

	query := client.Collection(stockReservationsCollection).
		Where("status", "==", string(domain.ReservationReserved)).
		Where("expiresAt", "<=", cutoff.UTC()).
		OrderBy("expiresAt", firestore.Asc).
		Limit(limit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var reservations []domain.StockReservation
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapInventoryError("inventory.listExpired", err)
		}
		doc, err := decodeReservation(snap)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, doc.toDomain(snap.Ref.ID))
	}
	return reservations, nil
}

// Helper structures ---------------------------------------------------------

type stockDocument struct {
	VariantID  string    `firestore:"variantId"`
	ProductRef string    `firestore:"productRef"`
	OnHand     int       `firestore:"onHand"`
	Reserved   int       `firestore:"reserved"`
	Available  int       `firestore:"available"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (s *stockDocument) recalculate() {
	s.Available = s.OnHand - s.Reserved
}

func (s stockDocument) toDomain(id string) domain.VariantStock {
	return domain.VariantStock{
		VariantID:  id,
		ProductRef: strings.TrimSpace(s.ProductRef),
		OnHand:     s.OnHand,
		Reserved:   s.Reserved,
		Available:  s.Available,
		UpdatedAt:  s.UpdatedAt,
	}
}

type reservationDocument struct {
	VariantID   string     `firestore:"variantId"`
	Quantity    int        `firestore:"qty"`
	OrderRef    string     `firestore:"orderRef"`
	UserRef     string     `firestore:"userRef"`
	Status      string     `firestore:"status"`
	Reason      string     `firestore:"reason,omitempty"`
	ExpiresAt   time.Time  `firestore:"expiresAt"`
	ReleasedAt  *time.Time `firestore:"releasedAt,omitempty"`
	ConfirmedAt *time.Time `firestore:"confirmedAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

func newReservationDocument(res domain.StockReservation) reservationDocument {
	return reservationDocument{
		VariantID:   strings.TrimSpace(res.VariantID),
		Quantity:    res.Quantity,
		OrderRef:    strings.TrimSpace(res.OrderRef),
		UserRef:     strings.TrimSpace(res.UserRef),
		Status:      string(res.Status),
		Reason:      strings.TrimSpace(res.Reason),
		ExpiresAt:   res.ExpiresAt.UTC(),
		ReleasedAt:  res.ReleasedAt,
		ConfirmedAt: res.ConfirmedAt,
		CreatedAt:   res.CreatedAt.UTC(),
		UpdatedAt:   res.UpdatedAt.UTC(),
	}
}

func (d reservationDocument) toDomain(id string) domain.StockReservation {
	return domain.StockReservation{
		ID:          id,
		VariantID:   strings.TrimSpace(d.VariantID),
		Quantity:    d.Quantity,
		OrderRef:    strings.TrimSpace(d.OrderRef),
		UserRef:     strings.TrimSpace(d.UserRef),
		Status:      domain.ReservationStatus(strings.TrimSpace(d.Status)),
		Reason:      strings.TrimSpace(d.Reason),
		ExpiresAt:   d.ExpiresAt,
		ReleasedAt:  d.ReleasedAt,
		ConfirmedAt: d.ConfirmedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func decodeReservation(snap *firestore.DocumentSnapshot) (reservationDocument, error) {
	var doc reservationDocument
	if err := snap.DataTo(&doc); err != nil {
		return reservationDocument{}, fmt.Errorf("decode reservation %s: %w", snap.Ref.ID, err)
	}
	return doc, nil
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
