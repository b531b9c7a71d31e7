package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/shilpkart/api/internal/platform/firestore"
	"github.com/shilpkart/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider  *pfirestore.Provider
	carts     *CartRepository
	catalog   *CatalogRepository
	customers *CustomerRepository
	inventory *InventoryRepository
	orders    *OrderRepository
	counters  *CounterRepository
}

// NewRegistry constructs every repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build cart repository: %w", err)
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build catalog repository: %w", err)
	}
	customers, err := NewCustomerRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build customer repository: %w", err)
	}
	inventory, err := NewInventoryRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build inventory repository: %w", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build counter repository: %w", err)
	}

	return &Registry{
		provider:  provider,
		carts:     carts,
		catalog:   catalog,
		customers: customers,
		inventory: inventory,
		orders:    orders,
		counters:  counters,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Carts() repositories.CartRepository           { return r.carts }
func (r *Registry) Catalog() repositories.CatalogRepository      { return r.catalog }
func (r *Registry) Customers() repositories.CustomerRepository   { return r.customers }
func (r *Registry) Inventory() repositories.InventoryRepository  { return r.inventory }
func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) Counters() repositories.CounterRepository     { return r.counters }

// RunInTx groups repository writes in a single Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

var _ repositories.Registry = (*Registry)(nil)
