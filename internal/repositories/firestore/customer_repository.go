package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shilpkart/api/internal/domain"
	pfirestore "github.com/shilpkart/api/internal/platform/firestore"
	"github.com/shilpkart/api/internal/repositories"
)

const customersCollection = "customers"

// CustomerRepository persists billing identities in Firestore.
type CustomerRepository struct {
	base     *pfirestore.BaseRepository[customerDocument]
	provider *pfirestore.Provider
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil, nil)
	return &CustomerRepository{base: base, provider: provider}, nil
}

// Insert stores a new customer record. The ID must be unique.
func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	if r == nil || r.base == nil {
		return errors.New("customer repository not initialised")
	}
	customerID := strings.TrimSpace(customer.ID)
	if customerID == "" {
		return errors.New("customer repository: customer id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, customerID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeCustomerDocument(customer)); err != nil {
		return pfirestore.WrapError("customers.insert", err)
	}
	return nil
}

// Update replaces the persisted customer record.
func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	if r == nil || r.base == nil {
		return errors.New("customer repository not initialised")
	}
	customerID := strings.TrimSpace(customer.ID)
	if customerID == "" {
		return errors.New("customer repository: customer id is required")
	}
	if _, err := r.base.Set(ctx, customerID, encodeCustomerDocument(customer)); err != nil {
		return err
	}
	return nil
}

// FindByID loads a customer by its document ID.
func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, errors.New("customer repository: customer id is required")
	}
	doc, err := r.base.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return decodeCustomerDocument(doc.ID, doc.Data), nil
}

// FindByUserID resolves the customer linked to an authenticated user.
func (r *CustomerRepository) FindByUserID(ctx context.Context, userID string) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Customer{}, errors.New("customer repository: user id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).Limit(1)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	if len(docs) == 0 {
		return domain.Customer{}, pfirestore.WrapError("customers.findByUser",
			status.Error(codes.NotFound, fmt.Sprintf("customer for user %s not found", userID)))
	}
	return decodeCustomerDocument(docs[0].ID, docs[0].Data), nil
}

type customerDocument struct {
	UserID    string    `firestore:"userId"`
	FullName  string    `firestore:"fullName"`
	Email     string    `firestore:"email"`
	Phone     string    `firestore:"phone"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func encodeCustomerDocument(customer domain.Customer) customerDocument {
	return customerDocument{
		UserID:    strings.TrimSpace(customer.UserID),
		FullName:  strings.TrimSpace(customer.FullName),
		Email:     strings.TrimSpace(customer.Email),
		Phone:     strings.TrimSpace(customer.Phone),
		CreatedAt: customer.CreatedAt.UTC(),
		UpdatedAt: customer.UpdatedAt.UTC(),
	}
}

func decodeCustomerDocument(id string, doc customerDocument) domain.Customer {
	return domain.Customer{
		ID:        id,
		UserID:    strings.TrimSpace(doc.UserID),
		FullName:  strings.TrimSpace(doc.FullName),
		Email:     strings.TrimSpace(doc.Email),
		Phone:     strings.TrimSpace(doc.Phone),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)
