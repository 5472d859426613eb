package contacts

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Contact, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Contact, error) {
	if id <= 0 {
		return Contact{}, internalShared.Validationf("invalid contact id")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, contact Contact) (Contact, error) {
	if err := s.validate(contact); err != nil {
		return Contact{}, err
	}
	return s.repo.Create(ctx, contact)
}

func (s *Service) Update(ctx context.Context, id int64, contact Contact) error {
	if id <= 0 {
		return internalShared.Validationf("invalid contact id")
	}
	if err := s.validate(contact); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, contact)
}

// Delete refuses to remove a contact that has invoice history.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return internalShared.Validationf("invalid contact id")
	}
	has, err := s.repo.HasInvoices(ctx, id)
	if err != nil {
		return err
	}
	if has {
		return internalShared.BusinessRulef("contact %d has invoice history", id)
	}
	return s.repo.Delete(ctx, id)
}

// CheckCredit tests whether an additional amount fits within the contact's
// credit limit.
func (s *Service) CheckCredit(ctx context.Context, id int64, amount decimal.Decimal) (CreditCheck, error) {
	if amount.IsNegative() {
		return CreditCheck{}, internalShared.Validationf("amount cannot be negative")
	}
	contact, err := s.Get(ctx, id)
	if err != nil {
		return CreditCheck{}, err
	}
	return contact.CheckCredit(amount), nil
}

func (s *Service) validate(contact Contact) error {
	if contact.Code == "" {
		return internalShared.Validationf("contact code is required")
	}
	if contact.Name == "" {
		return internalShared.Validationf("contact name is required")
	}
	if !contact.ContactType.Valid() {
		return internalShared.Validationf("contact type must be customer, supplier or both")
	}
	if contact.CreditLimit.IsNegative() {
		return internalShared.Validationf("credit limit cannot be negative")
	}
	return nil
}
