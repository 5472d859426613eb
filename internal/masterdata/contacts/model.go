package contacts

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContactType distinguishes trading partners.
type ContactType string

const (
	TypeCustomer ContactType = "customer"
	TypeSupplier ContactType = "supplier"
	TypeBoth     ContactType = "both"
)

// Valid reports whether the type is one of the known values.
func (t ContactType) Valid() bool {
	switch t {
	case TypeCustomer, TypeSupplier, TypeBoth:
		return true
	}
	return false
}

// Contact represents a customer, a supplier, or both. CurrentBalance is a
// running ledger maintained by the invoice engine: positive means the
// contact owes us, negative means we owe the contact.
type Contact struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	ContactType    ContactType     `json:"contact_type"`
	Email          string          `json:"email,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Address        string          `json:"address,omitempty"`
	CreditLimit    decimal.Decimal `json:"credit_limit"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreditCheck is the result of testing an order amount against the
// contact's credit limit. A zero credit limit means unlimited credit.
type CreditCheck struct {
	Allowed         bool            `json:"allowed"`
	CreditLimit     decimal.Decimal `json:"credit_limit"`
	CurrentBalance  decimal.Decimal `json:"current_balance"`
	AvailableCredit decimal.Decimal `json:"available_credit"`
}

// CheckCredit tests whether an additional amount fits within the credit limit.
func (c Contact) CheckCredit(amount decimal.Decimal) CreditCheck {
	check := CreditCheck{
		CreditLimit:    c.CreditLimit,
		CurrentBalance: c.CurrentBalance,
	}
	if c.CreditLimit.IsZero() {
		check.Allowed = true
		return check
	}
	check.AvailableCredit = c.CreditLimit.Sub(c.CurrentBalance)
	check.Allowed = amount.LessThanOrEqual(check.AvailableCredit)
	return check
}
