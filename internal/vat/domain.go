// Package vat computes UAE VAT return (Form 201) box values over a filing
// period and manages the draft-to-filed lifecycle of a return.
package vat

import (
	"time"

	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/shared"
)

// Status enumerates the return lifecycle. Filed is terminal.
type Status string

const (
	StatusDraft Status = "DRAFT"
	StatusFiled Status = "FILED"
)

// RateBucket is the taxable/VAT breakdown for one rate. Zero-rated supplies
// carry a taxable value with zero VAT.
type RateBucket struct {
	Rate    money.VatRate
	Taxable money.Money
	Vat     money.Money
}

// Form201 holds the return's box values. Box 9 is always outputVat minus
// inputVat; a negative value means refundable rather than payable.
type Form201 struct {
	Box1StandardRatedSupplies money.Money
	Box4ZeroRatedSupplies     money.Money
	Box6StandardRatedExpenses money.Money
	Box9NetVatDue             money.Money
	OutputVat                 money.Money
	InputVat                  money.Money
	SupplyBuckets             []RateBucket
	ExpenseBuckets            []RateBucket
}

// Refundable reports whether the period nets to a refund position.
func (f Form201) Refundable() bool {
	return f.Box9NetVatDue.IsNegative()
}

// VatReturn is a stored return. Draft returns recompute freely; filed
// returns are immutable.
type VatReturn struct {
	ID              uuid.UUID
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Form            Form201
	Status          Status
	FilingReference string
	CreatedAt       time.Time
	FiledAt         *time.Time
}

// Period carries the inclusive filing window.
type Period struct {
	Start time.Time
	End   time.Time
}

// Validate checks the period is well-formed.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return shared.Invalidf("vat: period start and end required")
	}
	if p.End.Before(p.Start) {
		return shared.Invalidf("vat: period end before start")
	}
	return nil
}
