// Package documents implements transaction documents: sales invoices and
// purchase bills. A document computes its own VAT totals from line items and
// translates into one balanced journal entry when issued.
package documents

import (
	"time"

	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/shared"
)

// Kind is the tagged variant discriminator: invoices and bills share shape
// and differ only in posting rules.
type Kind string

const (
	KindInvoice Kind = "INVOICE"
	KindBill    Kind = "BILL"
)

// Valid reports whether k is a known document kind.
func (k Kind) Valid() bool {
	return k == KindInvoice || k == KindBill
}

// Status enumerates the document lifecycle.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSent      Status = "SENT"     // issued invoice
	StatusApproved  Status = "APPROVED" // issued bill
	StatusPartial   Status = "PARTIAL"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

// issued reports whether the document has been posted to the ledger.
func (s Status) issued() bool {
	switch s {
	case StatusSent, StatusApproved, StatusPartial, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

// payable reports whether the document can still accept payments.
func (s Status) payable() bool {
	switch s {
	case StatusSent, StatusApproved, StatusPartial, StatusOverdue:
		return true
	}
	return false
}

// LineItem is one priced row on a document. Quantity is stored in
// thousandths so fractional quantities stay in the integer domain.
type LineItem struct {
	Description   string
	QuantityMilli int64
	UnitPrice     money.Money
	Discount      money.Money
	VatRate       money.VatRate
	AccountID     int64

	// Derived at computation time.
	LineTotal money.Money
	VatAmount money.Money
}

// compute derives LineTotal and VatAmount. The gross rounds half-up to the
// nearest fil immediately after the quantity multiply; VAT rounds the same
// way per line.
func (li *LineItem) compute() error {
	if li.QuantityMilli <= 0 {
		return shared.Invalidf("documents: quantity must be positive")
	}
	if li.UnitPrice.IsNegative() {
		return shared.Invalidf("documents: unit price cannot be negative")
	}
	if li.Discount.IsNegative() {
		return shared.Invalidf("documents: discount cannot be negative")
	}
	if !li.VatRate.Valid() {
		return shared.Invalidf("documents: vat rate %d permyriad out of range", li.VatRate.Permyriad())
	}
	if li.AccountID == 0 {
		return shared.Invalidf("documents: line item missing account")
	}
	gross := li.UnitPrice.MulRatio(li.QuantityMilli, 1000)
	if li.Discount > gross {
		return shared.Invalidf("documents: discount %s exceeds line amount %s", li.Discount, gross)
	}
	li.LineTotal = gross.Sub(li.Discount)
	li.VatAmount = li.VatRate.Apply(li.LineTotal)
	return nil
}

// Document is an invoice or bill. Subtotal, VatTotal, and Total are derived
// from the items and never set directly.
type Document struct {
	ID         uuid.UUID
	Kind       Kind
	Number     string
	ContactID  int64
	Date       time.Time
	DueDate    time.Time
	Items      []LineItem
	Subtotal   money.Money
	VatTotal   money.Money
	Total      money.Money
	AmountPaid money.Money
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// computeTotals recomputes the document aggregates from its items and
// checks the arithmetic invariant total = subtotal + vatTotal.
func (d *Document) computeTotals() error {
	if len(d.Items) == 0 {
		return shared.Invalidf("documents: at least one line item required")
	}
	var subtotal, vatTotal money.Money
	for i := range d.Items {
		if err := d.Items[i].compute(); err != nil {
			return err
		}
		subtotal = subtotal.Add(d.Items[i].LineTotal)
		vatTotal = vatTotal.Add(d.Items[i].VatAmount)
	}
	d.Subtotal = subtotal
	d.VatTotal = vatTotal
	d.Total = subtotal.Add(vatTotal)
	return nil
}

// Input carries fields for document creation.
type Input struct {
	Kind      Kind
	Number    string
	ContactID int64
	Date      time.Time
	DueDate   time.Time
	Items     []LineItem
}

// Validate checks structural document rules.
func (in Input) Validate() error {
	if !in.Kind.Valid() {
		return shared.Invalidf("documents: unknown kind %q", in.Kind)
	}
	if in.ContactID == 0 {
		return shared.Invalidf("documents: contact required")
	}
	if in.Date.IsZero() {
		return shared.Invalidf("documents: date required")
	}
	if !in.DueDate.IsZero() && in.DueDate.Before(in.Date) {
		return shared.Invalidf("documents: due date before document date")
	}
	if len(in.Items) == 0 {
		return shared.Invalidf("documents: at least one line item required")
	}
	return nil
}

// AgingBuckets summarises outstanding totals by days overdue.
type AgingBuckets struct {
	Current   money.Money
	Bucket30  money.Money
	Bucket60  money.Money
	Bucket90  money.Money
	Bucket120 money.Money
}
