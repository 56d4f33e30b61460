package vat

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/documents"
	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/shared"
)

// DocumentsPort supplies issued documents for a period. Cancelled and draft
// documents never appear here, so everything returned counts toward the form.
type DocumentsPort interface {
	ListIssuedBetween(ctx context.Context, kind documents.Kind, from, to time.Time) ([]documents.Document, error)
}

// Service computes Form 201 values and manages stored returns.
type Service struct {
	repo  RepositoryPort
	docs  DocumentsPort
	audit shared.AuditPort
	now   func() time.Time
}

// NewService constructs the VAT service.
func NewService(repo RepositoryPort, docs DocumentsPort, audit shared.AuditPort) *Service {
	return &Service{repo: repo, docs: docs, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Compute derives Form 201 box values from the period's issued invoices and
// bills. Output VAT comes from invoices, input VAT from bills; each side is
// bucketed per rate so zero-rated supplies surface with taxable value and
// zero VAT.
func (s *Service) Compute(ctx context.Context, period Period) (Form201, error) {
	if err := period.Validate(); err != nil {
		return Form201{}, err
	}
	invoices, err := s.docs.ListIssuedBetween(ctx, documents.KindInvoice, period.Start, period.End)
	if err != nil {
		return Form201{}, fmt.Errorf("vat: list invoices: %w", err)
	}
	bills, err := s.docs.ListIssuedBetween(ctx, documents.KindBill, period.Start, period.End)
	if err != nil {
		return Form201{}, fmt.Errorf("vat: list bills: %w", err)
	}

	form := Form201{
		SupplyBuckets:  bucketize(invoices),
		ExpenseBuckets: bucketize(bills),
	}
	for _, b := range form.SupplyBuckets {
		form.OutputVat = form.OutputVat.Add(b.Vat)
		switch b.Rate {
		case money.StandardRate:
			form.Box1StandardRatedSupplies = form.Box1StandardRatedSupplies.Add(b.Taxable)
		case money.ZeroRate:
			form.Box4ZeroRatedSupplies = form.Box4ZeroRatedSupplies.Add(b.Taxable)
		}
	}
	for _, b := range form.ExpenseBuckets {
		form.InputVat = form.InputVat.Add(b.Vat)
		if b.Rate == money.StandardRate {
			form.Box6StandardRatedExpenses = form.Box6StandardRatedExpenses.Add(b.Taxable)
		}
	}
	form.Box9NetVatDue = form.OutputVat.Sub(form.InputVat)
	return form, nil
}

// bucketize folds document line items into per-rate taxable/VAT totals,
// ordered by rate descending so the standard rate leads.
func bucketize(docs []documents.Document) []RateBucket {
	byRate := make(map[money.VatRate]*RateBucket)
	for _, doc := range docs {
		for _, item := range doc.Items {
			bucket, ok := byRate[item.VatRate]
			if !ok {
				bucket = &RateBucket{Rate: item.VatRate}
				byRate[item.VatRate] = bucket
			}
			bucket.Taxable = bucket.Taxable.Add(item.LineTotal)
			bucket.Vat = bucket.Vat.Add(item.VatAmount)
		}
	}
	buckets := make([]RateBucket, 0, len(byRate))
	for _, bucket := range byRate {
		buckets = append(buckets, *bucket)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Rate > buckets[j].Rate })
	return buckets
}

// CreateReturn computes the period's form and stores it as a draft return.
func (s *Service) CreateReturn(ctx context.Context, period Period) (VatReturn, error) {
	form, err := s.Compute(ctx, period)
	if err != nil {
		return VatReturn{}, err
	}
	ret := VatReturn{
		ID:          uuid.New(),
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Form:        form,
		Status:      StatusDraft,
		CreatedAt:   s.now(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertReturn(ctx, ret)
	})
	if err != nil {
		return VatReturn{}, err
	}
	s.record(ctx, "vat.return.created", ret, map[string]any{
		"netVatDue": ret.Form.Box9NetVatDue.Display(),
	})
	return ret, nil
}

// GetReturn fetches one stored return.
func (s *Service) GetReturn(ctx context.Context, id uuid.UUID) (VatReturn, error) {
	var ret VatReturn
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ret, err = tx.GetReturn(ctx, id)
		return err
	})
	return ret, err
}

// ListReturns lists stored returns, newest period first.
func (s *Service) ListReturns(ctx context.Context) ([]VatReturn, error) {
	var rets []VatReturn
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rets, err = tx.ListReturns(ctx)
		return err
	})
	return rets, err
}

// FileReturn transitions a draft return to filed with the authority's filing
// reference. Filing an already-filed return fails with ErrAlreadyFiled; a
// concurrent race on the same draft loses with ErrConflict from the CAS.
func (s *Service) FileReturn(ctx context.Context, id uuid.UUID, filingReference string) (VatReturn, error) {
	if filingReference == "" {
		return VatReturn{}, shared.Invalidf("vat: filing reference required")
	}
	var ret VatReturn
	filedAt := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetReturn(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusFiled {
			return fmt.Errorf("vat: return %s filed as %s: %w", id, current.FilingReference, shared.ErrAlreadyFiled)
		}
		if err := tx.MarkFiled(ctx, id, filingReference, filedAt); err != nil {
			return err
		}
		ret = current
		ret.Status = StatusFiled
		ret.FilingReference = filingReference
		ret.FiledAt = &filedAt
		return nil
	})
	if err != nil {
		return VatReturn{}, err
	}
	s.record(ctx, "vat.return.filed", ret, map[string]any{
		"filingReference": filingReference,
	})
	return ret, nil
}

func (s *Service) record(ctx context.Context, action string, ret VatReturn, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "vat_return",
		EntityID: ret.ID.String(),
		Meta:     meta,
		At:       s.now(),
	})
}
