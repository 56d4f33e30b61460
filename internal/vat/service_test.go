package vat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mizan-books/mizan/internal/documents"
	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/shared"
)

// memoryVatRepo is an in-memory RepositoryPort with rollback-on-error
// semantics matching the SQL adapter.
type memoryVatRepo struct {
	mu      sync.Mutex
	returns map[uuid.UUID]VatReturn
}

func newMemoryVatRepo() *memoryVatRepo {
	return &memoryVatRepo{returns: make(map[uuid.UUID]VatReturn)}
}

func (r *memoryVatRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[uuid.UUID]VatReturn, len(r.returns))
	for id, ret := range r.returns {
		snapshot[id] = ret
	}
	if err := fn(ctx, &memoryVatTx{repo: r}); err != nil {
		r.returns = snapshot
		return err
	}
	return nil
}

type memoryVatTx struct {
	repo *memoryVatRepo
}

func (t *memoryVatTx) InsertReturn(_ context.Context, ret VatReturn) error {
	t.repo.returns[ret.ID] = ret
	return nil
}

func (t *memoryVatTx) GetReturn(_ context.Context, id uuid.UUID) (VatReturn, error) {
	ret, ok := t.repo.returns[id]
	if !ok {
		return VatReturn{}, shared.ErrNotFound
	}
	return ret, nil
}

func (t *memoryVatTx) ListReturns(_ context.Context) ([]VatReturn, error) {
	rets := make([]VatReturn, 0, len(t.repo.returns))
	for _, ret := range t.repo.returns {
		rets = append(rets, ret)
	}
	return rets, nil
}

func (t *memoryVatTx) MarkFiled(_ context.Context, id uuid.UUID, filingReference string, filedAt time.Time) error {
	ret, ok := t.repo.returns[id]
	if !ok {
		return shared.ErrNotFound
	}
	if ret.Status != StatusDraft {
		return shared.ErrConflict
	}
	ret.Status = StatusFiled
	ret.FilingReference = filingReference
	ret.FiledAt = &filedAt
	t.repo.returns[id] = ret
	return nil
}

// stubDocs serves canned issued documents per kind.
type stubDocs struct {
	invoices []documents.Document
	bills    []documents.Document
}

func (s *stubDocs) ListIssuedBetween(_ context.Context, kind documents.Kind, _, _ time.Time) ([]documents.Document, error) {
	if kind == documents.KindInvoice {
		return s.invoices, nil
	}
	return s.bills, nil
}

func item(net int64, rate money.VatRate) documents.LineItem {
	lineTotal := money.FromFils(net)
	return documents.LineItem{
		QuantityMilli: 1000,
		UnitPrice:     lineTotal,
		VatRate:       rate,
		AccountID:     1,
		LineTotal:     lineTotal,
		VatAmount:     rate.Apply(lineTotal),
	}
}

func issuedDoc(kind documents.Kind, items ...documents.LineItem) documents.Document {
	doc := documents.Document{
		ID:     uuid.New(),
		Kind:   kind,
		Status: documents.StatusSent,
		Date:   time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Items:  items,
	}
	for _, li := range items {
		doc.Subtotal = doc.Subtotal.Add(li.LineTotal)
		doc.VatTotal = doc.VatTotal.Add(li.VatAmount)
	}
	doc.Total = doc.Subtotal.Add(doc.VatTotal)
	return doc
}

func q2Period() Period {
	return Period{
		Start: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
}

func newFixture(docs *stubDocs) (*Service, *memoryVatRepo) {
	repo := newMemoryVatRepo()
	svc := NewService(repo, docs, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 7, 15, 9, 0, 0, 0, time.UTC) })
	return svc, repo
}

func TestComputeForm201Boxes(t *testing.T) {
	docs := &stubDocs{
		invoices: []documents.Document{
			issuedDoc(documents.KindInvoice, item(5000000, money.StandardRate)),
			issuedDoc(documents.KindInvoice,
				item(2000000, money.StandardRate),
				item(1000000, money.ZeroRate)),
		},
		bills: []documents.Document{
			issuedDoc(documents.KindBill, item(3000000, money.StandardRate)),
		},
	}
	svc, _ := newFixture(docs)

	form, err := svc.Compute(context.Background(), q2Period())
	require.NoError(t, err)

	require.Equal(t, money.FromFils(7000000), form.Box1StandardRatedSupplies)
	require.Equal(t, money.FromFils(1000000), form.Box4ZeroRatedSupplies)
	require.Equal(t, money.FromFils(3000000), form.Box6StandardRatedExpenses)
	require.Equal(t, money.FromFils(350000), form.OutputVat)
	require.Equal(t, money.FromFils(150000), form.InputVat)
	require.Equal(t, money.FromFils(200000), form.Box9NetVatDue)
	require.Equal(t, form.OutputVat.Sub(form.InputVat), form.Box9NetVatDue)
	require.False(t, form.Refundable())

	// Standard rate leads, zero-rated follows with taxable value and no VAT.
	require.Len(t, form.SupplyBuckets, 2)
	require.Equal(t, money.StandardRate, form.SupplyBuckets[0].Rate)
	require.Equal(t, money.ZeroRate, form.SupplyBuckets[1].Rate)
	require.Equal(t, money.FromFils(1000000), form.SupplyBuckets[1].Taxable)
	require.True(t, form.SupplyBuckets[1].Vat == 0)
}

func TestComputeRefundablePosition(t *testing.T) {
	docs := &stubDocs{
		invoices: []documents.Document{issuedDoc(documents.KindInvoice, item(1000000, money.StandardRate))},
		bills:    []documents.Document{issuedDoc(documents.KindBill, item(4000000, money.StandardRate))},
	}
	svc, _ := newFixture(docs)

	form, err := svc.Compute(context.Background(), q2Period())
	require.NoError(t, err)
	require.Equal(t, money.FromFils(-150000), form.Box9NetVatDue)
	require.True(t, form.Refundable())
}

func TestComputeRejectsBadPeriod(t *testing.T) {
	svc, _ := newFixture(&stubDocs{})

	_, err := svc.Compute(context.Background(), Period{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Compute(context.Background(), Period{
		Start: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateReturnStoresDraft(t *testing.T) {
	docs := &stubDocs{
		invoices: []documents.Document{issuedDoc(documents.KindInvoice, item(5000000, money.StandardRate))},
	}
	svc, _ := newFixture(docs)

	ret, err := svc.CreateReturn(context.Background(), q2Period())
	require.NoError(t, err)
	require.Equal(t, StatusDraft, ret.Status)
	require.Empty(t, ret.FilingReference)
	require.Equal(t, money.FromFils(250000), ret.Form.Box9NetVatDue)

	stored, err := svc.GetReturn(context.Background(), ret.ID)
	require.NoError(t, err)
	require.Equal(t, ret.Form, stored.Form)
}

func TestFileReturnOnce(t *testing.T) {
	docs := &stubDocs{
		invoices: []documents.Document{issuedDoc(documents.KindInvoice, item(5000000, money.StandardRate))},
	}
	svc, _ := newFixture(docs)

	ret, err := svc.CreateReturn(context.Background(), q2Period())
	require.NoError(t, err)

	filed, err := svc.FileReturn(context.Background(), ret.ID, "FTA-2025-Q2-0001")
	require.NoError(t, err)
	require.Equal(t, StatusFiled, filed.Status)
	require.Equal(t, "FTA-2025-Q2-0001", filed.FilingReference)
	require.NotNil(t, filed.FiledAt)

	// Second filing is rejected and the stored reference is untouched.
	_, err = svc.FileReturn(context.Background(), ret.ID, "FTA-2025-Q2-0002")
	require.ErrorIs(t, err, shared.ErrAlreadyFiled)

	stored, err := svc.GetReturn(context.Background(), ret.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFiled, stored.Status)
	require.Equal(t, "FTA-2025-Q2-0001", stored.FilingReference)
}

func TestFileReturnValidation(t *testing.T) {
	svc, _ := newFixture(&stubDocs{})

	_, err := svc.FileReturn(context.Background(), uuid.New(), "")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.FileReturn(context.Background(), uuid.New(), "FTA-X")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestFileReturnLosesRaceCleanly(t *testing.T) {
	docs := &stubDocs{
		invoices: []documents.Document{issuedDoc(documents.KindInvoice, item(5000000, money.StandardRate))},
	}
	svc, repo := newFixture(docs)

	ret, err := svc.CreateReturn(context.Background(), q2Period())
	require.NoError(t, err)

	// Simulate a racing filer landing between the read and the CAS.
	err = repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		if err := tx.MarkFiled(ctx, ret.ID, "FTA-RACE", time.Now()); err != nil {
			return err
		}
		return tx.MarkFiled(ctx, ret.ID, "FTA-LOSER", time.Now())
	})
	require.ErrorIs(t, err, shared.ErrConflict)

	// The losing transaction rolled back, leaving the draft intact.
	stored, err := svc.GetReturn(context.Background(), ret.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, stored.Status)

	_, err = svc.FileReturn(context.Background(), ret.ID, "FTA-FINAL")
	require.NoError(t, err)
	_, err = svc.FileReturn(context.Background(), ret.ID, "FTA-FINAL")
	require.ErrorIs(t, err, shared.ErrAlreadyFiled)
}
