package documents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mizan-books/mizan/internal/ledger"
	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/shared"
)

type memoryDocRepo struct {
	docs map[uuid.UUID]*Document
}

func newMemoryDocRepo() *memoryDocRepo {
	return &memoryDocRepo{docs: make(map[uuid.UUID]*Document)}
}

func (r *memoryDocRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryDocTx{repo: r})
}

type memoryDocTx struct {
	repo *memoryDocRepo
}

func (t *memoryDocTx) InsertDocument(ctx context.Context, doc Document) error {
	copy := doc
	copy.Items = append([]LineItem(nil), doc.Items...)
	t.repo.docs[doc.ID] = &copy
	return nil
}

func (t *memoryDocTx) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	doc, ok := t.repo.docs[id]
	if !ok {
		return Document{}, shared.ErrNotFound
	}
	out := *doc
	out.Items = append([]LineItem(nil), doc.Items...)
	return out, nil
}

func (t *memoryDocTx) ListDocuments(ctx context.Context, kind Kind) ([]Document, error) {
	var out []Document
	for _, doc := range t.repo.docs {
		if doc.Kind == kind {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (t *memoryDocTx) ListIssuedBetween(ctx context.Context, kind Kind, from, to time.Time) ([]Document, error) {
	var out []Document
	for _, doc := range t.repo.docs {
		if doc.Kind != kind || doc.Status == StatusDraft || doc.Status == StatusCancelled {
			continue
		}
		if doc.Date.Before(from) || doc.Date.After(to) {
			continue
		}
		copy := *doc
		copy.Items = append([]LineItem(nil), doc.Items...)
		out = append(out, copy)
	}
	return out, nil
}

func (t *memoryDocTx) ListOutstanding(ctx context.Context, kind Kind) ([]Document, error) {
	var out []Document
	for _, doc := range t.repo.docs {
		if doc.Kind == kind && doc.Status.payable() {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (t *memoryDocTx) ListDueBefore(ctx context.Context, asOf time.Time) ([]Document, error) {
	var out []Document
	for _, doc := range t.repo.docs {
		if doc.DueDate.Before(asOf) && doc.AmountPaid < doc.Total && doc.Status.issued() && doc.Status != StatusPaid {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (t *memoryDocTx) TransitionStatus(ctx context.Context, id uuid.UUID, expect, to Status) error {
	doc, ok := t.repo.docs[id]
	if !ok {
		return shared.ErrNotFound
	}
	if doc.Status != expect {
		return shared.ErrConflict
	}
	doc.Status = to
	return nil
}

func (t *memoryDocTx) SetPayment(ctx context.Context, id uuid.UUID, expect, to Status, amountPaid money.Money) error {
	doc, ok := t.repo.docs[id]
	if !ok {
		return shared.ErrNotFound
	}
	if doc.Status != expect {
		return shared.ErrConflict
	}
	doc.Status = to
	doc.AmountPaid = amountPaid
	return nil
}

type fixture struct {
	docs      *Service
	ledgerSvc *ledger.Service
	ar        ledger.Account
	ap        ledger.Account
	outputVAT ledger.Account
	inputVAT  ledger.Account
	revenue   ledger.Account
	expense   ledger.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledgerRepo := ledger.NewMemoryRepository()
	ledgerSvc := ledger.NewService(ledgerRepo, nil)

	mk := func(code, name string, typ ledger.AccountType, sub ledger.AccountSubType) ledger.Account {
		a, err := ledgerSvc.CreateAccount(context.Background(), ledger.AccountInput{
			Code: code, Name: name, Type: typ, SubType: sub,
		})
		require.NoError(t, err)
		return a
	}
	f := &fixture{ledgerSvc: ledgerSvc}
	f.ar = mk("1200", "Accounts Receivable", ledger.AccountTypeAsset, ledger.SubTypeCurrentAsset)
	f.ap = mk("2100", "Accounts Payable", ledger.AccountTypeLiability, ledger.SubTypeCurrentLiability)
	f.outputVAT = mk("2200", "VAT Payable", ledger.AccountTypeLiability, ledger.SubTypeCurrentLiability)
	f.inputVAT = mk("1300", "VAT Receivable", ledger.AccountTypeAsset, ledger.SubTypeCurrentAsset)
	f.revenue = mk("4000", "Sales", ledger.AccountTypeRevenue, ledger.SubTypeOperatingRevenue)
	f.expense = mk("5100", "Rent Expense", ledger.AccountTypeExpense, ledger.SubTypeOperatingExpense)

	f.docs = NewService(newMemoryDocRepo(), ledgerSvc, PostingAccounts{
		Receivable: f.ar.ID,
		Payable:    f.ap.ID,
		OutputVAT:  f.outputVAT.ID,
		InputVAT:   f.inputVAT.ID,
	}, nil)
	f.docs.WithNow(func() time.Time { return time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC) })
	return f
}

func (f *fixture) balance(t *testing.T, id int64) money.Money {
	t.Helper()
	accounts, err := f.ledgerSvc.ListAccounts(context.Background())
	require.NoError(t, err)
	for _, a := range accounts {
		if a.ID == id {
			return a.CurrentBalance
		}
	}
	t.Fatalf("account %d not found", id)
	return 0
}

func TestInvoiceTotalsScenarioA(t *testing.T) {
	f := newFixture(t)
	doc, err := f.docs.Create(context.Background(), Input{
		Kind:      KindInvoice,
		ContactID: 7,
		Date:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		Items: []LineItem{{
			Description:   "Consulting",
			QuantityMilli: 1000,
			UnitPrice:     money.FromFils(5000000),
			VatRate:       money.StandardRate,
			AccountID:     f.revenue.ID,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, money.FromFils(5000000), doc.Items[0].LineTotal)
	require.Equal(t, money.FromFils(250000), doc.Items[0].VatAmount)
	require.Equal(t, money.FromFils(5000000), doc.Subtotal)
	require.Equal(t, money.FromFils(250000), doc.VatTotal)
	require.Equal(t, money.FromFils(5250000), doc.Total)
	require.Equal(t, StatusDraft, doc.Status)
}

func TestIssueInvoicePostsBalancedEntryScenarioB(t *testing.T) {
	f := newFixture(t)
	doc, err := f.docs.Create(context.Background(), Input{
		Kind:      KindInvoice,
		ContactID: 7,
		Date:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Items: []LineItem{{
			QuantityMilli: 1000,
			UnitPrice:     money.FromFils(5000000),
			VatRate:       money.StandardRate,
			AccountID:     f.revenue.ID,
		}},
	})
	require.NoError(t, err)

	issued, err := f.docs.Issue(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, issued.Status)

	require.Equal(t, money.FromFils(5250000), f.balance(t, f.ar.ID))
	require.Equal(t, money.FromFils(5000000), f.balance(t, f.revenue.ID))
	require.Equal(t, money.FromFils(250000), f.balance(t, f.outputVAT.ID))

	// Issuing twice conflicts instead of double-posting.
	_, err = f.docs.Issue(context.Background(), doc.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, money.FromFils(5250000), f.balance(t, f.ar.ID))
}

func TestIssuePostingFailureLeavesDraft(t *testing.T) {
	f := newFixture(t)
	doc, err := f.docs.Create(context.Background(), Input{
		Kind:      KindInvoice,
		ContactID: 7,
		Date:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Items: []LineItem{{
			QuantityMilli: 1000,
			UnitPrice:     money.FromFils(5000000),
			VatRate:       money.StandardRate,
			AccountID:     f.revenue.ID,
		}},
	})
	require.NoError(t, err)

	// Break the posting target: an inactive revenue account fails the entry.
	require.NoError(t, f.ledgerSvc.DeactivateAccount(context.Background(), f.revenue.ID))

	_, err = f.docs.Issue(context.Background(), doc.ID)
	require.ErrorIs(t, err, shared.ErrInactiveAccount)

	current, err := f.docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, current.Status)
	require.Equal(t, money.Zero, f.balance(t, f.ar.ID))

	// The retry surfaces the same posting error, not a spurious conflict.
	_, err = f.docs.Issue(context.Background(), doc.ID)
	require.ErrorIs(t, err, shared.ErrInactiveAccount)
	require.NotErrorIs(t, err, shared.ErrConflict)
}

func TestIssueCompletesStrandedPosting(t *testing.T) {
	f := newFixture(t)
	doc, err := f.docs.Create(context.Background(), Input{
		Kind:      KindInvoice,
		ContactID: 7,
		Date:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Items: []LineItem{{
			QuantityMilli: 1000,
			UnitPrice:     money.FromFils(5000000),
			VatRate:       money.StandardRate,
			AccountID:     f.revenue.ID,
		}},
	})
	require.NoError(t, err)

	// Simulate a prior attempt that posted the entry but crashed before the
	// status transition committed.
	_, err = f.ledgerSvc.PostEntry(context.Background(), ledger.PostingInput{
		Date:        doc.Date,
		Description: "Invoice " + doc.Number,
		Source:      ledger.Source{Kind: ledger.SourceInvoice, Ref: doc.ID},
		Lines: []ledger.PostingLine{
			{AccountID: f.ar.ID, Debit: money.FromFils(5250000)},
			{AccountID: f.revenue.ID, Credit: money.FromFils(5000000)},
			{AccountID: f.outputVAT.ID, Credit: money.FromFils(250000)},
		},
	})
	require.NoError(t, err)

	issued, err := f.docs.Issue(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, issued.Status)

	// The stranded entry stands alone; nothing was posted twice.
	require.Equal(t, money.FromFils(5250000), f.balance(t, f.ar.ID))
	require.Equal(t, money.FromFils(5000000), f.balance(t, f.revenue.ID))

	_, err = f.docs.Issue(context.Background(), doc.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestIssueBillMirrorsSides(t *testing.T) {
	f := newFixture(t)
	doc, err := f.docs.Create(context.Background(), Input{
		Kind:      KindBill,
		ContactID: 12,
		Date:      time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Items: []LineItem{{
			QuantityMilli: 1000,
			UnitPrice:     money.FromFils(1000000),
			VatRate:       money.StandardRate,
			AccountID:     f.expense.ID,
		}},
	})
	require.NoError(t, err)

	issued, err := f.docs.Issue(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, issued.Status)

	require.Equal(t, money.FromFils(1000000), f.balance(t, f.expense.ID))
	require.Equal(t, money.FromFils(50000), f.balance(t, f.inputVAT.ID))
	require.Equal(t, money.FromFils(1050000), f.balance(t, f.ap.ID))
}

func TestVatResidualFoldsIntoVatLine(t *testing.T) {
	f := newFixture(t)
	// Three odd-filas lines at 5% each round individually; the posting must
	// still balance exactly with the residual carried by the VAT leg.
	items := []LineItem{
		{QuantityMilli: 1000, UnitPrice: money.FromFils(333), VatRate: money.StandardRate, AccountID: f.revenue.ID},
		{QuantityMilli: 1000, UnitPrice: money.FromFils(777), VatRate: money.StandardRate, AccountID: f.revenue.ID},
		{QuantityMilli: 3000, UnitPrice: money.FromFils(111), VatRate: money.StandardRate, AccountID: f.revenue.ID},
	}
	doc, err := f.docs.Create(context.Background(), Input{
		Kind:      KindInvoice,
		ContactID: 3,
		Date:      time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Items:     items,
	})
	require.NoError(t, err)
	require.Equal(t, doc.Total, doc.Subtotal.Add(doc.VatTotal))

	posting, err := BuildPosting(doc, PostingAccounts{
		Receivable: f.ar.ID, Payable: f.ap.ID,
		OutputVAT: f.outputVAT.ID, InputVAT: f.inputVAT.ID,
	})
	require.NoError(t, err)

	var debit, credit money.Money
	var vatLeg money.Money
	for _, line := range posting.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
		if line.AccountID == f.outputVAT.ID {
			vatLeg = line.Credit
		}
	}
	require.Equal(t, debit, credit)
	require.Equal(t, doc.VatTotal, vatLeg)
}

func TestZeroRatedInvoiceHasNoVatLine(t *testing.T) {
	f := newFixture(t)
	doc, err := f.docs.Create(context.Background(), Input{
		Kind:      KindInvoice,
		ContactID: 3,
		Date:      time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Items: []LineItem{{
			QuantityMilli: 1000,
			UnitPrice:     money.FromFils(200000),
			VatRate:       money.ZeroRate,
			AccountID:     f.revenue.ID,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, money.Zero, doc.VatTotal)

	posting, err := BuildPosting(doc, PostingAccounts{
		Receivable: f.ar.ID, Payable: f.ap.ID,
		OutputVAT: f.outputVAT.ID, InputVAT: f.inputVAT.ID,
	})
	require.NoError(t, err)
	require.Len(t, posting.Lines, 2)
}

func TestGroupingByAccountStaysBalanced(t *testing.T) {
	f := newFixture(t)
	other, err := f.ledgerSvc.CreateAccount(context.Background(), ledger.AccountInput{
		Code: "4100", Name: "Service Revenue", Type: ledger.AccountTypeRevenue, SubType: ledger.SubTypeOperatingRevenue,
	})
	require.NoError(t, err)

	doc, err := f.docs.Create(context.Background(), Input{
		Kind:      KindInvoice,
		ContactID: 3,
		Date:      time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		Items: []LineItem{
			{QuantityMilli: 1000, UnitPrice: money.FromFils(100000), VatRate: money.StandardRate, AccountID: f.revenue.ID},
			{QuantityMilli: 1000, UnitPrice: money.FromFils(50000), VatRate: money.StandardRate, AccountID: other.ID},
			{QuantityMilli: 2000, UnitPrice: money.FromFils(25000), VatRate: money.StandardRate, AccountID: f.revenue.ID},
		},
	})
	require.NoError(t, err)

	_, err = f.docs.Issue(context.Background(), doc.ID)
	require.NoError(t, err)
	// 100000 + 50000 grouped on the first revenue account, 50000 on the second.
	require.Equal(t, money.FromFils(150000), f.balance(t, f.revenue.ID))
	require.Equal(t, money.FromFils(50000), f.balance(t, other.ID))
	require.Equal(t, money.FromFils(210000), f.balance(t, f.ar.ID))
}

func TestPaymentsAdvanceStatus(t *testing.T) {
	f := newFixture(t)
	doc, err := f.docs.Create(context.Background(), Input{
		Kind:      KindInvoice,
		ContactID: 9,
		Date:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Items: []LineItem{{
			QuantityMilli: 1000,
			UnitPrice:     money.FromFils(100000),
			VatRate:       money.StandardRate,
			AccountID:     f.revenue.ID,
		}},
	})
	require.NoError(t, err)

	// Draft documents cannot accept payments.
	_, err = f.docs.RegisterPayment(context.Background(), doc.ID, money.FromFils(1000))
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = f.docs.Issue(context.Background(), doc.ID)
	require.NoError(t, err)

	partial, err := f.docs.RegisterPayment(context.Background(), doc.ID, money.FromFils(50000))
	require.NoError(t, err)
	require.Equal(t, StatusPartial, partial.Status)

	// Overpayment is rejected with the concrete amounts.
	_, err = f.docs.RegisterPayment(context.Background(), doc.ID, money.FromFils(60000))
	require.ErrorIs(t, err, shared.ErrValidation)

	paid, err := f.docs.RegisterPayment(context.Background(), doc.ID, money.FromFils(55000))
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.Equal(t, paid.Total, paid.AmountPaid)

	_, err = f.docs.RegisterPayment(context.Background(), doc.ID, money.FromFils(1))
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t)
	doc, err := f.docs.Create(context.Background(), Input{
		Kind:      KindInvoice,
		ContactID: 9,
		Date:      time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC),
		Items: []LineItem{{
			QuantityMilli: 1000,
			UnitPrice:     money.FromFils(100000),
			VatRate:       money.StandardRate,
			AccountID:     f.revenue.ID,
		}},
	})
	require.NoError(t, err)
	_, err = f.docs.Issue(context.Background(), doc.ID)
	require.NoError(t, err)

	marked, err := f.docs.MarkOverdue(context.Background(), time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, marked)

	updated, err := f.docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, updated.Status)

	// Second scan finds nothing new.
	marked, err = f.docs.MarkOverdue(context.Background(), time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 0, marked)
}

func TestCancelBlocksFurtherActivity(t *testing.T) {
	f := newFixture(t)
	doc, err := f.docs.Create(context.Background(), Input{
		Kind:      KindInvoice,
		ContactID: 9,
		Date:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Items: []LineItem{{
			QuantityMilli: 1000,
			UnitPrice:     money.FromFils(100000),
			VatRate:       money.StandardRate,
			AccountID:     f.revenue.ID,
		}},
	})
	require.NoError(t, err)
	require.NoError(t, f.docs.Cancel(context.Background(), doc.ID))

	_, err = f.docs.Issue(context.Background(), doc.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	err = f.docs.Cancel(context.Background(), doc.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestLineItemValidation(t *testing.T) {
	f := newFixture(t)
	base := Input{
		Kind:      KindInvoice,
		ContactID: 1,
		Date:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	cases := map[string]LineItem{
		"zero quantity":      {QuantityMilli: 0, UnitPrice: money.FromFils(100), AccountID: f.revenue.ID},
		"negative price":     {QuantityMilli: 1000, UnitPrice: money.FromFils(-1), AccountID: f.revenue.ID},
		"oversized discount": {QuantityMilli: 1000, UnitPrice: money.FromFils(100), Discount: money.FromFils(200), AccountID: f.revenue.ID},
		"bad rate":           {QuantityMilli: 1000, UnitPrice: money.FromFils(100), VatRate: money.VatRate(20000), AccountID: f.revenue.ID},
		"missing account":    {QuantityMilli: 1000, UnitPrice: money.FromFils(100)},
	}
	for name, item := range cases {
		in := base
		in.Items = []LineItem{item}
		_, err := f.docs.Create(context.Background(), in)
		require.ErrorIs(t, err, shared.ErrValidation, name)
	}
}
