package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/ledger"
	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/shared"
)

// LedgerPort is the slice of the ledger the document service needs.
type LedgerPort interface {
	PostEntry(ctx context.Context, input ledger.PostingInput) (ledger.JournalEntry, error)
}

// Service coordinates document lifecycle and ledger posting.
type Service struct {
	repo     RepositoryPort
	ledger   LedgerPort
	accounts PostingAccounts
	audit    shared.AuditPort
	now      func() time.Time
}

// NewService constructs the document service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, accounts PostingAccounts, audit shared.AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerPort, accounts: accounts, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create computes totals and stores a draft document.
func (s *Service) Create(ctx context.Context, input Input) (Document, error) {
	if err := input.Validate(); err != nil {
		return Document{}, err
	}
	now := s.now()
	doc := Document{
		ID:        uuid.New(),
		Kind:      input.Kind,
		Number:    input.Number,
		ContactID: input.ContactID,
		Date:      input.Date,
		DueDate:   input.DueDate,
		Items:     append([]LineItem(nil), input.Items...),
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if doc.Number == "" {
		doc.Number = defaultNumber(doc.Kind, doc.ID)
	}
	if err := doc.computeTotals(); err != nil {
		return Document{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertDocument(ctx, doc)
	})
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Get loads one document.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetDocument(ctx, id)
		return err
	})
	return doc, err
}

// List returns all documents of a kind.
func (s *Service) List(ctx context.Context, kind Kind) ([]Document, error) {
	var docs []Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		docs, err = tx.ListDocuments(ctx, kind)
		return err
	})
	return docs, err
}

// Issue posts a draft document to the ledger and moves it to its issued
// status (SENT for invoices, APPROVED for bills). The posting happens before
// the status transition, so a failed posting leaves the document DRAFT and
// retryable. A source-link conflict on the posting means a previous attempt
// posted the entry but did not finish the transition; the retry completes it
// rather than refusing forever.
func (s *Service) Issue(ctx context.Context, id uuid.UUID) (Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.Status == StatusCancelled {
		return Document{}, fmt.Errorf("documents: %s %s is cancelled: %w", doc.Kind, doc.Number, shared.ErrConflict)
	}
	if doc.Status != StatusDraft {
		return Document{}, fmt.Errorf("documents: %s %s is already %s: %w", doc.Kind, doc.Number, doc.Status, shared.ErrConflict)
	}
	posting, err := BuildPosting(doc, s.accounts)
	if err != nil {
		return Document{}, err
	}
	entry, err := s.ledger.PostEntry(ctx, posting)
	if err != nil && !errors.Is(err, shared.ErrConflict) {
		return Document{}, err
	}
	issued := issuedStatus(doc.Kind)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.TransitionStatus(ctx, doc.ID, StatusDraft, issued)
	})
	if err != nil {
		return Document{}, err
	}
	doc.Status = issued
	meta := map[string]any{}
	if entry.ID != 0 {
		meta["journal_entry"] = entry.ID
	}
	s.record(ctx, "document.issue", doc, meta)
	return doc, nil
}

// RegisterPayment records a payment and advances the status to PARTIAL or
// PAID. Payments never exceed the document total.
func (s *Service) RegisterPayment(ctx context.Context, id uuid.UUID, amount money.Money) (Document, error) {
	if amount <= 0 {
		return Document{}, shared.Invalidf("documents: payment must be positive")
	}
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.payable() {
			return fmt.Errorf("documents: %s %s is %s and cannot accept payments: %w",
				current.Kind, current.Number, current.Status, shared.ErrConflict)
		}
		paid := current.AmountPaid.Add(amount)
		if paid > current.Total {
			return shared.Invalidf("documents: payment brings paid amount %s above total %s",
				paid, current.Total)
		}
		next := StatusPartial
		if paid == current.Total {
			next = StatusPaid
		}
		if err := tx.SetPayment(ctx, current.ID, current.Status, next, paid); err != nil {
			return err
		}
		current.AmountPaid = paid
		current.Status = next
		doc = current
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.record(ctx, "document.payment", doc, map[string]any{"amount": amount.Display()})
	return doc, nil
}

// Cancel terminally cancels an unpaid document. Cancelled documents block
// any further posting or payment.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if current.AmountPaid > 0 {
			return shared.Invalidf("documents: %s %s has payments and cannot be cancelled",
				current.Kind, current.Number)
		}
		switch current.Status {
		case StatusDraft, StatusSent, StatusApproved, StatusOverdue:
			return tx.TransitionStatus(ctx, current.ID, current.Status, StatusCancelled)
		default:
			return fmt.Errorf("documents: %s %s is %s: %w",
				current.Kind, current.Number, current.Status, shared.ErrConflict)
		}
	})
	return err
}

// MarkOverdue flips issued, unpaid documents past their due date to OVERDUE
// and returns how many changed. Races with payments simply skip the row.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	marked := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		due, err := tx.ListDueBefore(ctx, asOf)
		if err != nil {
			return err
		}
		for _, doc := range due {
			if doc.Status != StatusSent && doc.Status != StatusApproved && doc.Status != StatusPartial {
				continue
			}
			if err := tx.TransitionStatus(ctx, doc.ID, doc.Status, StatusOverdue); err != nil {
				continue
			}
			marked++
		}
		return nil
	})
	return marked, err
}

// Aging groups outstanding document balances into days-overdue buckets.
func (s *Service) Aging(ctx context.Context, kind Kind, asOf time.Time) (AgingBuckets, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	var buckets AgingBuckets
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		outstanding, err := tx.ListOutstanding(ctx, kind)
		if err != nil {
			return err
		}
		for _, doc := range outstanding {
			balance := doc.Total.Sub(doc.AmountPaid)
			if balance <= 0 {
				continue
			}
			days := int(asOf.Sub(doc.DueDate).Hours() / 24)
			switch {
			case days <= 0:
				buckets.Current = buckets.Current.Add(balance)
			case days <= 30:
				buckets.Bucket30 = buckets.Bucket30.Add(balance)
			case days <= 60:
				buckets.Bucket60 = buckets.Bucket60.Add(balance)
			case days <= 90:
				buckets.Bucket90 = buckets.Bucket90.Add(balance)
			default:
				buckets.Bucket120 = buckets.Bucket120.Add(balance)
			}
		}
		return nil
	})
	return buckets, err
}

// ListIssuedBetween exposes issued documents for downstream calculators.
func (s *Service) ListIssuedBetween(ctx context.Context, kind Kind, from, to time.Time) ([]Document, error) {
	var docs []Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		docs, err = tx.ListIssuedBetween(ctx, kind, from, to)
		return err
	})
	return docs, err
}

func (s *Service) record(ctx context.Context, action string, doc Document, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "document",
		EntityID: doc.ID.String(),
		Meta:     meta,
		At:       s.now(),
	})
}

func issuedStatus(kind Kind) Status {
	if kind == KindBill {
		return StatusApproved
	}
	return StatusSent
}

func defaultNumber(kind Kind, id uuid.UUID) string {
	prefix := "INV"
	if kind == KindBill {
		prefix = "BILL"
	}
	return fmt.Sprintf("%s-%s", prefix, id.String()[:8])
}
