package documents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/money"
)

// RepositoryPort abstracts transactional repository behaviour for documents.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes document operations inside a transaction. Status
// moves are compare-and-set: they fail with shared.ErrConflict when the
// stored status no longer matches the expected pre-state.
type TxRepository interface {
	InsertDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (Document, error)
	ListDocuments(ctx context.Context, kind Kind) ([]Document, error)
	// ListIssuedBetween returns issued documents of the kind dated within
	// [from, to]; cancelled and draft documents are excluded.
	ListIssuedBetween(ctx context.Context, kind Kind, from, to time.Time) ([]Document, error)
	ListOutstanding(ctx context.Context, kind Kind) ([]Document, error)
	// ListDueBefore returns issued, unpaid documents whose due date passed.
	ListDueBefore(ctx context.Context, asOf time.Time) ([]Document, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, expect, to Status) error
	SetPayment(ctx context.Context, id uuid.UUID, expect, to Status, amountPaid money.Money) error
}
