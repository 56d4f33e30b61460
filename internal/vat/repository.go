package vat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RepositoryPort abstracts transactional repository behaviour for VAT returns.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes VAT return persistence inside a transaction. File is
// compare-and-set on the draft status so a racing double-file loses cleanly.
type TxRepository interface {
	InsertReturn(ctx context.Context, ret VatReturn) error
	GetReturn(ctx context.Context, id uuid.UUID) (VatReturn, error)
	ListReturns(ctx context.Context) ([]VatReturn, error)
	// MarkFiled transitions DRAFT to FILED, recording the filing reference
	// and timestamp. Returns shared.ErrConflict when the row is not a draft.
	MarkFiled(ctx context.Context, id uuid.UUID, filingReference string, filedAt time.Time) error
}
