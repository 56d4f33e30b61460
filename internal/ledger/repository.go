package ledger

import (
	"context"
	"time"
)

// RepositoryPort abstracts transactional repository behaviour. Every write
// runs inside WithTx so balance folds serialize with the journal insert.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside a transaction.
type TxRepository interface {
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	ListChildren(ctx context.Context, parentID int64) ([]Account, error)
	InsertAccount(ctx context.Context, in AccountInput) (Account, error)
	SetAccountActive(ctx context.Context, id int64, active bool) error
	DeleteAccount(ctx context.Context, id int64) error
	// ApplyBalanceDelta adds delta to current_balance under the row lock of
	// the surrounding transaction, so concurrent postings serialize.
	ApplyBalanceDelta(ctx context.Context, accountID int64, delta int64) error

	InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLine) error
	// LinkSource enforces one posted entry per source document and fails
	// with shared.ErrConflict when the link already exists.
	LinkSource(ctx context.Context, source Source, entryID int64) error
	GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, error)
	ListJournalEntries(ctx context.Context) ([]JournalEntry, error)
	MarkReversed(ctx context.Context, entryID int64) error
	// SumPostedLines aggregates debit/credit per account over posted entries
	// dated inside [from, to]; zero times mean an open bound.
	SumPostedLines(ctx context.Context, from, to time.Time) (map[int64]LineTotals, error)
}

// LineTotals aggregates posted activity for one account.
type LineTotals struct {
	Debit  int64
	Credit int64
}
