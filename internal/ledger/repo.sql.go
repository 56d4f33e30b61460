package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/platform/db"
	"github.com/mizan-books/mizan/internal/shared"
)

// Repository persists ledger entities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

const accountColumns = `id, code, name, type, sub_type, parent_id, opening_balance, current_balance, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var opening, current int64
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.SubType, &a.ParentID,
		&opening, &current, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, err
	}
	a.OpeningBalance = money.FromFils(opening)
	a.CurrentBalance = money.FromFils(current)
	return a, nil
}

func (r *txRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (r *txRepository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = $1`, code)
	return scanAccount(row)
}

func (r *txRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *txRepository) ListChildren(ctx context.Context, parentID int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE parent_id = $1 ORDER BY code`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) InsertAccount(ctx context.Context, in AccountInput) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (code, name, type, sub_type, parent_id, opening_balance, current_balance, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$6,TRUE)
RETURNING `+accountColumns,
		in.Code, in.Name, in.Type, in.SubType, in.ParentID, in.OpeningBalance.Fils())
	account, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_accounts_code" {
			return Account{}, shared.Invalidf("ledger: account code %s already exists", in.Code)
		}
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) SetAccountActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) DeleteAccount(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) ApplyBalanceDelta(ctx context.Context, accountID int64, delta int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET current_balance = current_balance + $2, updated_at = NOW() WHERE id = $1`, accountID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (date, description, source_kind, source_ref, status)
VALUES ($1,$2,$3,$4,'POSTED') RETURNING id, posted_at, created_at, updated_at`,
		in.Date, in.Description, in.Source.Kind, in.Source.Ref)
	entry := JournalEntry{
		Date:        in.Date,
		Description: in.Description,
		Source:      in.Source,
		Status:      JournalStatusPosted,
	}
	if err := row.Scan(&entry.ID, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (je_id, account_id, debit, credit, description, contact_id)
VALUES ($1,$2,$3,$4,$5,$6)`,
			entryID, line.AccountID, line.Debit.Fils(), line.Credit.Fils(), line.Description, line.ContactID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, source Source, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (kind, ref, je_id) VALUES ($1,$2,$3)`,
		source.Kind, source.Ref, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_source_links" {
			return fmt.Errorf("ledger: source %s/%s already posted: %w",
				source.Kind, source.Ref, shared.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, date, description, source_kind, source_ref, status, posted_at, created_at, updated_at
FROM journal_entries WHERE id = $1`, entryID)
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Date, &e.Description, &e.Source.Kind, &e.Source.Ref,
		&e.Status, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, je_id, account_id, debit, credit, description, contact_id
FROM journal_lines WHERE je_id = $1 ORDER BY id`, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		var debit, credit int64
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &debit, &credit,
			&line.Description, &line.ContactID); err != nil {
			return JournalEntry{}, err
		}
		line.Debit = money.FromFils(debit)
		line.Credit = money.FromFils(credit)
		e.Lines = append(e.Lines, line)
	}
	return e, rows.Err()
}

func (r *txRepository) ListJournalEntries(ctx context.Context) ([]JournalEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, date, description, source_kind, source_ref, status, posted_at, created_at, updated_at
FROM journal_entries ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.Description, &e.Source.Kind, &e.Source.Ref,
			&e.Status, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) MarkReversed(ctx context.Context, entryID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status = 'REVERSED', updated_at = NOW() WHERE id = $1 AND status = 'POSTED'`, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	return nil
}

func (r *txRepository) SumPostedLines(ctx context.Context, from, to time.Time) (map[int64]LineTotals, error) {
	query := `SELECT l.account_id, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.je_id
WHERE e.status IN ('POSTED','REVERSED')`
	args := []any{}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND e.date >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND e.date <= $%d", len(args))
	}
	query += " GROUP BY l.account_id"
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := make(map[int64]LineTotals)
	for rows.Next() {
		var accountID int64
		var t LineTotals
		if err := rows.Scan(&accountID, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		totals[accountID] = t
	}
	return totals, rows.Err()
}
