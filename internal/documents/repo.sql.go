package documents

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/platform/db"
	"github.com/mizan-books/mizan/internal/shared"
)

// Repository persists documents in PostgreSQL.
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
		return errors.New("documents repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

const documentColumns = `id, kind, number, contact_id, date, due_date, subtotal, vat_total, total, amount_paid, status, created_at, updated_at`

func (r *txRepository) InsertDocument(ctx context.Context, doc Document) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO documents (id, kind, number, contact_id, date, due_date, subtotal, vat_total, total, amount_paid, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		doc.ID, doc.Kind, doc.Number, doc.ContactID, doc.Date, doc.DueDate,
		doc.Subtotal.Fils(), doc.VatTotal.Fils(), doc.Total.Fils(), doc.AmountPaid.Fils(), doc.Status)
	if err != nil {
		return err
	}
	for idx, item := range doc.Items {
		if _, err := r.tx.Exec(ctx, `INSERT INTO document_items (document_id, position, description, quantity_milli, unit_price, discount, vat_rate, account_id, line_total, vat_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			doc.ID, idx, item.Description, item.QuantityMilli, item.UnitPrice.Fils(),
			item.Discount.Fils(), item.VatRate.Permyriad(), item.AccountID,
			item.LineTotal.Fils(), item.VatAmount.Fils()); err != nil {
			return err
		}
	}
	return nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	var subtotal, vatTotal, total, paid int64
	err := row.Scan(&d.ID, &d.Kind, &d.Number, &d.ContactID, &d.Date, &d.DueDate,
		&subtotal, &vatTotal, &total, &paid, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, shared.ErrNotFound
		}
		return Document{}, err
	}
	d.Subtotal = money.FromFils(subtotal)
	d.VatTotal = money.FromFils(vatTotal)
	d.Total = money.FromFils(total)
	d.AmountPaid = money.FromFils(paid)
	return d, nil
}

func (r *txRepository) loadItems(ctx context.Context, doc *Document) error {
	rows, err := r.tx.Query(ctx, `SELECT description, quantity_milli, unit_price, discount, vat_rate, account_id, line_total, vat_amount
FROM document_items WHERE document_id = $1 ORDER BY position`, doc.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var item LineItem
		var unitPrice, discount, rate, lineTotal, vatAmount int64
		if err := rows.Scan(&item.Description, &item.QuantityMilli, &unitPrice, &discount,
			&rate, &item.AccountID, &lineTotal, &vatAmount); err != nil {
			return err
		}
		item.UnitPrice = money.FromFils(unitPrice)
		item.Discount = money.FromFils(discount)
		item.VatRate = money.VatRate(rate)
		item.LineTotal = money.FromFils(lineTotal)
		item.VatAmount = money.FromFils(vatAmount)
		doc.Items = append(doc.Items, item)
	}
	return rows.Err()
}

func (r *txRepository) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	doc, err := scanDocument(r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		return Document{}, err
	}
	if err := r.loadItems(ctx, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (r *txRepository) collect(ctx context.Context, rows pgx.Rows, withItems bool) ([]Document, error) {
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if withItems {
		for i := range docs {
			if err := r.loadItems(ctx, &docs[i]); err != nil {
				return nil, err
			}
		}
	}
	return docs, nil
}

func (r *txRepository) ListDocuments(ctx context.Context, kind Kind) ([]Document, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE kind = $1 ORDER BY date DESC, number`, kind)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows, false)
}

func (r *txRepository) ListIssuedBetween(ctx context.Context, kind Kind, from, to time.Time) ([]Document, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+documentColumns+` FROM documents
WHERE kind = $1 AND date >= $2 AND date <= $3 AND status NOT IN ('DRAFT','CANCELLED')
ORDER BY date, number`, kind, from, to)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows, true)
}

func (r *txRepository) ListOutstanding(ctx context.Context, kind Kind) ([]Document, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+documentColumns+` FROM documents
WHERE kind = $1 AND status IN ('SENT','APPROVED','PARTIAL','OVERDUE')
ORDER BY due_date`, kind)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows, false)
}

func (r *txRepository) ListDueBefore(ctx context.Context, asOf time.Time) ([]Document, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+documentColumns+` FROM documents
WHERE due_date < $1 AND status IN ('SENT','APPROVED','PARTIAL') AND amount_paid < total
ORDER BY due_date`, asOf)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows, false)
}

func (r *txRepository) TransitionStatus(ctx context.Context, id uuid.UUID, expect, to Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE documents SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, expect, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	return nil
}

func (r *txRepository) SetPayment(ctx context.Context, id uuid.UUID, expect, to Status, amountPaid money.Money) error {
	tag, err := r.tx.Exec(ctx, `UPDATE documents SET status = $3, amount_paid = $4, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, expect, to, amountPaid.Fils())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	return nil
}
