package vat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/platform/db"
	"github.com/mizan-books/mizan/internal/shared"
)

// Repository persists VAT returns in PostgreSQL. The per-rate buckets are
// stored as JSON alongside the scalar box values.
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
		return errors.New("vat repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

type bucketRow struct {
	Rate    int64 `json:"rate"`
	Taxable int64 `json:"taxable"`
	Vat     int64 `json:"vat"`
}

func encodeBuckets(buckets []RateBucket) ([]byte, error) {
	rows := make([]bucketRow, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, bucketRow{Rate: int64(b.Rate), Taxable: b.Taxable.Fils(), Vat: b.Vat.Fils()})
	}
	return json.Marshal(rows)
}

func decodeBuckets(raw []byte) ([]RateBucket, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []bucketRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	buckets := make([]RateBucket, 0, len(rows))
	for _, row := range rows {
		buckets = append(buckets, RateBucket{
			Rate:    money.VatRate(row.Rate),
			Taxable: money.FromFils(row.Taxable),
			Vat:     money.FromFils(row.Vat),
		})
	}
	return buckets, nil
}

const returnColumns = `id, period_start, period_end, box1_standard_supplies, box4_zero_rated_supplies,
box6_standard_expenses, box9_net_vat_due, output_vat, input_vat, supply_buckets, expense_buckets,
status, filing_reference, created_at, filed_at`

func scanReturn(row pgx.Row) (VatReturn, error) {
	var ret VatReturn
	var box1, box4, box6, box9, output, input int64
	var supplyJSON, expenseJSON []byte
	err := row.Scan(&ret.ID, &ret.PeriodStart, &ret.PeriodEnd, &box1, &box4, &box6, &box9,
		&output, &input, &supplyJSON, &expenseJSON, &ret.Status, &ret.FilingReference,
		&ret.CreatedAt, &ret.FiledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VatReturn{}, shared.ErrNotFound
		}
		return VatReturn{}, err
	}
	ret.Form = Form201{
		Box1StandardRatedSupplies: money.FromFils(box1),
		Box4ZeroRatedSupplies:     money.FromFils(box4),
		Box6StandardRatedExpenses: money.FromFils(box6),
		Box9NetVatDue:             money.FromFils(box9),
		OutputVat:                 money.FromFils(output),
		InputVat:                  money.FromFils(input),
	}
	if ret.Form.SupplyBuckets, err = decodeBuckets(supplyJSON); err != nil {
		return VatReturn{}, err
	}
	if ret.Form.ExpenseBuckets, err = decodeBuckets(expenseJSON); err != nil {
		return VatReturn{}, err
	}
	return ret, nil
}

func (r *txRepository) InsertReturn(ctx context.Context, ret VatReturn) error {
	supplyJSON, err := encodeBuckets(ret.Form.SupplyBuckets)
	if err != nil {
		return err
	}
	expenseJSON, err := encodeBuckets(ret.Form.ExpenseBuckets)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO vat_returns (id, period_start, period_end,
box1_standard_supplies, box4_zero_rated_supplies, box6_standard_expenses, box9_net_vat_due,
output_vat, input_vat, supply_buckets, expense_buckets, status, filing_reference, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		ret.ID, ret.PeriodStart, ret.PeriodEnd,
		ret.Form.Box1StandardRatedSupplies.Fils(), ret.Form.Box4ZeroRatedSupplies.Fils(),
		ret.Form.Box6StandardRatedExpenses.Fils(), ret.Form.Box9NetVatDue.Fils(),
		ret.Form.OutputVat.Fils(), ret.Form.InputVat.Fils(),
		supplyJSON, expenseJSON, ret.Status, ret.FilingReference, ret.CreatedAt)
	return err
}

func (r *txRepository) GetReturn(ctx context.Context, id uuid.UUID) (VatReturn, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+returnColumns+` FROM vat_returns WHERE id = $1`, id)
	return scanReturn(row)
}

func (r *txRepository) ListReturns(ctx context.Context) ([]VatReturn, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+returnColumns+` FROM vat_returns ORDER BY period_start DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rets []VatReturn
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		rets = append(rets, ret)
	}
	return rets, rows.Err()
}

func (r *txRepository) MarkFiled(ctx context.Context, id uuid.UUID, filingReference string, filedAt time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE vat_returns SET status = 'FILED', filing_reference = $2, filed_at = $3
WHERE id = $1 AND status = 'DRAFT'`, id, filingReference, filedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	return nil
}
