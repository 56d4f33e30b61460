package payroll

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

// Repository persists payroll entities in PostgreSQL.
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
		return errors.New("payroll repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

const employeeColumns = `id, name, labour_card_no, iban, bank_routing_code, emirates_id,
basic_salary, housing_allowance, transport_allowance, other_allowances, is_active, created_at, updated_at`

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	var basic, housing, transport, other int64
	err := row.Scan(&e.ID, &e.Name, &e.LabourCardNo, &e.IBAN, &e.BankRoutingCode, &e.EmiratesID,
		&basic, &housing, &transport, &other, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, shared.ErrNotFound
		}
		return Employee{}, err
	}
	e.BasicSalary = money.FromFils(basic)
	e.HousingAllowance = money.FromFils(housing)
	e.TransportAllowance = money.FromFils(transport)
	e.OtherAllowances = money.FromFils(other)
	return e, nil
}

func (r *txRepository) InsertEmployee(ctx context.Context, in EmployeeInput) (Employee, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO employees (name, labour_card_no, iban, bank_routing_code, emirates_id,
basic_salary, housing_allowance, transport_allowance, other_allowances, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,TRUE)
RETURNING `+employeeColumns,
		in.Name, in.LabourCardNo, in.IBAN, in.BankRoutingCode, in.EmiratesID,
		in.BasicSalary.Fils(), in.HousingAllowance.Fils(), in.TransportAllowance.Fils(), in.OtherAllowances.Fils())
	return scanEmployee(row)
}

func (r *txRepository) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id)
	return scanEmployee(row)
}

func (r *txRepository) ListEmployees(ctx context.Context, activeOnly bool) ([]Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY id`
	rows, err := r.tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var emps []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		emps = append(emps, e)
	}
	return emps, rows.Err()
}

func (r *txRepository) UpdateEmployee(ctx context.Context, id int64, in EmployeeInput) (Employee, error) {
	row := r.tx.QueryRow(ctx, `UPDATE employees SET name = $2, labour_card_no = $3, iban = $4,
bank_routing_code = $5, emirates_id = $6, basic_salary = $7, housing_allowance = $8,
transport_allowance = $9, other_allowances = $10, updated_at = NOW()
WHERE id = $1 RETURNING `+employeeColumns,
		id, in.Name, in.LabourCardNo, in.IBAN, in.BankRoutingCode, in.EmiratesID,
		in.BasicSalary.Fils(), in.HousingAllowance.Fils(), in.TransportAllowance.Fils(), in.OtherAllowances.Fils())
	return scanEmployee(row)
}

func (r *txRepository) SetEmployeeActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE employees SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertRun(ctx context.Context, run PayrollRun) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO payroll_runs (id, month, year, status, created_at)
VALUES ($1,$2,$3,$4,$5)`, run.ID, run.Month, run.Year, run.Status, run.CreatedAt)
	if err != nil {
		return err
	}
	for _, item := range run.Items {
		if _, err := r.tx.Exec(ctx, `INSERT INTO payroll_items (run_id, employee_id, basic_salary,
housing_allowance, transport_allowance, other_allowances, overtime_hours_milli, overtime_amount,
leave_salary, deductions, net_salary, days_paid, leave_flag)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			run.ID, item.EmployeeID, item.BasicSalary.Fils(),
			item.HousingAllowance.Fils(), item.TransportAllowance.Fils(), item.OtherAllowances.Fils(),
			item.OvertimeHoursMilli, item.OvertimeAmount.Fils(),
			item.LeaveSalary.Fils(), item.Deductions.Fils(), item.NetSalary.Fils(),
			item.DaysPaid, int(item.Leave)); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) loadItems(ctx context.Context, runID uuid.UUID) ([]PayrollItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT employee_id, basic_salary, housing_allowance, transport_allowance,
other_allowances, overtime_hours_milli, overtime_amount, leave_salary, deductions, net_salary, days_paid, leave_flag
FROM payroll_items WHERE run_id = $1 ORDER BY employee_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PayrollItem
	for rows.Next() {
		var item PayrollItem
		var basic, housing, transport, other, overtime, leave, deductions, net int64
		var leaveFlag int
		if err := rows.Scan(&item.EmployeeID, &basic, &housing, &transport, &other,
			&item.OvertimeHoursMilli, &overtime, &leave, &deductions, &net,
			&item.DaysPaid, &leaveFlag); err != nil {
			return nil, err
		}
		item.BasicSalary = money.FromFils(basic)
		item.HousingAllowance = money.FromFils(housing)
		item.TransportAllowance = money.FromFils(transport)
		item.OtherAllowances = money.FromFils(other)
		item.OvertimeAmount = money.FromFils(overtime)
		item.LeaveSalary = money.FromFils(leave)
		item.Deductions = money.FromFils(deductions)
		item.NetSalary = money.FromFils(net)
		item.Leave = LeaveFlag(leaveFlag)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepository) GetRun(ctx context.Context, id uuid.UUID) (PayrollRun, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, month, year, status, created_at, processed_at
FROM payroll_runs WHERE id = $1`, id)
	var run PayrollRun
	err := row.Scan(&run.ID, &run.Month, &run.Year, &run.Status, &run.CreatedAt, &run.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PayrollRun{}, shared.ErrNotFound
		}
		return PayrollRun{}, err
	}
	run.Items, err = r.loadItems(ctx, id)
	return run, err
}

func (r *txRepository) ListRuns(ctx context.Context) ([]PayrollRun, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, month, year, status, created_at, processed_at
FROM payroll_runs ORDER BY year DESC, month DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []PayrollRun
	for rows.Next() {
		var run PayrollRun
		if err := rows.Scan(&run.ID, &run.Month, &run.Year, &run.Status, &run.CreatedAt, &run.ProcessedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Items, err = r.loadItems(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (r *txRepository) TransitionRun(ctx context.Context, id uuid.UUID, expect, to RunStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE payroll_runs SET status = $3 WHERE id = $1 AND status = $2`,
		id, expect, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	return nil
}

func (r *txRepository) SetProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE payroll_runs SET status = 'PROCESSED', processed_at = $2
WHERE id = $1 AND status = 'APPROVED'`, id, processedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	return nil
}
