package payroll

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RepositoryPort abstracts transactional repository behaviour for payroll.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes payroll persistence inside a transaction. Run status
// moves are compare-and-set so double-approve and double-process races lose
// with shared.ErrConflict.
type TxRepository interface {
	InsertEmployee(ctx context.Context, in EmployeeInput) (Employee, error)
	GetEmployee(ctx context.Context, id int64) (Employee, error)
	ListEmployees(ctx context.Context, activeOnly bool) ([]Employee, error)
	UpdateEmployee(ctx context.Context, id int64, in EmployeeInput) (Employee, error)
	SetEmployeeActive(ctx context.Context, id int64, active bool) error

	InsertRun(ctx context.Context, run PayrollRun) error
	GetRun(ctx context.Context, id uuid.UUID) (PayrollRun, error)
	ListRuns(ctx context.Context) ([]PayrollRun, error)
	TransitionRun(ctx context.Context, id uuid.UUID, expect, to RunStatus) error
	SetProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
}
