package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/ledger"
	"github.com/mizan-books/mizan/internal/shared"
)

// LedgerPort is the slice of the ledger the payroll service needs.
type LedgerPort interface {
	PostEntry(ctx context.Context, input ledger.PostingInput) (ledger.JournalEntry, error)
}

// PostingAccounts carries the account ids a processed run posts against.
type PostingAccounts struct {
	SalaryExpense     int64
	PayrollPayable    int64
	DeductionsPayable int64
}

// Service coordinates employees, pay runs, and the processed-run posting.
type Service struct {
	repo     RepositoryPort
	ledger   LedgerPort
	accounts PostingAccounts
	audit    shared.AuditPort
	now      func() time.Time
}

// NewService constructs the payroll service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, accounts PostingAccounts, audit shared.AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerPort, accounts: accounts, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateEmployee stores a new employee.
func (s *Service) CreateEmployee(ctx context.Context, in EmployeeInput) (Employee, error) {
	if err := in.Validate(); err != nil {
		return Employee{}, err
	}
	var emp Employee
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		emp, err = tx.InsertEmployee(ctx, in)
		return err
	})
	return emp, err
}

// GetEmployee fetches one employee.
func (s *Service) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	var emp Employee
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		emp, err = tx.GetEmployee(ctx, id)
		return err
	})
	return emp, err
}

// ListEmployees lists employees, optionally active only.
func (s *Service) ListEmployees(ctx context.Context, activeOnly bool) ([]Employee, error) {
	var emps []Employee
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		emps, err = tx.ListEmployees(ctx, activeOnly)
		return err
	})
	return emps, err
}

// UpdateEmployee replaces an employee's stored fields.
func (s *Service) UpdateEmployee(ctx context.Context, id int64, in EmployeeInput) (Employee, error) {
	if err := in.Validate(); err != nil {
		return Employee{}, err
	}
	var emp Employee
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		emp, err = tx.UpdateEmployee(ctx, id, in)
		return err
	})
	return emp, err
}

// DeactivateEmployee soft-removes an employee from future runs.
func (s *Service) DeactivateEmployee(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetEmployeeActive(ctx, id, false)
	})
}

// CreateRun computes a draft pay run. Fixed components come from the stored
// employee record at computation time; variable components from the input.
// Overtime is auto-computed from hours unless the input carries an explicit
// amount.
func (s *Service) CreateRun(ctx context.Context, in RunInput) (PayrollRun, error) {
	if err := in.Validate(); err != nil {
		return PayrollRun{}, err
	}
	run := PayrollRun{
		ID:        uuid.New(),
		Month:     in.Month,
		Year:      in.Year,
		Status:    RunStatusDraft,
		CreatedAt: s.now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, itemIn := range in.Items {
			emp, err := tx.GetEmployee(ctx, itemIn.EmployeeID)
			if err != nil {
				return fmt.Errorf("payroll: employee %d: %w", itemIn.EmployeeID, err)
			}
			if !emp.IsActive {
				return shared.Invalidf("payroll: employee %d (%s) is inactive", emp.ID, emp.Name)
			}
			item := PayrollItem{
				EmployeeID:         emp.ID,
				BasicSalary:        emp.BasicSalary,
				HousingAllowance:   emp.HousingAllowance,
				TransportAllowance: emp.TransportAllowance,
				OtherAllowances:    emp.OtherAllowances,
				OvertimeHoursMilli: itemIn.OvertimeHoursMilli,
				OvertimeAmount:     itemIn.OvertimeAmount,
				LeaveSalary:        itemIn.LeaveSalary,
				Deductions:         itemIn.Deductions,
				DaysPaid:           itemIn.DaysPaid,
				Leave:              itemIn.Leave,
			}
			if item.OvertimeAmount == 0 && item.OvertimeHoursMilli > 0 {
				item.OvertimeAmount = OvertimeAmount(emp.BasicSalary, item.OvertimeHoursMilli)
			}
			item.computeNet()
			if item.NetSalary.IsNegative() {
				return shared.Invalidf("payroll: employee %d deductions exceed gross pay", emp.ID)
			}
			run.Items = append(run.Items, item)
		}
		return tx.InsertRun(ctx, run)
	})
	if err != nil {
		return PayrollRun{}, err
	}
	s.record(ctx, "payroll.run.created", run.ID, map[string]any{
		"period":   fmt.Sprintf("%04d-%02d", run.Year, run.Month),
		"totalNet": run.TotalNet().Display(),
	})
	return run, nil
}

// GetRun fetches one run with items.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (PayrollRun, error) {
	var run PayrollRun
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		run, err = tx.GetRun(ctx, id)
		return err
	})
	return run, err
}

// ListRuns lists runs, newest first.
func (s *Service) ListRuns(ctx context.Context) ([]PayrollRun, error) {
	var runs []PayrollRun
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		runs, err = tx.ListRuns(ctx)
		return err
	})
	return runs, err
}

// ApproveRun moves a draft run to approved. A racing approve loses with
// ErrConflict from the CAS.
func (s *Service) ApproveRun(ctx context.Context, id uuid.UUID) (PayrollRun, error) {
	var run PayrollRun
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRun(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != RunStatusDraft {
			return fmt.Errorf("payroll: run %s is %s, not draft: %w", id, current.Status, shared.ErrConflict)
		}
		if err := tx.TransitionRun(ctx, id, RunStatusDraft, RunStatusApproved); err != nil {
			return err
		}
		run = current
		run.Status = RunStatusApproved
		return nil
	})
	if err != nil {
		return PayrollRun{}, err
	}
	s.record(ctx, "payroll.run.approved", id, nil)
	return run, nil
}

// ProcessRun finalises an approved run and posts its aggregate journal
// entry: salary expense debited for gross, payroll payable credited for net,
// deductions payable credited for withheld amounts. The entry is posted
// before the run turns PROCESSED, so a failed posting leaves the run
// APPROVED and retryable. A source-link conflict on the posting means a
// previous attempt posted but did not finish the transition; the retry
// completes it. Processing a processed run fails with ErrAlreadyProcessed.
func (s *Service) ProcessRun(ctx context.Context, id uuid.UUID) (PayrollRun, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return PayrollRun{}, err
	}
	switch run.Status {
	case RunStatusProcessed:
		return PayrollRun{}, fmt.Errorf("payroll: run %s: %w", id, shared.ErrAlreadyProcessed)
	case RunStatusDraft:
		return PayrollRun{}, shared.Invalidf("payroll: run %s must be approved before processing", id)
	}

	processedAt := s.now()
	if _, err := s.ledger.PostEntry(ctx, s.buildPosting(run, processedAt)); err != nil && !errors.Is(err, shared.ErrConflict) {
		return PayrollRun{}, fmt.Errorf("payroll: post run %s: %w", id, err)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetProcessed(ctx, id, processedAt)
	})
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return PayrollRun{}, fmt.Errorf("payroll: run %s: %w", id, shared.ErrAlreadyProcessed)
		}
		return PayrollRun{}, err
	}
	run.Status = RunStatusProcessed
	run.ProcessedAt = &processedAt
	s.record(ctx, "payroll.run.processed", id, map[string]any{
		"totalGross": run.TotalGross().Display(),
		"totalNet":   run.TotalNet().Display(),
	})
	return run, nil
}

// buildPosting assembles the aggregate journal entry for a processed run.
// Gross = net + deductions holds per item, so the entry balances exactly.
func (s *Service) buildPosting(run PayrollRun, at time.Time) ledger.PostingInput {
	lines := []ledger.PostingLine{
		{AccountID: s.accounts.SalaryExpense, Debit: run.TotalGross(), Description: "Salaries"},
		{AccountID: s.accounts.PayrollPayable, Credit: run.TotalNet(), Description: "Net pay due"},
	}
	if deductions := run.TotalDeductions(); deductions != 0 {
		lines = append(lines, ledger.PostingLine{
			AccountID:   s.accounts.DeductionsPayable,
			Credit:      deductions,
			Description: "Withheld deductions",
		})
	}
	return ledger.PostingInput{
		Date:        at,
		Description: fmt.Sprintf("Payroll %04d-%02d", run.Year, run.Month),
		Source:      ledger.Source{Kind: ledger.SourcePayroll, Ref: run.ID},
		Lines:       lines,
	}
}

func (s *Service) record(ctx context.Context, action string, runID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "payroll_run",
		EntityID: runID.String(),
		Meta:     meta,
		At:       s.now(),
	})
}
