package payroll

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mizan-books/mizan/internal/ledger"
	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/shared"
)

// memoryPayrollRepo is an in-memory RepositoryPort with rollback-on-error
// semantics matching the SQL adapter.
type memoryPayrollRepo struct {
	mu        sync.Mutex
	nextID    int64
	employees map[int64]Employee
	runs      map[uuid.UUID]PayrollRun
}

func newMemoryPayrollRepo() *memoryPayrollRepo {
	return &memoryPayrollRepo{
		employees: make(map[int64]Employee),
		runs:      make(map[uuid.UUID]PayrollRun),
	}
}

func (r *memoryPayrollRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	empSnap := make(map[int64]Employee, len(r.employees))
	for id, e := range r.employees {
		empSnap[id] = e
	}
	runSnap := make(map[uuid.UUID]PayrollRun, len(r.runs))
	for id, run := range r.runs {
		runSnap[id] = run
	}
	nextID := r.nextID
	if err := fn(ctx, &memoryPayrollTx{repo: r}); err != nil {
		r.employees = empSnap
		r.runs = runSnap
		r.nextID = nextID
		return err
	}
	return nil
}

type memoryPayrollTx struct {
	repo *memoryPayrollRepo
}

func (t *memoryPayrollTx) InsertEmployee(_ context.Context, in EmployeeInput) (Employee, error) {
	t.repo.nextID++
	emp := Employee{
		ID:                 t.repo.nextID,
		Name:               in.Name,
		LabourCardNo:       in.LabourCardNo,
		IBAN:               in.IBAN,
		BankRoutingCode:    in.BankRoutingCode,
		EmiratesID:         in.EmiratesID,
		BasicSalary:        in.BasicSalary,
		HousingAllowance:   in.HousingAllowance,
		TransportAllowance: in.TransportAllowance,
		OtherAllowances:    in.OtherAllowances,
		IsActive:           true,
	}
	t.repo.employees[emp.ID] = emp
	return emp, nil
}

func (t *memoryPayrollTx) GetEmployee(_ context.Context, id int64) (Employee, error) {
	emp, ok := t.repo.employees[id]
	if !ok {
		return Employee{}, shared.ErrNotFound
	}
	return emp, nil
}

func (t *memoryPayrollTx) ListEmployees(_ context.Context, activeOnly bool) ([]Employee, error) {
	var emps []Employee
	for _, emp := range t.repo.employees {
		if activeOnly && !emp.IsActive {
			continue
		}
		emps = append(emps, emp)
	}
	return emps, nil
}

func (t *memoryPayrollTx) UpdateEmployee(_ context.Context, id int64, in EmployeeInput) (Employee, error) {
	emp, ok := t.repo.employees[id]
	if !ok {
		return Employee{}, shared.ErrNotFound
	}
	emp.Name = in.Name
	emp.LabourCardNo = in.LabourCardNo
	emp.IBAN = in.IBAN
	emp.BankRoutingCode = in.BankRoutingCode
	emp.EmiratesID = in.EmiratesID
	emp.BasicSalary = in.BasicSalary
	emp.HousingAllowance = in.HousingAllowance
	emp.TransportAllowance = in.TransportAllowance
	emp.OtherAllowances = in.OtherAllowances
	t.repo.employees[id] = emp
	return emp, nil
}

func (t *memoryPayrollTx) SetEmployeeActive(_ context.Context, id int64, active bool) error {
	emp, ok := t.repo.employees[id]
	if !ok {
		return shared.ErrNotFound
	}
	emp.IsActive = active
	t.repo.employees[id] = emp
	return nil
}

func (t *memoryPayrollTx) InsertRun(_ context.Context, run PayrollRun) error {
	t.repo.runs[run.ID] = run
	return nil
}

func (t *memoryPayrollTx) GetRun(_ context.Context, id uuid.UUID) (PayrollRun, error) {
	run, ok := t.repo.runs[id]
	if !ok {
		return PayrollRun{}, shared.ErrNotFound
	}
	return run, nil
}

func (t *memoryPayrollTx) ListRuns(_ context.Context) ([]PayrollRun, error) {
	runs := make([]PayrollRun, 0, len(t.repo.runs))
	for _, run := range t.repo.runs {
		runs = append(runs, run)
	}
	return runs, nil
}

func (t *memoryPayrollTx) TransitionRun(_ context.Context, id uuid.UUID, expect, to RunStatus) error {
	run, ok := t.repo.runs[id]
	if !ok {
		return shared.ErrNotFound
	}
	if run.Status != expect {
		return shared.ErrConflict
	}
	run.Status = to
	t.repo.runs[id] = run
	return nil
}

func (t *memoryPayrollTx) SetProcessed(_ context.Context, id uuid.UUID, processedAt time.Time) error {
	run, ok := t.repo.runs[id]
	if !ok {
		return shared.ErrNotFound
	}
	if run.Status != RunStatusApproved {
		return shared.ErrConflict
	}
	run.Status = RunStatusProcessed
	run.ProcessedAt = &processedAt
	t.repo.runs[id] = run
	return nil
}

type fixture struct {
	service   *Service
	repo      *memoryPayrollRepo
	ledger    *ledger.Service
	ledgerIDs map[string]int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	ledgerRepo := ledger.NewMemoryRepository()
	ledgerSvc := ledger.NewService(ledgerRepo, nil)
	ledgerSvc.WithNow(func() time.Time { return now })

	ctx := context.Background()
	ids := make(map[string]int64)
	for _, acc := range []struct {
		code string
		name string
		typ  ledger.AccountType
		sub  ledger.AccountSubType
	}{
		{"5200", "Salary Expense", ledger.AccountTypeExpense, ledger.SubTypeOperatingExpense},
		{"2300", "Payroll Payable", ledger.AccountTypeLiability, ledger.SubTypeCurrentLiability},
		{"2310", "Deductions Payable", ledger.AccountTypeLiability, ledger.SubTypeCurrentLiability},
	} {
		created, err := ledgerSvc.CreateAccount(ctx, ledger.AccountInput{
			Code: acc.code, Name: acc.name, Type: acc.typ, SubType: acc.sub,
		})
		require.NoError(t, err)
		ids[acc.code] = created.ID
	}

	repo := newMemoryPayrollRepo()
	svc := NewService(repo, ledgerSvc, PostingAccounts{
		SalaryExpense:     ids["5200"],
		PayrollPayable:    ids["2300"],
		DeductionsPayable: ids["2310"],
	}, nil)
	svc.WithNow(func() time.Time { return now })

	return &fixture{service: svc, repo: repo, ledger: ledgerSvc, ledgerIDs: ids}
}

func (f *fixture) addEmployee(t *testing.T, in EmployeeInput) Employee {
	t.Helper()
	emp, err := f.service.CreateEmployee(context.Background(), in)
	require.NoError(t, err)
	return emp
}

func scenarioEmployee() EmployeeInput {
	return EmployeeInput{
		Name:               "Amina Khalid",
		LabourCardNo:       "12345678901234",
		IBAN:               "AE070331234567890123456",
		BankRoutingCode:    "103310345",
		EmiratesID:         "784-1990-1234567-1",
		BasicSalary:        money.FromFils(5000000),
		HousingAllowance:   money.FromFils(2000000),
		TransportAllowance: money.FromFils(500000),
	}
}

func (f *fixture) balance(t *testing.T, code string) money.Money {
	t.Helper()
	accounts, err := f.ledger.ListAccounts(context.Background())
	require.NoError(t, err)
	for _, a := range accounts {
		if a.Code == code {
			return a.CurrentBalance
		}
	}
	t.Fatalf("account %s not found", code)
	return 0
}

func TestOvertimeAmount(t *testing.T) {
	// 2400 AED basic: hourly 10 AED, x1.25 = 12.50/h, 10h = 125.00.
	require.Equal(t, money.FromFils(12500), OvertimeAmount(money.FromFils(240000), 10000))
	// 1000 AED basic, 1 hour: 1000/240*1.25 = 5.208333 rounds to 5.21.
	require.Equal(t, money.FromFils(521), OvertimeAmount(money.FromFils(100000), 1000))
	// Half an hour keeps the single terminal rounding.
	require.Equal(t, money.FromFils(260), OvertimeAmount(money.FromFils(100000), 500))
	require.True(t, OvertimeAmount(money.FromFils(100000), 0) == 0)
}

func TestCreateRunComputesNet(t *testing.T) {
	f := newFixture(t)
	emp := f.addEmployee(t, scenarioEmployee())

	run, err := f.service.CreateRun(context.Background(), RunInput{
		Month: 6, Year: 2025,
		Items: []RunItemInput{{EmployeeID: emp.ID, DaysPaid: 30}},
	})
	require.NoError(t, err)
	require.Equal(t, RunStatusDraft, run.Status)
	require.Len(t, run.Items, 1)

	item := run.Items[0]
	require.Equal(t, money.FromFils(7500000), item.NetSalary)
	require.Equal(t, money.FromFils(7500000), item.FixedSalary())
	require.True(t, item.VariableSalary() == 0)
	require.Equal(t, "75000.00", item.FixedSalary().Display())
}

func TestCreateRunAutoComputesOvertime(t *testing.T) {
	f := newFixture(t)
	emp := f.addEmployee(t, EmployeeInput{
		Name:        "Omar Said",
		BasicSalary: money.FromFils(240000),
	})

	run, err := f.service.CreateRun(context.Background(), RunInput{
		Month: 6, Year: 2025,
		Items: []RunItemInput{{EmployeeID: emp.ID, OvertimeHoursMilli: 10000, DaysPaid: 30}},
	})
	require.NoError(t, err)
	require.Equal(t, money.FromFils(12500), run.Items[0].OvertimeAmount)
	require.Equal(t, money.FromFils(252500), run.Items[0].NetSalary)

	// An explicit amount wins over the auto-computation.
	run2, err := f.service.CreateRun(context.Background(), RunInput{
		Month: 7, Year: 2025,
		Items: []RunItemInput{{
			EmployeeID:         emp.ID,
			OvertimeHoursMilli: 10000,
			OvertimeAmount:     money.FromFils(20000),
			DaysPaid:           31,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, money.FromFils(20000), run2.Items[0].OvertimeAmount)
}

func TestCreateRunRejections(t *testing.T) {
	f := newFixture(t)
	emp := f.addEmployee(t, scenarioEmployee())

	_, err := f.service.CreateRun(context.Background(), RunInput{Month: 13, Year: 2025,
		Items: []RunItemInput{{EmployeeID: emp.ID}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.CreateRun(context.Background(), RunInput{Month: 6, Year: 2025,
		Items: []RunItemInput{{EmployeeID: emp.ID}, {EmployeeID: emp.ID}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.CreateRun(context.Background(), RunInput{Month: 6, Year: 2025,
		Items: []RunItemInput{{EmployeeID: 999}}})
	require.ErrorIs(t, err, shared.ErrNotFound)

	// Deductions beyond gross pay are a data error, not a negative pay slip.
	_, err = f.service.CreateRun(context.Background(), RunInput{Month: 6, Year: 2025,
		Items: []RunItemInput{{EmployeeID: emp.ID, Deductions: money.FromFils(9000000)}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, f.service.DeactivateEmployee(context.Background(), emp.ID))
	_, err = f.service.CreateRun(context.Background(), RunInput{Month: 6, Year: 2025,
		Items: []RunItemInput{{EmployeeID: emp.ID}}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRunLifecycleAndPosting(t *testing.T) {
	f := newFixture(t)
	emp := f.addEmployee(t, scenarioEmployee())
	ctx := context.Background()

	run, err := f.service.CreateRun(ctx, RunInput{
		Month: 6, Year: 2025,
		Items: []RunItemInput{{EmployeeID: emp.ID, Deductions: money.FromFils(300000), DaysPaid: 30}},
	})
	require.NoError(t, err)

	// Draft runs cannot be processed.
	_, err = f.service.ProcessRun(ctx, run.ID)
	require.ErrorIs(t, err, shared.ErrValidation)

	approved, err := f.service.ApproveRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusApproved, approved.Status)

	// A second approve races against the already-moved status.
	_, err = f.service.ApproveRun(ctx, run.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	processed, err := f.service.ProcessRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusProcessed, processed.Status)
	require.NotNil(t, processed.ProcessedAt)

	// Gross 75000.00 debited to expense, net 72000.00 and withheld 3000.00 credited.
	require.Equal(t, money.FromFils(7500000), f.balance(t, "5200"))
	require.Equal(t, money.FromFils(7200000), f.balance(t, "2300"))
	require.Equal(t, money.FromFils(300000), f.balance(t, "2310"))

	_, err = f.service.ProcessRun(ctx, run.ID)
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)

	// Balances did not double up.
	require.Equal(t, money.FromFils(7500000), f.balance(t, "5200"))
}

func TestProcessRunPostingFailureLeavesRunApproved(t *testing.T) {
	f := newFixture(t)
	emp := f.addEmployee(t, scenarioEmployee())
	ctx := context.Background()

	run, err := f.service.CreateRun(ctx, RunInput{
		Month: 6, Year: 2025,
		Items: []RunItemInput{{EmployeeID: emp.ID, DaysPaid: 30}},
	})
	require.NoError(t, err)
	_, err = f.service.ApproveRun(ctx, run.ID)
	require.NoError(t, err)

	// Break the posting target: an inactive expense account fails the entry.
	require.NoError(t, f.ledger.DeactivateAccount(ctx, f.ledgerIDs["5200"]))

	_, err = f.service.ProcessRun(ctx, run.ID)
	require.ErrorIs(t, err, shared.ErrInactiveAccount)

	// The run is still APPROVED, nothing was posted, and the retry hits the
	// same posting error rather than ErrAlreadyProcessed.
	current, err := f.service.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusApproved, current.Status)
	require.Nil(t, current.ProcessedAt)
	require.True(t, f.balance(t, "2300") == 0)

	_, err = f.service.ProcessRun(ctx, run.ID)
	require.ErrorIs(t, err, shared.ErrInactiveAccount)
	require.NotErrorIs(t, err, shared.ErrAlreadyProcessed)
}

func TestProcessRunCompletesStrandedPosting(t *testing.T) {
	f := newFixture(t)
	emp := f.addEmployee(t, scenarioEmployee())
	ctx := context.Background()

	run, err := f.service.CreateRun(ctx, RunInput{
		Month: 6, Year: 2025,
		Items: []RunItemInput{{EmployeeID: emp.ID, DaysPaid: 30}},
	})
	require.NoError(t, err)
	_, err = f.service.ApproveRun(ctx, run.ID)
	require.NoError(t, err)

	// Simulate a prior attempt that posted the entry but crashed before the
	// status transition committed.
	_, err = f.ledger.PostEntry(ctx, ledger.PostingInput{
		Date:        time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
		Description: "Payroll 2025-06",
		Source:      ledger.Source{Kind: ledger.SourcePayroll, Ref: run.ID},
		Lines: []ledger.PostingLine{
			{AccountID: f.ledgerIDs["5200"], Debit: money.FromFils(7500000)},
			{AccountID: f.ledgerIDs["2300"], Credit: money.FromFils(7500000)},
		},
	})
	require.NoError(t, err)

	// The retry finishes the transition instead of refusing on the
	// source-link conflict, and balances do not double up.
	processed, err := f.service.ProcessRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusProcessed, processed.Status)
	require.Equal(t, money.FromFils(7500000), f.balance(t, "5200"))
	require.Equal(t, money.FromFils(7500000), f.balance(t, "2300"))

	_, err = f.service.ProcessRun(ctx, run.ID)
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)
}

func TestProcessRunWithoutDeductionsPostsTwoLines(t *testing.T) {
	f := newFixture(t)
	emp := f.addEmployee(t, scenarioEmployee())
	ctx := context.Background()

	run, err := f.service.CreateRun(ctx, RunInput{
		Month: 6, Year: 2025,
		Items: []RunItemInput{{EmployeeID: emp.ID, DaysPaid: 30}},
	})
	require.NoError(t, err)
	_, err = f.service.ApproveRun(ctx, run.ID)
	require.NoError(t, err)
	_, err = f.service.ProcessRun(ctx, run.ID)
	require.NoError(t, err)

	require.Equal(t, money.FromFils(7500000), f.balance(t, "5200"))
	require.Equal(t, money.FromFils(7500000), f.balance(t, "2300"))
	require.True(t, f.balance(t, "2310") == 0)
}
