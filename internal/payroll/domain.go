// Package payroll computes monthly pay runs and posts their aggregate
// journal entry. Bank and identity fields on employees feed WPS eligibility
// only; pay computation never depends on them.
package payroll

import (
	"time"

	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/shared"
)

// Employee is one payee. Fixed salary components live here; per-month
// variable components arrive on the run input.
type Employee struct {
	ID                 int64
	Name               string
	LabourCardNo       string
	IBAN               string
	BankRoutingCode    string
	EmiratesID         string
	BasicSalary        money.Money
	HousingAllowance   money.Money
	TransportAllowance money.Money
	OtherAllowances    money.Money
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EmployeeInput carries fields for employee creation and update.
type EmployeeInput struct {
	Name               string
	LabourCardNo       string
	IBAN               string
	BankRoutingCode    string
	EmiratesID         string
	BasicSalary        money.Money
	HousingAllowance   money.Money
	TransportAllowance money.Money
	OtherAllowances    money.Money
}

// Validate checks structural employee rules. Bank/identity fields may be
// blank; a blank field only costs the employee WPS eligibility later.
func (in EmployeeInput) Validate() error {
	if in.Name == "" {
		return shared.Invalidf("payroll: employee name required")
	}
	if in.BasicSalary.IsNegative() || in.HousingAllowance.IsNegative() ||
		in.TransportAllowance.IsNegative() || in.OtherAllowances.IsNegative() {
		return shared.Invalidf("payroll: salary components cannot be negative")
	}
	return nil
}

// RunStatus enumerates the pay run lifecycle. Processed is terminal.
type RunStatus string

const (
	RunStatusDraft     RunStatus = "DRAFT"
	RunStatusApproved  RunStatus = "APPROVED"
	RunStatusProcessed RunStatus = "PROCESSED"
)

// LeaveFlag is the WPS leave indicator for a pay period.
type LeaveFlag int

const (
	LeaveNone   LeaveFlag = 0
	LeavePaid   LeaveFlag = 1
	LeaveUnpaid LeaveFlag = 2
)

// Valid reports whether f is a known leave indicator.
func (f LeaveFlag) Valid() bool {
	return f == LeaveNone || f == LeavePaid || f == LeaveUnpaid
}

// PayrollItem is one employee's computed pay for a run. NetSalary is always
// derived, never stored from input.
type PayrollItem struct {
	EmployeeID         int64
	BasicSalary        money.Money
	HousingAllowance   money.Money
	TransportAllowance money.Money
	OtherAllowances    money.Money
	OvertimeHoursMilli int64
	OvertimeAmount     money.Money
	LeaveSalary        money.Money
	Deductions         money.Money
	NetSalary          money.Money
	DaysPaid           int
	Leave              LeaveFlag
}

// Gross is the pre-deduction total.
func (i PayrollItem) Gross() money.Money {
	return i.FixedSalary().Add(i.OvertimeAmount).Add(i.LeaveSalary)
}

// FixedSalary sums the fixed components, the WPS EDR fixed figure.
func (i PayrollItem) FixedSalary() money.Money {
	return i.BasicSalary.Add(i.HousingAllowance).Add(i.TransportAllowance).Add(i.OtherAllowances)
}

// VariableSalary is overtime plus leave salary minus deductions, the WPS
// EDR variable figure.
func (i PayrollItem) VariableSalary() money.Money {
	return i.OvertimeAmount.Add(i.LeaveSalary).Sub(i.Deductions)
}

// computeNet derives NetSalary from the components.
func (i *PayrollItem) computeNet() {
	i.NetSalary = i.Gross().Sub(i.Deductions)
}

// OvertimeAmount computes overtime pay from basic salary and hours worked:
// hourly rate basic/240 (30 days x 8 hours) times 1.25, rounded to the fil
// once after the full multiply. Hours arrive in thousandths.
func OvertimeAmount(basic money.Money, hoursMilli int64) money.Money {
	if hoursMilli <= 0 {
		return 0
	}
	return basic.MulRatio(hoursMilli*125, 240*1000*100)
}

// PayrollRun is one month's pay computation.
type PayrollRun struct {
	ID          uuid.UUID
	Month       int
	Year        int
	Status      RunStatus
	Items       []PayrollItem
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// TotalNet sums net salaries across items.
func (r PayrollRun) TotalNet() money.Money {
	var total money.Money
	for _, item := range r.Items {
		total = total.Add(item.NetSalary)
	}
	return total
}

// TotalGross sums gross pay across items.
func (r PayrollRun) TotalGross() money.Money {
	var total money.Money
	for _, item := range r.Items {
		total = total.Add(item.Gross())
	}
	return total
}

// TotalDeductions sums withheld amounts across items.
func (r PayrollRun) TotalDeductions() money.Money {
	var total money.Money
	for _, item := range r.Items {
		total = total.Add(item.Deductions)
	}
	return total
}

// RunItemInput carries one employee's variable components for a run.
type RunItemInput struct {
	EmployeeID         int64
	OvertimeHoursMilli int64
	OvertimeAmount     money.Money // zero means auto-compute from hours
	LeaveSalary        money.Money
	Deductions         money.Money
	DaysPaid           int
	Leave              LeaveFlag
}

// RunInput carries fields for run creation.
type RunInput struct {
	Month int
	Year  int
	Items []RunItemInput
}

// Validate checks structural run rules.
func (in RunInput) Validate() error {
	if in.Month < 1 || in.Month > 12 {
		return shared.Invalidf("payroll: month %d out of range", in.Month)
	}
	if in.Year < 2000 || in.Year > 2200 {
		return shared.Invalidf("payroll: year %d out of range", in.Year)
	}
	if len(in.Items) == 0 {
		return shared.Invalidf("payroll: at least one run item required")
	}
	seen := make(map[int64]bool, len(in.Items))
	for _, item := range in.Items {
		if item.EmployeeID == 0 {
			return shared.Invalidf("payroll: run item missing employee")
		}
		if seen[item.EmployeeID] {
			return shared.Invalidf("payroll: employee %d appears twice in run", item.EmployeeID)
		}
		seen[item.EmployeeID] = true
		if item.OvertimeHoursMilli < 0 {
			return shared.Invalidf("payroll: overtime hours cannot be negative")
		}
		if item.OvertimeAmount.IsNegative() || item.LeaveSalary.IsNegative() || item.Deductions.IsNegative() {
			return shared.Invalidf("payroll: pay components cannot be negative")
		}
		if item.DaysPaid < 0 || item.DaysPaid > 31 {
			return shared.Invalidf("payroll: days paid %d out of range", item.DaysPaid)
		}
		if !item.Leave.Valid() {
			return shared.Invalidf("payroll: unknown leave indicator %d", item.Leave)
		}
	}
	return nil
}
