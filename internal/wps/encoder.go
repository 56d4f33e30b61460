// Package wps encodes UAE Wages Protection System SIF bank files from
// processed payroll runs. Encoding is pure: callers supply the run and the
// employee records, the encoder returns the file and an eligibility report.
package wps

import (
	"fmt"
	"strings"
	"time"

	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/payroll"
	"github.com/mizan-books/mizan/internal/shared"
)

// Employer identifies the paying company on the HDR record.
type Employer struct {
	Name string
	TRN  string
}

// Validate checks the employer fields a SIF file cannot do without.
func (e Employer) Validate() error {
	if e.Name == "" {
		return shared.Invalidf("wps: employer name required")
	}
	if e.TRN == "" {
		return shared.Invalidf("wps: employer TRN required")
	}
	return nil
}

// Ineligibility reports why one employee was excluded from the file.
type Ineligibility struct {
	EmployeeID int64
	Name       string
	Reasons    []string
}

// File is one encoded SIF export. Content is the full file body; ineligible
// employees are reported as data, never as an encoding failure.
type File struct {
	Name        string
	Content     string
	RecordCount int
	TotalNet    money.Money
	Ineligible  []Ineligibility
}

// eligibilityReasons lists the missing bank/identity fields, in the order
// the file format cares about them.
func eligibilityReasons(emp payroll.Employee) []string {
	var reasons []string
	if emp.LabourCardNo == "" {
		reasons = append(reasons, "Missing labour card number")
	}
	if emp.IBAN == "" {
		reasons = append(reasons, "Missing IBAN")
	}
	if emp.BankRoutingCode == "" {
		reasons = append(reasons, "Missing bank routing code")
	}
	if emp.EmiratesID == "" {
		reasons = append(reasons, "Missing Emirates ID")
	}
	return reasons
}

// digitsOnly strips everything but ASCII digits.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeIBAN upper-cases and strips all whitespace.
func normalizeIBAN(iban string) string {
	return strings.ToUpper(strings.Join(strings.Fields(iban), ""))
}

// employerName strips commas (the field delimiter) and truncates to 50 chars.
func employerName(name string) string {
	name = strings.ReplaceAll(name, ",", "")
	if len(name) > 50 {
		name = name[:50]
	}
	return name
}

// Filename derives the export file name from the employer and run period.
func Filename(employerName string, year, month int) string {
	return fmt.Sprintf("WPS_%s_%04d%02d.sif", strings.ReplaceAll(employerName, " ", "_"), year, month)
}

// periodBounds returns the first and last day of the run month.
func periodBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start, end
}

const dateLayout = "02012006" // DDMMYYYY

// Encode builds the SIF file for a processed run. Employees missing any of
// the four bank/identity fields are skipped and reported; the file still
// encodes when at least one employee is eligible, and a run with no eligible
// employees is a validation error rather than an empty file. All amounts
// render as 2-decimal AED strings, fields are comma-delimited, records
// newline-separated.
func Encode(employer Employer, run payroll.PayrollRun, employees []payroll.Employee) (File, error) {
	if err := employer.Validate(); err != nil {
		return File{}, err
	}
	if run.Status != payroll.RunStatusProcessed {
		return File{}, shared.Invalidf("wps: run %s is %s, only processed runs export", run.ID, run.Status)
	}

	byID := make(map[int64]payroll.Employee, len(employees))
	for _, emp := range employees {
		byID[emp.ID] = emp
	}

	start, end := periodBounds(run.Year, run.Month)
	startStr, endStr := start.Format(dateLayout), end.Format(dateLayout)

	file := File{Name: Filename(employer.Name, run.Year, run.Month)}
	var edrLines []string
	var totalFixed, totalVariable money.Money

	for _, item := range run.Items {
		emp, ok := byID[item.EmployeeID]
		if !ok {
			return File{}, shared.Invalidf("wps: run references unknown employee %d", item.EmployeeID)
		}
		if reasons := eligibilityReasons(emp); len(reasons) > 0 {
			file.Ineligible = append(file.Ineligible, Ineligibility{
				EmployeeID: emp.ID,
				Name:       emp.Name,
				Reasons:    reasons,
			})
			continue
		}
		fixed := item.FixedSalary()
		variable := item.VariableSalary()
		edrLines = append(edrLines, strings.Join([]string{
			"EDR",
			digitsOnly(emp.LabourCardNo),
			digitsOnly(emp.BankRoutingCode),
			normalizeIBAN(emp.IBAN),
			startStr,
			endStr,
			fmt.Sprintf("%d", item.DaysPaid),
			fixed.Display(),
			variable.Display(),
			fmt.Sprintf("%d", item.Leave),
		}, ","))
		totalFixed = totalFixed.Add(fixed)
		totalVariable = totalVariable.Add(variable)
		file.RecordCount++
		file.TotalNet = file.TotalNet.Add(item.NetSalary)
	}

	if file.RecordCount == 0 {
		return File{}, shared.Invalidf("wps: run %s has no eligible employees (%d excluded)",
			run.ID, len(file.Ineligible))
	}

	hdr := strings.Join([]string{
		"HDR",
		employer.TRN,
		employerName(employer.Name),
		startStr,
		endStr,
		fmt.Sprintf("%d", file.RecordCount),
		file.TotalNet.Display(),
		"AED",
	}, ",")
	scr := strings.Join([]string{
		"SCR",
		fmt.Sprintf("%d", file.RecordCount),
		totalFixed.Display(),
		totalVariable.Display(),
		file.TotalNet.Display(),
	}, ",")

	lines := make([]string, 0, len(edrLines)+2)
	lines = append(lines, hdr)
	lines = append(lines, edrLines...)
	lines = append(lines, scr)
	file.Content = strings.Join(lines, "\n") + "\n"
	return file, nil
}
