// Package statements derives financial statements from posted ledger data.
// Builders are pure: they take account balance rows and aggregate, so the
// caller controls the snapshot and no locking happens here.
package statements

import (
	"sort"

	"github.com/mizan-books/mizan/internal/ledger"
	"github.com/mizan-books/mizan/internal/money"
)

// AccountBalance is one chart of accounts row with its balance as of the
// statement date, signed by the account's normal balance.
type AccountBalance struct {
	Code    string
	Name    string
	Type    ledger.AccountType
	SubType ledger.AccountSubType
	Balance money.Money
}

// TrialBalanceRow places an account balance on its normal side. A negative
// balance flips to the opposite side rather than rendering a negative.
type TrialBalanceRow struct {
	Code   string
	Name   string
	Type   ledger.AccountType
	Debit  money.Money
	Credit money.Money
}

// TrialBalance lists all accounts with nonzero balances and the side totals.
type TrialBalance struct {
	Rows        []TrialBalanceRow
	TotalDebit  money.Money
	TotalCredit money.Money
}

// IsBalanced reports whether debits equal credits across all rows.
func (tb TrialBalance) IsBalanced() bool {
	return tb.TotalDebit == tb.TotalCredit
}

// BuildTrialBalance converts balances into trial balance rows ordered by code.
func BuildTrialBalance(accounts []AccountBalance) TrialBalance {
	tb := TrialBalance{}
	for _, acc := range accounts {
		if acc.Balance == 0 {
			continue
		}
		row := TrialBalanceRow{Code: acc.Code, Name: acc.Name, Type: acc.Type}
		side := ledger.NormalBalanceOf(acc.Type)
		amount := acc.Balance
		if amount.IsNegative() {
			amount = amount.Abs()
			if side == ledger.DebitNormal {
				side = ledger.CreditNormal
			} else {
				side = ledger.DebitNormal
			}
		}
		if side == ledger.DebitNormal {
			row.Debit = amount
		} else {
			row.Credit = amount
		}
		tb.Rows = append(tb.Rows, row)
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
	}
	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].Code < tb.Rows[j].Code })
	return tb
}
