package statements

import (
	"sort"

	"github.com/mizan-books/mizan/internal/ledger"
	"github.com/mizan-books/mizan/internal/money"
)

// AccountActivity is one account's posted debit/credit activity over the
// statement date range.
type AccountActivity struct {
	Code    string
	Name    string
	Type    ledger.AccountType
	SubType ledger.AccountSubType
	Debit   money.Money
	Credit  money.Money
}

// ProfitAndLossRow is one revenue, COGS, or expense line.
type ProfitAndLossRow struct {
	Code   string
	Name   string
	Amount money.Money
}

// ProfitAndLossSection groups rows by nature.
type ProfitAndLossSection struct {
	Label string
	Rows  []ProfitAndLossRow
	Total money.Money
}

// ProfitAndLoss is the date-range statement:
// grossProfit = revenue - cogs; netProfit = grossProfit - expenses + otherIncome.
type ProfitAndLoss struct {
	Revenue     ProfitAndLossSection
	CostOfSales ProfitAndLossSection
	Expenses    ProfitAndLossSection
	OtherIncome ProfitAndLossSection
	GrossProfit money.Money
	NetProfit   money.Money
}

// BuildProfitAndLoss aggregates period activity into the P&L sections.
func BuildProfitAndLoss(activity []AccountActivity) ProfitAndLoss {
	pl := ProfitAndLoss{
		Revenue:     ProfitAndLossSection{Label: "Revenue"},
		CostOfSales: ProfitAndLossSection{Label: "Cost of Sales"},
		Expenses:    ProfitAndLossSection{Label: "Expenses"},
		OtherIncome: ProfitAndLossSection{Label: "Other Income"},
	}
	for _, acc := range activity {
		switch acc.Type {
		case ledger.AccountTypeRevenue:
			amount := acc.Credit.Sub(acc.Debit)
			if amount == 0 {
				continue
			}
			row := ProfitAndLossRow{Code: acc.Code, Name: acc.Name, Amount: amount}
			if acc.SubType == ledger.SubTypeOtherIncome {
				appendPL(&pl.OtherIncome, row)
			} else {
				appendPL(&pl.Revenue, row)
			}
		case ledger.AccountTypeCOGS:
			amount := acc.Debit.Sub(acc.Credit)
			if amount == 0 {
				continue
			}
			appendPL(&pl.CostOfSales, ProfitAndLossRow{Code: acc.Code, Name: acc.Name, Amount: amount})
		case ledger.AccountTypeExpense:
			amount := acc.Debit.Sub(acc.Credit)
			if amount == 0 {
				continue
			}
			appendPL(&pl.Expenses, ProfitAndLossRow{Code: acc.Code, Name: acc.Name, Amount: amount})
		}
	}
	for _, section := range []*ProfitAndLossSection{&pl.Revenue, &pl.CostOfSales, &pl.Expenses, &pl.OtherIncome} {
		sort.Slice(section.Rows, func(i, j int) bool { return section.Rows[i].Code < section.Rows[j].Code })
	}
	pl.GrossProfit = pl.Revenue.Total.Sub(pl.CostOfSales.Total)
	pl.NetProfit = pl.GrossProfit.Sub(pl.Expenses.Total).Add(pl.OtherIncome.Total)
	return pl
}

func appendPL(section *ProfitAndLossSection, row ProfitAndLossRow) {
	section.Rows = append(section.Rows, row)
	section.Total = section.Total.Add(row.Amount)
}
