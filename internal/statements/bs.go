package statements

import (
	"sort"

	"github.com/mizan-books/mizan/internal/ledger"
	"github.com/mizan-books/mizan/internal/money"
)

// BalanceSheetRow summarises one account inside a section.
type BalanceSheetRow struct {
	Code    string
	Name    string
	Balance money.Money
}

// BalanceSheetSection groups accounts of one classification.
type BalanceSheetSection struct {
	Label string
	Rows  []BalanceSheetRow
	Total money.Money
}

// BalanceSheet is the structured as-of statement. Assets split into current
// and fixed by subtype, liabilities into current and long-term; the period's
// net result appears inside equity so the sheet ties.
type BalanceSheet struct {
	CurrentAssets             BalanceSheetSection
	FixedAssets               BalanceSheetSection
	CurrentLiabilities        BalanceSheetSection
	LongTermLiabilities       BalanceSheetSection
	Equity                    BalanceSheetSection
	AssetsTotal               money.Money
	LiabilitiesTotal          money.Money
	EquityTotal               money.Money
	TotalLiabilitiesAndEquity money.Money
}

// IsBalanced reports the accounting equation: assets = liabilities + equity.
func (bs BalanceSheet) IsBalanced() bool {
	return bs.AssetsTotal == bs.TotalLiabilitiesAndEquity
}

// BuildBalanceSheet partitions balances into the statement sections. Revenue,
// COGS, and expense balances fold into a single "Current Period Earnings"
// equity row, which is what makes the sheet tie without a closing entry.
func BuildBalanceSheet(accounts []AccountBalance) BalanceSheet {
	bs := BalanceSheet{
		CurrentAssets:       BalanceSheetSection{Label: "Current Assets"},
		FixedAssets:         BalanceSheetSection{Label: "Fixed Assets"},
		CurrentLiabilities:  BalanceSheetSection{Label: "Current Liabilities"},
		LongTermLiabilities: BalanceSheetSection{Label: "Long-Term Liabilities"},
		Equity:              BalanceSheetSection{Label: "Equity"},
	}
	var earnings money.Money

	for _, acc := range accounts {
		row := BalanceSheetRow{Code: acc.Code, Name: acc.Name, Balance: acc.Balance}
		switch acc.Type {
		case ledger.AccountTypeAsset:
			if acc.SubType == ledger.SubTypeFixedAsset {
				appendRow(&bs.FixedAssets, row)
			} else {
				appendRow(&bs.CurrentAssets, row)
			}
		case ledger.AccountTypeLiability:
			if acc.SubType == ledger.SubTypeLongTermLiability {
				appendRow(&bs.LongTermLiabilities, row)
			} else {
				appendRow(&bs.CurrentLiabilities, row)
			}
		case ledger.AccountTypeEquity:
			appendRow(&bs.Equity, row)
		case ledger.AccountTypeRevenue:
			earnings = earnings.Add(acc.Balance)
		case ledger.AccountTypeExpense, ledger.AccountTypeCOGS:
			earnings = earnings.Sub(acc.Balance)
		}
	}

	if earnings != 0 {
		appendRow(&bs.Equity, BalanceSheetRow{Code: "3999", Name: "Current Period Earnings", Balance: earnings})
	}

	for _, section := range []*BalanceSheetSection{
		&bs.CurrentAssets, &bs.FixedAssets, &bs.CurrentLiabilities, &bs.LongTermLiabilities, &bs.Equity,
	} {
		sort.Slice(section.Rows, func(i, j int) bool { return section.Rows[i].Code < section.Rows[j].Code })
	}

	bs.AssetsTotal = bs.CurrentAssets.Total.Add(bs.FixedAssets.Total)
	bs.LiabilitiesTotal = bs.CurrentLiabilities.Total.Add(bs.LongTermLiabilities.Total)
	bs.EquityTotal = bs.Equity.Total
	bs.TotalLiabilitiesAndEquity = bs.LiabilitiesTotal.Add(bs.EquityTotal)
	return bs
}

func appendRow(section *BalanceSheetSection, row BalanceSheetRow) {
	section.Rows = append(section.Rows, row)
	section.Total = section.Total.Add(row.Balance)
}
