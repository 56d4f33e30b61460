// Package ledger implements the chart of accounts and double-entry journal.
// Posted journal lines are the authoritative record; account balances are a
// fold over them maintained behind the repository transaction.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/shared"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
	AccountTypeCOGS      AccountType = "COGS"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity,
		AccountTypeRevenue, AccountTypeExpense, AccountTypeCOGS:
		return true
	}
	return false
}

// NormalBalance is the side on which an account type naturally increases.
type NormalBalance string

const (
	DebitNormal  NormalBalance = "DEBIT"
	CreditNormal NormalBalance = "CREDIT"
)

// NormalBalanceOf derives the normal balance from the account type:
// debit for assets, expenses, and COGS; credit for the rest.
func NormalBalanceOf(t AccountType) NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense, AccountTypeCOGS:
		return DebitNormal
	default:
		return CreditNormal
	}
}

// Delta converts a line's debit/credit pair into the signed balance change
// for an account with this normal balance.
func (n NormalBalance) Delta(debit, credit money.Money) money.Money {
	if n == DebitNormal {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// AccountSubType refines the statement classification of an account.
type AccountSubType string

const (
	SubTypeCurrentAsset      AccountSubType = "CURRENT_ASSET"
	SubTypeFixedAsset        AccountSubType = "FIXED_ASSET"
	SubTypeCurrentLiability  AccountSubType = "CURRENT_LIABILITY"
	SubTypeLongTermLiability AccountSubType = "LONG_TERM_LIABILITY"
	SubTypeEquity            AccountSubType = "EQUITY"
	SubTypeOperatingRevenue  AccountSubType = "OPERATING_REVENUE"
	SubTypeOtherIncome       AccountSubType = "OTHER_INCOME"
	SubTypeOperatingExpense  AccountSubType = "OPERATING_EXPENSE"
	SubTypeCostOfSales       AccountSubType = "COST_OF_SALES"
)

// Account models a chart of accounts node. CurrentBalance changes only via
// posted journal lines.
type Account struct {
	ID             int64
	Code           string
	Name           string
	Type           AccountType
	SubType        AccountSubType
	ParentID       *int64
	OpeningBalance money.Money
	CurrentBalance money.Money
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalBalance returns the side on which this account increases.
func (a Account) NormalBalance() NormalBalance {
	return NormalBalanceOf(a.Type)
}

// AccountInput carries fields for account creation.
type AccountInput struct {
	Code           string
	Name           string
	Type           AccountType
	SubType        AccountSubType
	ParentID       *int64
	OpeningBalance money.Money
}

// Validate checks structural account rules.
func (in AccountInput) Validate() error {
	if in.Code == "" {
		return shared.Invalidf("ledger: account code required")
	}
	if in.Name == "" {
		return shared.Invalidf("ledger: account name required")
	}
	if !in.Type.Valid() {
		return shared.Invalidf("ledger: unknown account type %q", in.Type)
	}
	return nil
}

// SourceKind is the closed set of origins a journal entry can have.
type SourceKind string

const (
	SourceInvoice  SourceKind = "INVOICE"
	SourceBill     SourceKind = "BILL"
	SourcePayroll  SourceKind = "PAYROLL"
	SourceManual   SourceKind = "MANUAL"
	SourceReversal SourceKind = "REVERSAL"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceInvoice, SourceBill, SourcePayroll, SourceManual, SourceReversal:
		return true
	}
	return false
}

// Source ties a journal entry back to the document that produced it.
type Source struct {
	Kind SourceKind
	Ref  uuid.UUID
}

// JournalStatus enumerates entry lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft    JournalStatus = "DRAFT"
	JournalStatusPosted   JournalStatus = "POSTED"
	JournalStatusReversed JournalStatus = "REVERSED"
)

// JournalEntry captures posting metadata. Once posted it is immutable;
// corrections happen through reversal entries only.
type JournalEntry struct {
	ID          int64
	Date        time.Time
	Description string
	Source      Source
	Status      JournalStatus
	PostedAt    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []JournalLine
}

// JournalLine stores the debit or credit amount for one account.
type JournalLine struct {
	ID          int64
	JournalID   int64
	AccountID   int64
	Debit       money.Money
	Credit      money.Money
	Description string
	ContactID   *int64
}

// PostingLine describes one journal line of a posting request.
type PostingLine struct {
	AccountID   int64
	Debit       money.Money
	Credit      money.Money
	Description string
	ContactID   *int64
}

// PostingInput groups fields required to post a journal entry.
type PostingInput struct {
	Date        time.Time
	Description string
	Source      Source
	Lines       []PostingLine
}

// Validate enforces the double-entry invariant before anything touches
// storage: at least two lines, one nonzero side per line, equal totals.
func (in PostingInput) Validate() error {
	if !in.Source.Kind.Valid() {
		return shared.Invalidf("ledger: unknown source kind %q", in.Source.Kind)
	}
	if in.Source.Ref == uuid.Nil {
		return shared.Invalidf("ledger: source ref required")
	}
	if len(in.Lines) < 2 {
		return shared.Invalidf("ledger: journal requires at least two lines")
	}
	var debit, credit money.Money
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return shared.Invalidf("ledger: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return shared.Invalidf("ledger: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return shared.Invalidf("ledger: line %d cannot be both debit and credit", idx)
		}
		if line.Debit == 0 && line.Credit == 0 {
			return shared.Invalidf("ledger: line %d has no amount", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if debit != credit {
		return fmt.Errorf("ledger: debits %s != credits %s: %w", debit, credit, shared.ErrUnbalancedEntry)
	}
	if debit == 0 {
		return fmt.Errorf("ledger: entry totals must be positive: %w", shared.ErrUnbalancedEntry)
	}
	return nil
}

// ReverseInput wraps parameters for reversing a posted entry.
type ReverseInput struct {
	EntryID     int64
	Description string
	Date        time.Time
}
