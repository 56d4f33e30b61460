package statements

import (
	"context"
	"time"

	"github.com/mizan-books/mizan/internal/ledger"
	"github.com/mizan-books/mizan/internal/money"
)

// Service derives statements from the ledger. Each derivation reads the
// account list and the posted-line aggregate inside one repository
// transaction, which is the consistent snapshot the builders need.
type Service struct {
	repo ledger.RepositoryPort
}

// NewService constructs the statements service.
func NewService(repo ledger.RepositoryPort) *Service {
	return &Service{repo: repo}
}

// snapshot loads accounts plus their posted activity up to asOf and derives
// the as-of balance: opening + signed fold of posted lines.
func (s *Service) snapshot(ctx context.Context, asOf time.Time) ([]AccountBalance, error) {
	var balances []AccountBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		accounts, err := tx.ListAccounts(ctx)
		if err != nil {
			return err
		}
		totals, err := tx.SumPostedLines(ctx, time.Time{}, asOf)
		if err != nil {
			return err
		}
		for _, acc := range accounts {
			agg := totals[acc.ID]
			delta := acc.NormalBalance().Delta(money.FromFils(agg.Debit), money.FromFils(agg.Credit))
			balances = append(balances, AccountBalance{
				Code:    acc.Code,
				Name:    acc.Name,
				Type:    acc.Type,
				SubType: acc.SubType,
				Balance: acc.OpeningBalance.Add(delta),
			})
		}
		return nil
	})
	return balances, err
}

// TrialBalance derives the trial balance as of a date.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	balances, err := s.snapshot(ctx, asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(balances), nil
}

// BalanceSheet derives the balance sheet as of a date. Only posted entries
// contribute; drafts never reach the journal in the first place.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	balances, err := s.snapshot(ctx, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	return BuildBalanceSheet(balances), nil
}

// ProfitAndLoss derives the P&L over [from, to].
func (s *Service) ProfitAndLoss(ctx context.Context, from, to time.Time) (ProfitAndLoss, error) {
	var activity []AccountActivity
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		accounts, err := tx.ListAccounts(ctx)
		if err != nil {
			return err
		}
		totals, err := tx.SumPostedLines(ctx, from, to)
		if err != nil {
			return err
		}
		for _, acc := range accounts {
			agg := totals[acc.ID]
			activity = append(activity, AccountActivity{
				Code:    acc.Code,
				Name:    acc.Name,
				Type:    acc.Type,
				SubType: acc.SubType,
				Debit:   money.FromFils(agg.Debit),
				Credit:  money.FromFils(agg.Credit),
			})
		}
		return nil
	})
	if err != nil {
		return ProfitAndLoss{}, err
	}
	return BuildProfitAndLoss(activity), nil
}
