package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mizan-books/mizan/internal/shared"
)

// Service coordinates account management and journal posting.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditPort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit shared.AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateAccount registers a chart of accounts node. A parent must carry the
// same type as the child.
func (s *Service) CreateAccount(ctx context.Context, input AccountInput) (Account, error) {
	if err := input.Validate(); err != nil {
		return Account{}, err
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.ParentID != nil {
			parent, err := tx.GetAccount(ctx, *input.ParentID)
			if err != nil {
				return fmt.Errorf("ledger: parent account %d: %w", *input.ParentID, err)
			}
			if parent.Type != input.Type {
				return shared.Invalidf("ledger: parent %s is %s, child cannot be %s",
					parent.Code, parent.Type, input.Type)
			}
		}
		inserted, err := tx.InsertAccount(ctx, input)
		if err != nil {
			return err
		}
		account = inserted
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// GetChildren lists the direct children of an account.
func (s *Service) GetChildren(ctx context.Context, parentID int64) ([]Account, error) {
	var children []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		children, err = tx.ListChildren(ctx, parentID)
		return err
	})
	return children, err
}

// GetAccountByCode looks an account up by its chart code.
func (s *Service) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccountByCode(ctx, code)
		return err
	})
	return account, err
}

// ListAccounts retrieves the full chart of accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx)
		return err
	})
	return accounts, err
}

// DeactivateAccount soft-disables an account. Future postings referencing it
// fail; history is untouched.
func (s *Service) DeactivateAccount(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, id); err != nil {
			return err
		}
		return tx.SetAccountActive(ctx, id, false)
	})
}

// DeleteAccount removes an account that has never accumulated a balance and
// has no children; anything else can only be deactivated.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if account.CurrentBalance != 0 {
			return shared.Invalidf("ledger: account %s holds balance %s, deactivate instead",
				account.Code, account.CurrentBalance)
		}
		children, err := tx.ListChildren(ctx, id)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return shared.Invalidf("ledger: account %s has %d child accounts, deactivate instead",
				account.Code, len(children))
		}
		return tx.DeleteAccount(ctx, id)
	})
}

// PostEntry validates the double-entry invariant, folds every line into its
// account balance using the normal-balance sign convention, and marks the
// entry posted — all inside one transaction.
func (s *Service) PostEntry(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range input.Lines {
			account, err := tx.GetAccount(ctx, line.AccountID)
			if err != nil {
				return fmt.Errorf("ledger: account %d: %w", line.AccountID, err)
			}
			if !account.IsActive {
				return fmt.Errorf("ledger: account %s (%s): %w",
					account.Code, account.Name, shared.ErrInactiveAccount)
			}
			delta := account.NormalBalance().Delta(line.Debit, line.Credit)
			if err := tx.ApplyBalanceDelta(ctx, account.ID, delta.Fils()); err != nil {
				return err
			}
		}
		inserted, err := tx.InsertJournalEntry(ctx, input)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, input.Source, inserted.ID); err != nil {
			return err
		}
		inserted.Lines = toJournalLines(inserted.ID, input.Lines)
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, "journal.post", entry.ID, map[string]any{
		"source_kind": string(input.Source.Kind),
		"source_ref":  input.Source.Ref.String(),
	})
	return entry, nil
}

// ReverseEntry creates a mirrored entry with every line's sides swapped,
// dated at reversal time. The original entry is never mutated beyond its
// status flag; the audit trail keeps both.
func (s *Service) ReverseEntry(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, shared.Invalidf("ledger: entry id required")
	}
	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetJournalWithLines(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if original.Status != JournalStatusPosted {
			return fmt.Errorf("ledger: entry %d is %s, only posted entries reverse: %w",
				original.ID, original.Status, shared.ErrConflict)
		}
		posting := PostingInput{
			Date:        date,
			Description: reversalDescription(input.Description, original.ID),
			Source:      Source{Kind: SourceReversal, Ref: uuid.New()},
			Lines:       swapSides(original.Lines),
		}
		for _, line := range posting.Lines {
			account, err := tx.GetAccount(ctx, line.AccountID)
			if err != nil {
				return err
			}
			delta := account.NormalBalance().Delta(line.Debit, line.Credit)
			if err := tx.ApplyBalanceDelta(ctx, account.ID, delta.Fils()); err != nil {
				return err
			}
		}
		inserted, err := tx.InsertJournalEntry(ctx, posting)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, inserted.ID, posting.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, posting.Source, inserted.ID); err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, original.ID); err != nil {
			return err
		}
		inserted.Lines = toJournalLines(inserted.ID, posting.Lines)
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, "journal.reverse", input.EntryID, map[string]any{
		"reversal_id": reversal.ID,
	})
	return reversal, nil
}

// GetEntry loads one journal entry with its lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetJournalWithLines(ctx, id)
		return err
	})
	return entry, err
}

// ListEntries retrieves all journal entries.
func (s *Service) ListEntries(ctx context.Context) ([]JournalEntry, error) {
	var entries []JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListJournalEntries(ctx)
		return err
	})
	return entries, err
}

func (s *Service) record(ctx context.Context, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
		Meta:     meta,
		At:       s.now(),
	})
}

func swapSides(lines []JournalLine) []PostingLine {
	out := make([]PostingLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLine{
			AccountID:   line.AccountID,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
			ContactID:   line.ContactID,
		})
	}
	return out
}

func toJournalLines(entryID int64, lines []PostingLine) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			JournalID:   entryID,
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
			ContactID:   line.ContactID,
		})
	}
	return out
}

func reversalDescription(desc string, originalID int64) string {
	if desc != "" {
		return desc
	}
	return fmt.Sprintf("Reversal of JE %d", originalID)
}
