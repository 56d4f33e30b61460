package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/shared"
)

// MemoryRepository is an in-memory RepositoryPort. A single mutex plays the
// role of the database transaction: balance folds and journal inserts commit
// together or not at all (mutations are staged and applied on success).
type MemoryRepository struct {
	mu          sync.Mutex
	accounts    map[int64]*Account
	entries     map[int64]*JournalEntry
	lines       map[int64][]JournalLine
	sourceLinks map[string]int64
	nextAccount int64
	nextEntry   int64
	nextLine    int64
	now         func() time.Time
}

// NewMemoryRepository builds an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:    make(map[int64]*Account),
		entries:     make(map[int64]*JournalEntry),
		lines:       make(map[int64][]JournalLine),
		sourceLinks: make(map[string]int64),
		now:         time.Now,
	}
}

// WithTx serializes the mutation under the repository mutex and rolls the
// staged state back when fn fails.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stage := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(stage)
		return err
	}
	return nil
}

type memoryState struct {
	accounts    map[int64]*Account
	entries     map[int64]*JournalEntry
	lines       map[int64][]JournalLine
	sourceLinks map[string]int64
	nextAccount int64
	nextEntry   int64
	nextLine    int64
}

func (r *MemoryRepository) snapshot() memoryState {
	s := memoryState{
		accounts:    make(map[int64]*Account, len(r.accounts)),
		entries:     make(map[int64]*JournalEntry, len(r.entries)),
		lines:       make(map[int64][]JournalLine, len(r.lines)),
		sourceLinks: make(map[string]int64, len(r.sourceLinks)),
		nextAccount: r.nextAccount,
		nextEntry:   r.nextEntry,
		nextLine:    r.nextLine,
	}
	for id, a := range r.accounts {
		copy := *a
		s.accounts[id] = &copy
	}
	for id, e := range r.entries {
		copy := *e
		s.entries[id] = &copy
	}
	for id, ls := range r.lines {
		s.lines[id] = append([]JournalLine(nil), ls...)
	}
	for k, v := range r.sourceLinks {
		s.sourceLinks[k] = v
	}
	return s
}

func (r *MemoryRepository) restore(s memoryState) {
	r.accounts = s.accounts
	r.entries = s.entries
	r.lines = s.lines
	r.sourceLinks = s.sourceLinks
	r.nextAccount = s.nextAccount
	r.nextEntry = s.nextEntry
	r.nextLine = s.nextLine
}

type memoryTx struct {
	repo *MemoryRepository
}

func (t *memoryTx) GetAccount(ctx context.Context, id int64) (Account, error) {
	a, ok := t.repo.accounts[id]
	if !ok {
		return Account{}, shared.ErrNotFound
	}
	return *a, nil
}

func (t *memoryTx) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	for _, a := range t.repo.accounts {
		if a.Code == code {
			return *a, nil
		}
	}
	return Account{}, shared.ErrNotFound
}

func (t *memoryTx) ListAccounts(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0, len(t.repo.accounts))
	for _, a := range t.repo.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (t *memoryTx) ListChildren(ctx context.Context, parentID int64) ([]Account, error) {
	var out []Account
	for _, a := range t.repo.accounts {
		if a.ParentID != nil && *a.ParentID == parentID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (t *memoryTx) InsertAccount(ctx context.Context, in AccountInput) (Account, error) {
	for _, a := range t.repo.accounts {
		if a.Code == in.Code {
			return Account{}, shared.Invalidf("ledger: account code %s already exists", in.Code)
		}
	}
	t.repo.nextAccount++
	now := t.repo.now()
	account := &Account{
		ID:             t.repo.nextAccount,
		Code:           in.Code,
		Name:           in.Name,
		Type:           in.Type,
		SubType:        in.SubType,
		ParentID:       in.ParentID,
		OpeningBalance: in.OpeningBalance,
		CurrentBalance: in.OpeningBalance,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	t.repo.accounts[account.ID] = account
	return *account, nil
}

func (t *memoryTx) SetAccountActive(ctx context.Context, id int64, active bool) error {
	a, ok := t.repo.accounts[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.IsActive = active
	a.UpdatedAt = t.repo.now()
	return nil
}

func (t *memoryTx) DeleteAccount(ctx context.Context, id int64) error {
	if _, ok := t.repo.accounts[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.repo.accounts, id)
	return nil
}

func (t *memoryTx) ApplyBalanceDelta(ctx context.Context, accountID int64, delta int64) error {
	a, ok := t.repo.accounts[accountID]
	if !ok {
		return shared.ErrNotFound
	}
	a.CurrentBalance = a.CurrentBalance.Add(money.FromFils(delta))
	a.UpdatedAt = t.repo.now()
	return nil
}

func (t *memoryTx) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	t.repo.nextEntry++
	now := t.repo.now()
	entry := &JournalEntry{
		ID:          t.repo.nextEntry,
		Date:        in.Date,
		Description: in.Description,
		Source:      in.Source,
		Status:      JournalStatusPosted,
		PostedAt:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.repo.entries[entry.ID] = entry
	return *entry, nil
}

func (t *memoryTx) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLine) error {
	if _, ok := t.repo.entries[entryID]; !ok {
		return shared.ErrNotFound
	}
	for _, line := range lines {
		t.repo.nextLine++
		t.repo.lines[entryID] = append(t.repo.lines[entryID], JournalLine{
			ID:          t.repo.nextLine,
			JournalID:   entryID,
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
			ContactID:   line.ContactID,
		})
	}
	return nil
}

func (t *memoryTx) LinkSource(ctx context.Context, source Source, entryID int64) error {
	key := fmt.Sprintf("%s/%s", source.Kind, source.Ref)
	if _, exists := t.repo.sourceLinks[key]; exists {
		return fmt.Errorf("ledger: source %s already posted: %w", key, shared.ErrConflict)
	}
	t.repo.sourceLinks[key] = entryID
	return nil
}

func (t *memoryTx) GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	e, ok := t.repo.entries[entryID]
	if !ok {
		return JournalEntry{}, shared.ErrNotFound
	}
	entry := *e
	entry.Lines = append([]JournalLine(nil), t.repo.lines[entryID]...)
	return entry, nil
}

func (t *memoryTx) ListJournalEntries(ctx context.Context) ([]JournalEntry, error) {
	out := make([]JournalEntry, 0, len(t.repo.entries))
	for _, e := range t.repo.entries {
		entry := *e
		entry.Lines = append([]JournalLine(nil), t.repo.lines[e.ID]...)
		out = append(out, entry)
	}
	return out, nil
}

func (t *memoryTx) MarkReversed(ctx context.Context, entryID int64) error {
	e, ok := t.repo.entries[entryID]
	if !ok {
		return shared.ErrNotFound
	}
	if e.Status != JournalStatusPosted {
		return shared.ErrConflict
	}
	e.Status = JournalStatusReversed
	e.UpdatedAt = t.repo.now()
	return nil
}

func (t *memoryTx) SumPostedLines(ctx context.Context, from, to time.Time) (map[int64]LineTotals, error) {
	totals := make(map[int64]LineTotals)
	for id, e := range t.repo.entries {
		if e.Status != JournalStatusPosted && e.Status != JournalStatusReversed {
			continue
		}
		if !from.IsZero() && e.Date.Before(from) {
			continue
		}
		if !to.IsZero() && e.Date.After(to) {
			continue
		}
		for _, line := range t.repo.lines[id] {
			agg := totals[line.AccountID]
			agg.Debit += line.Debit.Fils()
			agg.Credit += line.Credit.Fils()
			totals[line.AccountID] = agg
		}
	}
	return totals, nil
}
