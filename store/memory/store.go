// Package memory is an in-process store for tests and single-instance
// deployments. A single RWMutex serializes writers, which makes every
// counter update atomic.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rechtskompass/ledger"
	"github.com/rechtskompass/ledger/account"
	"github.com/rechtskompass/ledger/credit"
	"github.com/rechtskompass/ledger/event"
	"github.com/rechtskompass/ledger/id"
	"github.com/rechtskompass/ledger/store"
	"github.com/rechtskompass/ledger/usage"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	accounts     map[string]*account.Account
	usage        map[string]*usage.Ledger
	transactions []*credit.Transaction
	events       map[string]*event.Record
	closed       bool
}

func New() *Store {
	return &Store{
		accounts: make(map[string]*account.Account),
		usage:    make(map[string]*usage.Ledger),
		events:   make(map[string]*event.Record),
	}
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ledger.ErrStoreClosed
	}
	key := a.ID.String()
	if _, exists := s.accounts[key]; exists {
		return ledger.ErrAlreadyExists
	}
	for _, existing := range s.accounts {
		if existing.Email == a.Email {
			return ledger.ErrEmailTaken
		}
	}

	created := a.CreatedAt
	if created.IsZero() {
		created = now()
	}
	cp := *a
	s.accounts[key] = &cp
	s.usage[key] = usage.New(a.ID, created)
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[accountID.String()]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (*account.Account, error) {
	return s.findAccount(func(a *account.Account) bool { return a.Email == email })
}

func (s *Store) GetAccountByCustomer(_ context.Context, customerID string) (*account.Account, error) {
	if customerID == "" {
		return nil, ledger.ErrAccountNotFound
	}
	return s.findAccount(func(a *account.Account) bool { return a.CustomerID == customerID })
}

func (s *Store) findAccount(match func(*account.Account) bool) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ledger.ErrAccountNotFound
}

func (s *Store) UpdateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := a.ID.String()
	if _, exists := s.accounts[key]; !exists {
		return ledger.ErrAccountNotFound
	}
	cp := *a
	s.accounts[key] = &cp
	return nil
}

// ==================== Usage Store ====================

func (s *Store) GetUsage(_ context.Context, accountID id.AccountID) (*usage.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usage[accountID.String()]
	if !ok {
		return nil, ledger.ErrUsageNotFound
	}
	cp := *u
	return &cp, nil
}

// mutate runs fn on the stored ledger under the write lock.
func (s *Store) mutate(accountID id.AccountID, fn func(u *usage.Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usage[accountID.String()]
	if !ok {
		return ledger.ErrUsageNotFound
	}
	return fn(u)
}

func (s *Store) IncrementUsage(_ context.Context, accountID id.AccountID, kind usage.Kind, day time.Time) error {
	return s.mutate(accountID, func(u *usage.Ledger) error {
		if err := u.Record(kind, day); err != nil {
			return err
		}
		u.UpdatedAt = now()
		return nil
	})
}

func (s *Store) SetCredits(_ context.Context, accountID id.AccountID, amount int64) error {
	return s.mutate(accountID, func(u *usage.Ledger) error {
		u.Grant(amount)
		u.UpdatedAt = now()
		return nil
	})
}

func (s *Store) AdjustCredits(_ context.Context, accountID id.AccountID, delta int64) (int64, error) {
	var balance int64
	err := s.mutate(accountID, func(u *usage.Ledger) error {
		if u.Credits+delta < 0 {
			return ledger.ErrInsufficientCredits
		}
		u.Credits += delta
		u.UpdatedAt = now()
		balance = u.Credits
		return nil
	})
	return balance, err
}

func (s *Store) ResetUsage(_ context.Context, accountID id.AccountID, start, end time.Time) error {
	return s.mutate(accountID, func(u *usage.Ledger) error {
		u.ResetPeriod(start)
		u.PeriodEnd = end.UTC()
		return nil
	})
}

func (s *Store) ClearUsage(_ context.Context, accountID id.AccountID) error {
	return s.mutate(accountID, func(u *usage.Ledger) error {
		u.Clear(now())
		return nil
	})
}

// ==================== Credit Store ====================

func (s *Store) AppendTransaction(_ context.Context, tx *credit.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.transactions {
		if existing.ID == tx.ID {
			return ledger.ErrAlreadyExists
		}
	}
	cp := *tx
	s.transactions = append(s.transactions, &cp)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, accountID id.AccountID, opts credit.ListOpts) ([]*credit.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*credit.Transaction
	// newest first; appends are chronological
	for _, tx := range slices.Backward(s.transactions) {
		if tx.AccountID != accountID {
			continue
		}
		if opts.Kind != "" && tx.Kind != opts.Kind {
			continue
		}
		cp := *tx
		result = append(result, &cp)
	}

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ==================== Event Store ====================

func (s *Store) ClaimEvent(_ context.Context, r *event.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[r.ID]; exists {
		return false, nil
	}
	cp := *r
	if cp.ProcessedAt.IsZero() {
		cp.ProcessedAt = now()
	}
	s.events[r.ID] = &cp
	return true, nil
}

func (s *Store) GetEvent(_ context.Context, eventID string) (*event.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.events[eventID]
	if !ok {
		return nil, ledger.ErrEventNotFound
	}
	cp := *r
	return &cp, nil
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ==================== Helpers ====================

func now() time.Time {
	return time.Now().UTC()
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
