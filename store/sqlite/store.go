package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	ledger "github.com/rechtskompass/ledger"
	"github.com/rechtskompass/ledger/account"
	"github.com/rechtskompass/ledger/credit"
	"github.com/rechtskompass/ledger/event"
	"github.com/rechtskompass/ledger/id"
	ledgerstore "github.com/rechtskompass/ledger/store"
	"github.com/rechtskompass/ledger/usage"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("ledger/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("ledger/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
		m.UpdatedAt = m.CreatedAt
	}

	res, err := s.sdb.NewInsert(m).OnConflict("DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("ledger/sqlite: create account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, getErr := s.GetAccount(ctx, a.ID); getErr == nil {
			return ledger.ErrAlreadyExists
		}
		return ledger.ErrEmailTaken
	}

	u := toUsageModel(usage.New(a.ID, m.CreatedAt))
	if _, err := s.sdb.NewInsert(u).OnConflict("(account_id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("ledger/sqlite: create usage: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return s.findAccount(ctx, "id = ?", accountID.String())
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*account.Account, error) {
	return s.findAccount(ctx, "email = ?", email)
}

func (s *Store) GetAccountByCustomer(ctx context.Context, customerID string) (*account.Account, error) {
	if customerID == "" {
		return nil, ledger.ErrAccountNotFound
	}
	return s.findAccount(ctx, "customer_id = ?", customerID)
}

func (s *Store) findAccount(ctx context.Context, where string, arg any) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).Where(where, arg).Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// ==================== Usage Store ====================

func (s *Store) GetUsage(ctx context.Context, accountID id.AccountID) (*usage.Ledger, error) {
	m := new(usageModel)
	err := s.sdb.NewSelect(m).Where("account_id = ?", accountID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrUsageNotFound
		}
		return nil, err
	}
	return fromUsageModel(m)
}

func (s *Store) IncrementUsage(ctx context.Context, accountID id.AccountID, kind usage.Kind, day time.Time) error {
	var (
		query string
		args  []any
	)
	switch kind {
	case usage.KindChat:
		d := formatDay(day)
		query = `
			UPDATE ledger_usage SET
				messages_today = CASE WHEN messages_day = ? THEN messages_today + 1 ELSE 1 END,
				messages_day = ?,
				updated_at = ?
			WHERE account_id = ?
			RETURNING account_id`
		args = []any{d, d, now(), accountID.String()}
	case usage.KindLetter:
		query = `
			UPDATE ledger_usage SET letters_generated = letters_generated + 1, updated_at = ?
			WHERE account_id = ?
			RETURNING account_id`
		args = []any{now(), accountID.String()}
	case usage.KindScan:
		query = `
			UPDATE ledger_usage SET scans_used = scans_used + 1, updated_at = ?
			WHERE account_id = ?
			RETURNING account_id`
		args = []any{now(), accountID.String()}
	default:
		return fmt.Errorf("usage: unknown kind %q", kind)
	}

	var updated string
	err := s.sdb.NewRaw(query, args...).Scan(ctx, &updated)
	if err != nil {
		if isNoRows(err) {
			return ledger.ErrUsageNotFound
		}
		return fmt.Errorf("ledger/sqlite: increment %s: %w", kind, err)
	}
	return nil
}

func (s *Store) SetCredits(ctx context.Context, accountID id.AccountID, amount int64) error {
	if amount < 0 {
		amount = 0
	}
	res, err := s.sdb.NewUpdate((*usageModel)(nil)).
		Set("credits = ?", amount).
		Set("updated_at = ?", now()).
		Where("account_id = ?", accountID.String()).
		Exec(ctx)
	return usageAffected(res, err)
}

func (s *Store) AdjustCredits(ctx context.Context, accountID id.AccountID, delta int64) (int64, error) {
	var balance int64
	err := s.sdb.NewRaw(`
		UPDATE ledger_usage SET credits = credits + ?, updated_at = ?
		WHERE account_id = ? AND credits + ? >= 0
		RETURNING credits
	`, delta, now(), accountID.String(), delta).Scan(ctx, &balance)
	if err == nil {
		return balance, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("ledger/sqlite: adjust credits: %w", err)
	}
	if _, getErr := s.GetUsage(ctx, accountID); getErr != nil {
		return 0, getErr
	}
	return 0, ledger.ErrInsufficientCredits
}

func (s *Store) ResetUsage(ctx context.Context, accountID id.AccountID, start, end time.Time) error {
	start = start.UTC()
	res, err := s.sdb.NewUpdate((*usageModel)(nil)).
		Set("messages_today = 0").
		Set("messages_day = ?", formatDay(start)).
		Set("letters_generated = 0").
		Set("scans_used = 0").
		Set("period_start = ?", start).
		Set("period_end = ?", end.UTC()).
		Set("updated_at = ?", start).
		Where("account_id = ?", accountID.String()).
		Exec(ctx)
	return usageAffected(res, err)
}

func (s *Store) ClearUsage(ctx context.Context, accountID id.AccountID) error {
	res, err := s.sdb.NewUpdate((*usageModel)(nil)).
		Set("credits = 0").
		Set("messages_today = 0").
		Set("letters_generated = 0").
		Set("scans_used = 0").
		Set("updated_at = ?", now()).
		Where("account_id = ?", accountID.String()).
		Exec(ctx)
	return usageAffected(res, err)
}

// ==================== Credit Store ====================

func (s *Store) AppendTransaction(ctx context.Context, tx *credit.Transaction) error {
	res, err := s.sdb.NewInsert(toTransactionModel(tx)).OnConflict("(id) DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ledger.ErrAlreadyExists
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID id.AccountID, opts credit.ListOpts) ([]*credit.Transaction, error) {
	var models []transactionModel
	q := s.sdb.NewSelect(&models).Where("account_id = ?", accountID.String())
	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	q = q.OrderExpr("created_at DESC, id DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*credit.Transaction, 0, len(models))
	for i := range models {
		tx, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, nil
}

// ==================== Event Store ====================

func (s *Store) ClaimEvent(ctx context.Context, r *event.Record) (bool, error) {
	m := toEventModel(r)
	if m.ProcessedAt.IsZero() {
		m.ProcessedAt = now()
	}
	res, err := s.sdb.NewInsert(m).OnConflict("(id) DO NOTHING").Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("ledger/sqlite: claim event: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (*event.Record, error) {
	m := new(eventModel)
	err := s.sdb.NewSelect(m).Where("id = ?", eventID).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m), nil
}

// ==================== Helpers ====================

func now() time.Time {
	return time.Now().UTC()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func usageAffected(res rowsAffecter, err error) error {
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ledger.ErrUsageNotFound
	}
	return nil
}
