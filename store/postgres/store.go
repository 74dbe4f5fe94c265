package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("ledger/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("ledger/postgres: migration failed: %w", err)
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

// CreateAccount inserts the account and its zeroed usage row in one
// statement, so an account never exists without a ledger.
func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
		m.UpdatedAt = m.CreatedAt
	}
	u := toUsageModel(usage.New(a.ID, m.CreatedAt))

	var created string
	err := s.pg.NewRaw(`
		WITH acct AS (
			INSERT INTO ledger_accounts (id, email, display_name, plan_id, customer_id, subscription_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT DO NOTHING
			RETURNING id
		)
		INSERT INTO ledger_usage (account_id, credits, messages_today, messages_day, letters_generated, scans_used, period_start, period_end, updated_at)
		SELECT id, 0, 0, $9::text, 0, 0, $10::timestamptz, $11::timestamptz, $8::timestamptz FROM acct
		RETURNING account_id
	`, m.ID, m.Email, m.DisplayName, m.PlanID, m.CustomerID, m.SubscriptionID, m.CreatedAt, m.UpdatedAt,
		u.MessagesDay, u.PeriodStart, u.PeriodEnd).Scan(ctx, &created)
	if err == nil {
		return nil
	}
	if !isNoRows(err) {
		return fmt.Errorf("ledger/postgres: create account: %w", err)
	}

	// Nothing inserted: either the id or the email collided.
	if _, getErr := s.GetAccount(ctx, a.ID); getErr == nil {
		return ledger.ErrAlreadyExists
	}
	return ledger.ErrEmailTaken
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return s.findAccount(ctx, "id = $1", accountID.String())
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*account.Account, error) {
	return s.findAccount(ctx, "email = $1", email)
}

func (s *Store) GetAccountByCustomer(ctx context.Context, customerID string) (*account.Account, error) {
	if customerID == "" {
		return nil, ledger.ErrAccountNotFound
	}
	return s.findAccount(ctx, "customer_id = $1", customerID)
}

func (s *Store) findAccount(ctx context.Context, where string, arg any) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).Where(where, arg).Limit(1).Scan(ctx)
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	err := s.pg.NewSelect(m).Where("account_id = $1", accountID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrUsageNotFound
		}
		return nil, err
	}
	return fromUsageModel(m)
}

// IncrementUsage bumps one counter in a single statement. The daily chat
// counter restarts at 1 when the stored day differs from day.
func (s *Store) IncrementUsage(ctx context.Context, accountID id.AccountID, kind usage.Kind, day time.Time) error {
	var (
		query string
		args  []any
	)
	switch kind {
	case usage.KindChat:
		query = `
			UPDATE ledger_usage SET
				messages_today = CASE WHEN messages_day = $1 THEN messages_today + 1 ELSE 1 END,
				messages_day = $1,
				updated_at = $2
			WHERE account_id = $3
			RETURNING account_id`
		args = []any{formatDay(day), now(), accountID.String()}
	case usage.KindLetter:
		query = `
			UPDATE ledger_usage SET letters_generated = letters_generated + 1, updated_at = $1
			WHERE account_id = $2
			RETURNING account_id`
		args = []any{now(), accountID.String()}
	case usage.KindScan:
		query = `
			UPDATE ledger_usage SET scans_used = scans_used + 1, updated_at = $1
			WHERE account_id = $2
			RETURNING account_id`
		args = []any{now(), accountID.String()}
	default:
		return fmt.Errorf("usage: unknown kind %q", kind)
	}

	var updated string
	err := s.pg.NewRaw(query, args...).Scan(ctx, &updated)
	if err != nil {
		if isNoRows(err) {
			return ledger.ErrUsageNotFound
		}
		return fmt.Errorf("ledger/postgres: increment %s: %w", kind, err)
	}
	return nil
}

func (s *Store) SetCredits(ctx context.Context, accountID id.AccountID, amount int64) error {
	if amount < 0 {
		amount = 0
	}
	res, err := s.pg.NewUpdate((*usageModel)(nil)).
		Set("credits = $1", amount).
		Set("updated_at = $2", now()).
		Where("account_id = $3", accountID.String()).
		Exec(ctx)
	return usageAffected(res, err)
}

// AdjustCredits applies delta only when the balance stays non-negative.
func (s *Store) AdjustCredits(ctx context.Context, accountID id.AccountID, delta int64) (int64, error) {
	var balance int64
	err := s.pg.NewRaw(`
		UPDATE ledger_usage SET credits = credits + $1, updated_at = $2
		WHERE account_id = $3 AND credits + $1 >= 0
		RETURNING credits
	`, delta, now(), accountID.String()).Scan(ctx, &balance)
	if err == nil {
		return balance, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("ledger/postgres: adjust credits: %w", err)
	}
	if _, getErr := s.GetUsage(ctx, accountID); getErr != nil {
		return 0, getErr
	}
	return 0, ledger.ErrInsufficientCredits
}

func (s *Store) ResetUsage(ctx context.Context, accountID id.AccountID, start, end time.Time) error {
	start = start.UTC()
	res, err := s.pg.NewUpdate((*usageModel)(nil)).
		Set("messages_today = 0").
		Set("messages_day = $1", formatDay(start)).
		Set("letters_generated = 0").
		Set("scans_used = 0").
		Set("period_start = $2", start).
		Set("period_end = $3", end.UTC()).
		Set("updated_at = $4", start).
		Where("account_id = $5", accountID.String()).
		Exec(ctx)
	return usageAffected(res, err)
}

func (s *Store) ClearUsage(ctx context.Context, accountID id.AccountID) error {
	res, err := s.pg.NewUpdate((*usageModel)(nil)).
		Set("credits = 0").
		Set("messages_today = 0").
		Set("letters_generated = 0").
		Set("scans_used = 0").
		Set("updated_at = $1", now()).
		Where("account_id = $2", accountID.String()).
		Exec(ctx)
	return usageAffected(res, err)
}

// ==================== Credit Store ====================

func (s *Store) AppendTransaction(ctx context.Context, tx *credit.Transaction) error {
	m := toTransactionModel(tx)
	res, err := s.pg.NewInsert(m).OnConflict("(id) DO NOTHING").Exec(ctx)
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
	q := s.pg.NewSelect(&models).Where("account_id = $1", accountID.String())
	if opts.Kind != "" {
		q = q.Where("kind = $2", string(opts.Kind))
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
	res, err := s.pg.NewInsert(m).OnConflict("(id) DO NOTHING").Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("ledger/postgres: claim event: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (*event.Record, error) {
	m := new(eventModel)
	err := s.pg.NewSelect(m).Where("id = $1", eventID).Scan(ctx)
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

// usageAffected maps a zero-row usage update to ErrUsageNotFound.
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
