package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	ledger "github.com/rechtskompass/ledger"
	"github.com/rechtskompass/ledger/account"
	"github.com/rechtskompass/ledger/credit"
	"github.com/rechtskompass/ledger/event"
	"github.com/rechtskompass/ledger/id"
	ledgerstore "github.com/rechtskompass/ledger/store"
	"github.com/rechtskompass/ledger/usage"
)

// Collection name constants.
const (
	colAccounts     = "ledger_accounts"
	colUsage        = "ledger_usage"
	colTransactions = "ledger_credit_transactions"
	colEvents       = "ledger_billing_events"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all ledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("ledger/mongo: migrate %s indexes: %w", col, err)
		}
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

	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if _, getErr := s.GetAccount(ctx, a.ID); getErr == nil {
				return ledger.ErrAlreadyExists
			}
			return ledger.ErrEmailTaken
		}
		return fmt.Errorf("ledger/mongo: create account: %w", err)
	}

	u := toUsageModel(usage.New(a.ID, m.CreatedAt))
	if _, err := s.mdb.NewInsert(u).Exec(ctx); err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("ledger/mongo: create usage: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return s.findAccount(ctx, bson.M{"_id": accountID.String()})
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*account.Account, error) {
	return s.findAccount(ctx, bson.M{"email": email})
}

func (s *Store) GetAccountByCustomer(ctx context.Context, customerID string) (*account.Account, error) {
	if customerID == "" {
		return nil, ledger.ErrAccountNotFound
	}
	return s.findAccount(ctx, bson.M{"customer_id": customerID})
}

func (s *Store) findAccount(ctx context.Context, filter bson.M) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("ledger/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ledger/mongo: update account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// ==================== Usage Store ====================

func (s *Store) GetUsage(ctx context.Context, accountID id.AccountID) (*usage.Ledger, error) {
	var m usageModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrUsageNotFound
		}
		return nil, fmt.Errorf("ledger/mongo: get usage: %w", err)
	}
	return fromUsageModel(&m)
}

// IncrementUsage uses an aggregation-pipeline update so the daily chat
// rollover and the increment happen in one server-side operation.
func (s *Store) IncrementUsage(ctx context.Context, accountID id.AccountID, kind usage.Kind, day time.Time) error {
	var update any
	switch kind {
	case usage.KindChat:
		d := formatDay(day)
		update = bson.A{bson.M{"$set": bson.M{
			"messages_today": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$messages_day", d}},
				bson.M{"$add": bson.A{"$messages_today", 1}},
				1,
			}},
			"messages_day": d,
			"updated_at":   now(),
		}}}
	case usage.KindLetter:
		update = bson.M{"$inc": bson.M{"letters_generated": 1}, "$set": bson.M{"updated_at": now()}}
	case usage.KindScan:
		update = bson.M{"$inc": bson.M{"scans_used": 1}, "$set": bson.M{"updated_at": now()}}
	default:
		return fmt.Errorf("usage: unknown kind %q", kind)
	}

	res, err := s.mdb.Collection(colUsage).UpdateOne(ctx, bson.M{"_id": accountID.String()}, update)
	if err != nil {
		return fmt.Errorf("ledger/mongo: increment %s: %w", kind, err)
	}
	if res.MatchedCount == 0 {
		return ledger.ErrUsageNotFound
	}
	return nil
}

func (s *Store) SetCredits(ctx context.Context, accountID id.AccountID, amount int64) error {
	if amount < 0 {
		amount = 0
	}
	res, err := s.mdb.NewUpdate((*usageModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		Set("credits", amount).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ledger/mongo: set credits: %w", err)
	}
	if res.MatchedCount() == 0 {
		return ledger.ErrUsageNotFound
	}
	return nil
}

// AdjustCredits only matches documents whose balance covers a negative
// delta, which keeps credits non-negative without a transaction.
func (s *Store) AdjustCredits(ctx context.Context, accountID id.AccountID, delta int64) (int64, error) {
	filter := bson.M{"_id": accountID.String()}
	if delta < 0 {
		filter["credits"] = bson.M{"$gte": -delta}
	}

	var m usageModel
	err := s.mdb.Collection(colUsage).FindOneAndUpdate(ctx, filter,
		bson.M{"$inc": bson.M{"credits": delta}, "$set": bson.M{"updated_at": now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err == nil {
		return m.Credits, nil
	}
	if !isNoDocuments(err) {
		return 0, fmt.Errorf("ledger/mongo: adjust credits: %w", err)
	}
	if _, getErr := s.GetUsage(ctx, accountID); getErr != nil {
		return 0, getErr
	}
	return 0, ledger.ErrInsufficientCredits
}

func (s *Store) ResetUsage(ctx context.Context, accountID id.AccountID, start, end time.Time) error {
	start = start.UTC()
	res, err := s.mdb.NewUpdate((*usageModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		Set("messages_today", int64(0)).
		Set("messages_day", formatDay(start)).
		Set("letters_generated", int64(0)).
		Set("scans_used", int64(0)).
		Set("period_start", start).
		Set("period_end", end.UTC()).
		Set("updated_at", start).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ledger/mongo: reset usage: %w", err)
	}
	if res.MatchedCount() == 0 {
		return ledger.ErrUsageNotFound
	}
	return nil
}

func (s *Store) ClearUsage(ctx context.Context, accountID id.AccountID) error {
	res, err := s.mdb.NewUpdate((*usageModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		Set("credits", int64(0)).
		Set("messages_today", int64(0)).
		Set("letters_generated", int64(0)).
		Set("scans_used", int64(0)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ledger/mongo: clear usage: %w", err)
	}
	if res.MatchedCount() == 0 {
		return ledger.ErrUsageNotFound
	}
	return nil
}

// ==================== Credit Store ====================

func (s *Store) AppendTransaction(ctx context.Context, tx *credit.Transaction) error {
	if _, err := s.mdb.NewInsert(toTransactionModel(tx)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrAlreadyExists
		}
		return fmt.Errorf("ledger/mongo: append transaction: %w", err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID id.AccountID, opts credit.ListOpts) ([]*credit.Transaction, error) {
	var models []transactionModel

	filter := bson.M{"account_id": accountID.String()}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ledger/mongo: list transactions: %w", err)
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
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("ledger/mongo: claim event: %w", err)
	}
	return true, nil
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (*event.Record, error) {
	var m eventModel
	err := s.mdb.NewFind(&m).Filter(bson.M{"_id": eventID}).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrEventNotFound
		}
		return nil, fmt.Errorf("ledger/mongo: get event: %w", err)
	}
	return fromEventModel(&m), nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all ledger collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "customer_id", Value: 1}},
				Options: options.Index().SetSparse(true),
			},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "kind", Value: 1}}},
		},
		colEvents: {
			{Keys: bson.D{{Key: "processed_at", Value: -1}}},
		},
	}
}
