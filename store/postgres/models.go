package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/rechtskompass/ledger/account"
	"github.com/rechtskompass/ledger/credit"
	"github.com/rechtskompass/ledger/event"
	"github.com/rechtskompass/ledger/id"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/types"
	"github.com/rechtskompass/ledger/usage"
)

// dayLayout is how calendar days are stored so the database can compare
// them without timezone conversion.
const dayLayout = "2006-01-02"

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:ledger_accounts"`

	ID             string    `grove:"id,pk"`
	Email          string    `grove:"email"`
	DisplayName    string    `grove:"display_name"`
	PlanID         string    `grove:"plan_id"`
	CustomerID     string    `grove:"customer_id"`
	SubscriptionID string    `grove:"subscription_id"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:             a.ID.String(),
		Email:          a.Email,
		DisplayName:    a.DisplayName,
		PlanID:         string(a.PlanID),
		CustomerID:     a.CustomerID,
		SubscriptionID: a.SubscriptionID,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}
	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             accountID,
		Email:          m.Email,
		DisplayName:    m.DisplayName,
		PlanID:         plan.ID(m.PlanID),
		CustomerID:     m.CustomerID,
		SubscriptionID: m.SubscriptionID,
	}, nil
}

// ==================== Usage models ====================

type usageModel struct {
	grove.BaseModel `grove:"table:ledger_usage"`

	AccountID        string    `grove:"account_id,pk"`
	Credits          int64     `grove:"credits"`
	MessagesToday    int64     `grove:"messages_today"`
	MessagesDay      string    `grove:"messages_day"`
	LettersGenerated int64     `grove:"letters_generated"`
	ScansUsed        int64     `grove:"scans_used"`
	PeriodStart      time.Time `grove:"period_start"`
	PeriodEnd        time.Time `grove:"period_end"`
	UpdatedAt        time.Time `grove:"updated_at"`
}

func toUsageModel(u *usage.Ledger) *usageModel {
	return &usageModel{
		AccountID:        u.AccountID.String(),
		Credits:          u.Credits,
		MessagesToday:    u.MessagesToday,
		MessagesDay:      formatDay(u.MessagesDay),
		LettersGenerated: u.LettersGenerated,
		ScansUsed:        u.ScansUsed,
		PeriodStart:      u.PeriodStart,
		PeriodEnd:        u.PeriodEnd,
		UpdatedAt:        u.UpdatedAt,
	}
}

func fromUsageModel(m *usageModel) (*usage.Ledger, error) {
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}
	return &usage.Ledger{
		AccountID:        accountID,
		Credits:          m.Credits,
		MessagesToday:    m.MessagesToday,
		MessagesDay:      parseDay(m.MessagesDay),
		LettersGenerated: m.LettersGenerated,
		ScansUsed:        m.ScansUsed,
		PeriodStart:      m.PeriodStart.UTC(),
		PeriodEnd:        m.PeriodEnd.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}, nil
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return usage.Day(t).Format(dayLayout)
}

func parseDay(s string) time.Time {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ==================== Credit models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:ledger_credit_transactions"`

	ID           string    `grove:"id,pk"`
	AccountID    string    `grove:"account_id"`
	Amount       int64     `grove:"amount"`
	Kind         string    `grove:"kind"`
	Description  string    `grove:"description"`
	BalanceAfter int64     `grove:"balance_after"`
	CreatedAt    time.Time `grove:"created_at"`
}

func toTransactionModel(tx *credit.Transaction) *transactionModel {
	return &transactionModel{
		ID:           tx.ID.String(),
		AccountID:    tx.AccountID.String(),
		Amount:       tx.Amount,
		Kind:         string(tx.Kind),
		Description:  tx.Description,
		BalanceAfter: tx.BalanceAfter,
		CreatedAt:    tx.CreatedAt,
	}
}

func fromTransactionModel(m *transactionModel) (*credit.Transaction, error) {
	txID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}
	return &credit.Transaction{
		ID:           txID,
		AccountID:    accountID,
		Amount:       m.Amount,
		Kind:         credit.Kind(m.Kind),
		Description:  m.Description,
		BalanceAfter: m.BalanceAfter,
		CreatedAt:    m.CreatedAt.UTC(),
	}, nil
}

// ==================== Billing event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:ledger_billing_events"`

	ID          string    `grove:"id,pk"`
	Type        string    `grove:"type"`
	Provider    string    `grove:"provider"`
	ProcessedAt time.Time `grove:"processed_at"`
}

func toEventModel(r *event.Record) *eventModel {
	return &eventModel{
		ID:          r.ID,
		Type:        r.Type,
		Provider:    r.Provider,
		ProcessedAt: r.ProcessedAt,
	}
}

func fromEventModel(m *eventModel) *event.Record {
	return &event.Record{
		ID:          m.ID,
		Type:        m.Type,
		Provider:    m.Provider,
		ProcessedAt: m.ProcessedAt.UTC(),
	}
}
