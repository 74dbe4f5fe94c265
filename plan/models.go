package plan

import (
	"fmt"
	"strconv"

	"github.com/rechtskompass/ledger/types"
)

// ID identifies a subscription tier. The set is closed.
type ID string

const (
	Free     ID = "free"
	Basis    ID = "basis"
	Kaempfer ID = "kaempfer"
	Profi    ID = "profi"
)

// IDs lists every tier identifier.
func IDs() []ID { return []ID{Free, Basis, Kaempfer, Profi} }

// ParseID reports whether s names a known tier.
func ParseID(s string) (ID, bool) {
	for _, id := range IDs() {
		if string(id) == s {
			return id, true
		}
	}
	return "", false
}

// Quota is a non-negative limit or Unlimited.
type Quota int64

// Unlimited is the sentinel for "no limit".
const Unlimited Quota = -1

// Limit returns a finite quota. Negative values are clamped to zero.
func Limit(n int64) Quota {
	if n < 0 {
		return 0
	}
	return Quota(n)
}

// IsUnlimited reports whether q is the Unlimited sentinel.
func (q Quota) IsUnlimited() bool { return q == Unlimited }

// Allows reports whether used is still under the quota.
func (q Quota) Allows(used int64) bool {
	return q.IsUnlimited() || used < int64(q)
}

// Exceeds reports whether q is strictly more generous than other.
func (q Quota) Exceeds(other Quota) bool {
	switch {
	case other.IsUnlimited():
		return false
	case q.IsUnlimited():
		return true
	default:
		return q > other
	}
}

func (q Quota) String() string {
	if q.IsUnlimited() {
		return "unbegrenzt"
	}
	return strconv.FormatInt(int64(q), 10)
}

// ForumAccess is the forum tier a plan unlocks.
type ForumAccess string

const (
	ForumNone  ForumAccess = "none"
	ForumRead  ForumAccess = "read"
	ForumWrite ForumAccess = "write"
)

// Plan is one subscription tier with its quotas and prices.
type Plan struct {
	ID             ID          `json:"id"`
	Name           string      `json:"name"`
	MonthlyPrice   types.Money `json:"monthly_price"`
	MonthlyCredits int64       `json:"monthly_credits"`
	DailyMessages  Quota       `json:"daily_messages"`
	MonthlyLetters Quota       `json:"monthly_letters"`
	MonthlyScans   Quota       `json:"monthly_scans"`
	Forum          ForumAccess `json:"forum"`
	// LetterPrice is charged per letter on the free tier and once the
	// monthly letter quota is used up.
	LetterPrice types.Money `json:"letter_price"`
}

// IsFree reports whether p is the free tier.
func (p Plan) IsFree() bool { return p.ID == Free }

func (p Plan) validate() error {
	if _, ok := ParseID(string(p.ID)); !ok {
		return fmt.Errorf("plan: unknown id %q", p.ID)
	}
	for name, q := range map[string]Quota{
		"daily_messages":  p.DailyMessages,
		"monthly_letters": p.MonthlyLetters,
		"monthly_scans":   p.MonthlyScans,
	} {
		if q < 0 && !q.IsUnlimited() {
			return fmt.Errorf("plan %s: %s must be >= 0 or unlimited, got %d", p.ID, name, q)
		}
	}
	if p.MonthlyCredits < 0 {
		return fmt.Errorf("plan %s: monthly_credits must be >= 0", p.ID)
	}
	return nil
}
