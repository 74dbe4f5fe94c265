// Package session holds the client-side view of one signed-in account: a
// cached ledger snapshot, refreshed explicitly, that entitlement checks run
// against without a round trip.
//
// A Provider is owned by the application root and handed to request
// handlers through a context.Context. There is no package-level state.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rechtskompass/ledger"
	"github.com/rechtskompass/ledger/account"
	"github.com/rechtskompass/ledger/entitlement"
	"github.com/rechtskompass/ledger/id"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/types"
	"github.com/rechtskompass/ledger/usage"
)

// Fetcher loads the persisted state of an account. *ledger.Ledger
// satisfies it.
type Fetcher interface {
	Snapshot(ctx context.Context, accountID id.AccountID) (*ledger.Snapshot, error)
}

// Identity is what the client knows about the user before any fetch.
type Identity struct {
	AccountID   id.AccountID
	Email       string
	DisplayName string
}

// State is a cached snapshot.
type State struct {
	ledger.Snapshot

	// Synthetic marks a locally constructed free-tier profile that was
	// never read from storage.
	Synthetic bool      `json:"synthetic"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Fallback builds the free-tier profile used when a new account cannot be
// fetched: weakest plan, zero counters, zero credits.
func Fallback(identity Identity, catalog *plan.Catalog, now time.Time) State {
	if catalog == nil {
		catalog = plan.Default()
	}
	return State{
		Snapshot: ledger.Snapshot{
			Account: account.Account{
				Entity:      types.NewEntity(now),
				ID:          identity.AccountID,
				Email:       account.NormalizeEmail(identity.Email),
				DisplayName: identity.DisplayName,
				PlanID:      plan.Free,
			},
			Plan:  catalog.Fallback(),
			Usage: *usage.New(identity.AccountID, now),
		},
		Synthetic: true,
		FetchedAt: now,
	}
}

// Provider owns the cached state for one account. It is safe for
// concurrent use.
type Provider struct {
	fetcher  Fetcher
	identity Identity
	catalog  *plan.Catalog
	checker  *entitlement.Checker
	logger   *slog.Logger
	clock    func() time.Time

	mu    sync.RWMutex
	state *State
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithCatalog sets the catalog used for fallback profiles and upgrade hints.
func WithCatalog(c *plan.Catalog) Option {
	return func(p *Provider) {
		if c != nil {
			p.catalog = c
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.clock = now }
}

// NewProvider returns an empty provider. Call Refresh to hydrate it.
func NewProvider(f Fetcher, identity Identity, opts ...Option) *Provider {
	p := &Provider{
		fetcher:  f,
		identity: identity,
		catalog:  plan.Default(),
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.checker = entitlement.NewChecker(p.catalog)
	return p
}

// Refresh reloads the snapshot. On failure an existing snapshot is kept;
// without one the provider installs Fallback so the user is never blocked.
// The fetch error is returned in both cases.
func (p *Provider) Refresh(ctx context.Context) error {
	snap, err := p.fetcher.Snapshot(ctx, p.identity.AccountID)
	now := p.clock().UTC()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		if p.state == nil {
			fb := Fallback(p.identity, p.catalog, now)
			p.state = &fb
			p.logger.Warn("session fetch failed, using free-tier fallback",
				"account_id", p.identity.AccountID.String(),
				"error", err,
			)
		} else {
			p.logger.Warn("session refresh failed, keeping cached state",
				"account_id", p.identity.AccountID.String(),
				"error", err,
			)
		}
		return fmt.Errorf("session: refresh: %w", err)
	}

	p.state = &State{Snapshot: *snap, FetchedAt: now}
	return nil
}

// Loaded reports whether Refresh has installed any state.
func (p *Provider) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state != nil
}

// State returns a copy of the cached state, or Fallback if nothing was
// loaded yet.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state == nil {
		return Fallback(p.identity, p.catalog, p.clock().UTC())
	}
	return *p.state
}

// Credits is the cached credit balance.
func (p *Provider) Credits() int64 { return p.State().Usage.Credits }

// current returns the cached usage rolled to today together with its plan.
func (p *Provider) current() (usage.Ledger, plan.Plan) {
	s := p.State()
	u := s.Usage
	u.Normalize(p.clock().UTC())
	return u, s.Plan
}

func (p *Provider) CanSendChatMessage() entitlement.Decision {
	u, pl := p.current()
	return p.checker.CanSendChatMessage(u, pl)
}

func (p *Provider) CanGenerateLetter() entitlement.LetterDecision {
	u, pl := p.current()
	return p.checker.CanGenerateLetter(u, pl)
}

func (p *Provider) CanScanDocument() entitlement.Decision {
	u, pl := p.current()
	return p.checker.CanScanDocument(u, pl)
}

func (p *Provider) CanPostInForum() entitlement.Decision {
	return p.checker.CanPostInForum()
}

// Check evaluates action against the cached state.
func (p *Provider) Check(action entitlement.Action) (entitlement.Result, error) {
	u, pl := p.current()
	return p.checker.Check(action, u, pl)
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying p.
func NewContext(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the provider stored by NewContext.
func FromContext(ctx context.Context) (*Provider, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Provider)
	return p, ok && p != nil
}
