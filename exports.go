package ledger

import (
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/types"
)

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// PlanID is re-exported from plan package.
type PlanID = plan.ID

// Re-export Money constructors
var (
	EUR  = types.EUR
	Zero = types.Zero
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
