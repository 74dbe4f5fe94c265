package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	ledger "github.com/rechtskompass/ledger"
	"github.com/rechtskompass/ledger/credit"
	"github.com/rechtskompass/ledger/entitlement"
	"github.com/rechtskompass/ledger/id"
)

// accountAPI exposes the engine to the app backend. Authentication is the
// job of whatever sits in front of this service.
type accountAPI struct {
	ledger *ledger.Ledger
}

func newAccountAPI(l *ledger.Ledger) *accountAPI {
	return &accountAPI{ledger: l}
}

func (a *accountAPI) register(r gin.IRoutes) {
	r.POST("", a.create)
	r.GET("/:id", a.snapshot)
	r.GET("/:id/transactions", a.transactions)
	r.GET("/:id/entitlements/:action", a.check)
	r.POST("/:id/usage/:action", a.consume)
	r.POST("/:id/credits/purchase", a.purchase)
}

type createAccountRequest struct {
	Email       string `json:"email" binding:"required"`
	DisplayName string `json:"display_name"`
}

func (a *accountAPI) create(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	acct, err := a.ledger.RegisterAccount(c.Request.Context(), req.Email, req.DisplayName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}

func (a *accountAPI) snapshot(c *gin.Context) {
	accountID, ok := accountParam(c)
	if !ok {
		return
	}
	snap, err := a.ledger.Snapshot(c.Request.Context(), accountID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (a *accountAPI) transactions(c *gin.Context) {
	accountID, ok := accountParam(c)
	if !ok {
		return
	}
	opts := credit.ListOpts{Kind: credit.Kind(c.Query("kind"))}
	if opts.Kind != "" && !opts.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown kind"})
		return
	}
	opts.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	opts.Offset, _ = strconv.Atoi(c.Query("offset"))

	txs, err := a.ledger.Transactions(c.Request.Context(), accountID, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (a *accountAPI) check(c *gin.Context) {
	accountID, ok := accountParam(c)
	if !ok {
		return
	}
	action, ok := entitlement.ParseAction(c.Param("action"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
		return
	}
	result, err := a.ledger.Entitled(c.Request.Context(), accountID, action)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"action":    result.Action,
		"allowed":   result.Allowed,
		"used":      result.Used,
		"remaining": result.Remaining(),
		"cost":      result.Cost,
		"reason":    result.Reason,
	})
}

// consume records one unit after the action succeeded on the caller's side.
func (a *accountAPI) consume(c *gin.Context) {
	accountID, ok := accountParam(c)
	if !ok {
		return
	}
	action, ok := entitlement.ParseAction(c.Param("action"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
		return
	}
	kind, ok := action.UsageKind()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is not metered"})
		return
	}
	if err := a.ledger.RecordConsumption(c.Request.Context(), accountID, kind); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type purchaseRequest struct {
	Amount      int64  `json:"amount" binding:"required"`
	Description string `json:"description"`
}

func (a *accountAPI) purchase(c *gin.Context) {
	accountID, ok := accountParam(c)
	if !ok {
		return
	}
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}
	tx, err := a.ledger.AddCredits(c.Request.Context(), accountID, req.Amount, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func accountParam(c *gin.Context) (id.AccountID, bool) {
	accountID, err := id.ParseAccountID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return id.Nil, false
	}
	return accountID, true
}

// writeError maps engine errors to status codes without leaking details.
func writeError(c *gin.Context, err error) {
	var verr ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
	case errors.Is(err, ledger.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, ledger.ErrInsufficientCredits):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient credits"})
	case ledger.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
	default:
		c.Error(err) //nolint:errcheck // recorded on the context for logging
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
