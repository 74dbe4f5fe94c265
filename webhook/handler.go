// Package webhook is the HTTP endpoint the payment provider posts events
// to. It verifies the signature, decodes the event and hands it to a
// billing.Processor.
//
// Responses:
//
//	405  method other than POST
//	413  body larger than the limit
//	400  signature verification failed
//	500  secret not configured, or a verified payload could not be decoded
//	200  {"received":true}, plus "skipped":true when the event had no app
//	     discriminator
//
// Processing failures after verification are logged and still answered
// with 200; internal error text is never returned.
package webhook

import (
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	stripewebhook "github.com/stripe/stripe-go/v79/webhook"

	"github.com/rechtskompass/ledger/billing"
)

// DefaultMaxBodyBytes bounds the request body.
const DefaultMaxBodyBytes int64 = 64 << 10

// SignatureHeader carries the provider signature.
const SignatureHeader = "Stripe-Signature"

// Handler serves the webhook endpoint.
type Handler struct {
	processor *billing.Processor
	secret    string
	maxBody   int64
	logger    *slog.Logger

	once   sync.Once
	engine *gin.Engine
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// NewHandler returns a handler verifying signatures against secret.
func NewHandler(p *billing.Processor, secret string, opts ...Option) *Handler {
	h := &Handler{
		processor: p,
		secret:    secret,
		maxBody:   DefaultMaxBodyBytes,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the handler on path for every method so that non-POST
// requests get a 405 instead of a 404.
func (h *Handler) Register(r gin.IRoutes, path string) {
	r.Any(path, h.Handle)
}

// ServeHTTP lets the handler be mounted on a plain net/http mux. Every
// path reaching it is treated as the webhook endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.once.Do(func() {
		h.engine = gin.New()
		h.engine.Use(gin.Recovery())
		h.engine.Any("/*path", h.Handle)
	})
	h.engine.ServeHTTP(w, r)
}

// Handle is the gin handler.
func (h *Handler) Handle(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
		return
	}

	if h.secret == "" {
		h.logger.Error("webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBody+1))
	if err != nil {
		h.logger.Warn("webhook read failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if int64(len(body)) > h.maxBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	evt, err := stripewebhook.ConstructEventWithOptions(
		body,
		c.GetHeader(SignatureHeader),
		h.secret,
		stripewebhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	ev, err := Decode(evt)
	if err != nil {
		h.logger.Error("webhook decode failed",
			"event_id", evt.ID,
			"event_type", string(evt.Type),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	res := h.processor.Process(c.Request.Context(), ev)
	if res.Outcome == billing.OutcomeSkipped {
		c.JSON(http.StatusOK, gin.H{"received": true, "skipped": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
