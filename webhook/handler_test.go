package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	stripewebhook "github.com/stripe/stripe-go/v79/webhook"

	"github.com/rechtskompass/ledger"
	"github.com/rechtskompass/ledger/account"
	"github.com/rechtskompass/ledger/billing"
	"github.com/rechtskompass/ledger/credit"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/store/memory"
	"github.com/rechtskompass/ledger/webhook"
)

const (
	secret = "whsec_test_secret"
	app    = "rechtskompass"
)

type env struct {
	ledger *ledger.Ledger
	router *gin.Engine
	acct   *account.Account
}

func newEnv(t *testing.T, secret string) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(memory.New(), ledger.WithLogger(logger))
	t.Cleanup(func() { _ = l.Stop() })

	a, err := l.RegisterAccount(context.Background(), "erika@example.de", "Erika")
	if err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}

	h := webhook.NewHandler(billing.NewProcessor(l, app), secret, webhook.WithLogger(logger))
	r := gin.New()
	h.Register(r, "/webhooks/stripe")
	return &env{ledger: l, router: r, acct: a}
}

func eventJSON(t *testing.T, id, typ string, object map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        typ,
		"api_version": "2024-06-20",
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func (e *env) post(payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func sign(payload []byte) string {
	return stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %q", w.Body.String())
	}
	return body
}

func TestCheckoutCompletedEndToEnd(t *testing.T) {
	e := newEnv(t, secret)

	payload := eventJSON(t, "evt_checkout", "checkout.session.completed", map[string]any{
		"id":                  "cs_test_1",
		"object":              "checkout.session",
		"client_reference_id": e.acct.ID.String(),
		"customer":            "cus_42",
		"subscription":        "sub_42",
		"metadata":            map[string]any{"app": app, "plan_id": "kaempfer"},
	})

	w := e.post(payload, sign(payload))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["received"] != true || body["skipped"] != nil {
		t.Errorf("body %v", body)
	}

	snap, err := e.ledger.Snapshot(context.Background(), e.acct.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Account.PlanID != plan.Kaempfer || snap.Usage.Credits != 25 {
		t.Errorf("plan %q credits %d", snap.Account.PlanID, snap.Usage.Credits)
	}
	if snap.Account.CustomerID != "cus_42" || snap.Account.SubscriptionID != "sub_42" {
		t.Errorf("refs %+v", snap.Account)
	}

	// redelivery is acknowledged without a second grant
	if w := e.post(payload, sign(payload)); w.Code != http.StatusOK {
		t.Fatalf("redelivery status %d", w.Code)
	}
	txs, _ := e.ledger.Transactions(context.Background(), e.acct.ID, credit.ListOpts{})
	if len(txs) != 1 {
		t.Errorf("want one transaction, got %d", len(txs))
	}
}

func TestCheckoutByEmail(t *testing.T) {
	e := newEnv(t, secret)

	payload := eventJSON(t, "evt_email", "checkout.session.completed", map[string]any{
		"id":               "cs_test_2",
		"customer_details": map[string]any{"email": "Erika@Example.de"},
		"customer":         map[string]any{"id": "cus_obj", "object": "customer"},
		"metadata":         map[string]any{"app": app, "plan_id": "basis"},
	})
	if w := e.post(payload, sign(payload)); w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	snap, _ := e.ledger.Snapshot(context.Background(), e.acct.ID)
	if snap.Account.PlanID != plan.Basis || snap.Account.CustomerID != "cus_obj" {
		t.Errorf("account %+v", snap.Account)
	}
}

func TestInvoiceDiscriminatorFromSubscriptionDetails(t *testing.T) {
	e := newEnv(t, secret)
	ctx := context.Background()
	_, _ = e.ledger.AssignPlan(ctx, e.acct.ID, plan.Basis, ledger.ProviderRefs{CustomerID: "cus_7"})
	_, _ = e.ledger.SpendCredits(ctx, e.acct.ID, 9, "Brief")

	payload := eventJSON(t, "evt_inv", "invoice.paid", map[string]any{
		"id":                   "in_1",
		"object":               "invoice",
		"customer":             "cus_7",
		"billing_reason":       "subscription_cycle",
		"subscription_details": map[string]any{"metadata": map[string]any{"app": app}},
	})
	w := e.post(payload, sign(payload))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if body := decodeBody(t, w); body["skipped"] != nil {
		t.Fatalf("invoice should not be skipped: %v", body)
	}

	snap, _ := e.ledger.Snapshot(ctx, e.acct.ID)
	if snap.Usage.Credits != 10 {
		t.Errorf("renewal credits %d, want 10", snap.Usage.Credits)
	}
}

func TestFirstInvoiceDoesNotRegrant(t *testing.T) {
	e := newEnv(t, secret)
	ctx := context.Background()
	_, _ = e.ledger.AssignPlan(ctx, e.acct.ID, plan.Kaempfer, ledger.ProviderRefs{CustomerID: "cus_8", SubscriptionID: "sub_8"})
	_, _ = e.ledger.SpendCredits(ctx, e.acct.ID, 5, "Brief")

	payload := eventJSON(t, "evt_inv_create", "invoice.paid", map[string]any{
		"id":                   "in_first",
		"object":               "invoice",
		"customer":             "cus_8",
		"billing_reason":       billing.BillingReasonCreate,
		"subscription_details": map[string]any{"metadata": map[string]any{"app": app}},
	})
	if w := e.post(payload, sign(payload)); w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	snap, _ := e.ledger.Snapshot(ctx, e.acct.ID)
	if snap.Usage.Credits != 20 {
		t.Errorf("credits %d, want 20 left after spending 5", snap.Usage.Credits)
	}
	txs, _ := e.ledger.Transactions(ctx, e.acct.ID, credit.ListOpts{Kind: credit.KindSubscriptionRenewal})
	if len(txs) != 0 {
		t.Errorf("first invoice recorded %d renewal transactions", len(txs))
	}
}

func TestSubscriptionDeleted(t *testing.T) {
	e := newEnv(t, secret)
	ctx := context.Background()
	_, _ = e.ledger.AssignPlan(ctx, e.acct.ID, plan.Profi, ledger.ProviderRefs{CustomerID: "cus_9", SubscriptionID: "sub_9"})

	payload := eventJSON(t, "evt_del", "customer.subscription.deleted", map[string]any{
		"id":       "sub_9",
		"object":   "subscription",
		"customer": "cus_9",
		"metadata": map[string]any{"app": app},
	})
	if w := e.post(payload, sign(payload)); w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	snap, _ := e.ledger.Snapshot(ctx, e.acct.ID)
	if snap.Account.PlanID != plan.Free || snap.Account.SubscriptionID != "" || snap.Usage.Credits != 0 {
		t.Errorf("after deletion: %+v %+v", snap.Account, snap.Usage)
	}
}

func TestMissingDiscriminatorSkipped(t *testing.T) {
	e := newEnv(t, secret)

	payload := eventJSON(t, "evt_noapp", "checkout.session.completed", map[string]any{
		"client_reference_id": e.acct.ID.String(),
		"metadata":            map[string]any{"plan_id": "profi"},
	})
	w := e.post(payload, sign(payload))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["received"] != true || body["skipped"] != true {
		t.Errorf("body %v", body)
	}

	snap, _ := e.ledger.Snapshot(context.Background(), e.acct.ID)
	if snap.Account.PlanID != plan.Free {
		t.Errorf("skipped event changed plan to %q", snap.Account.PlanID)
	}
}

func TestUnhandledTypeAcknowledged(t *testing.T) {
	e := newEnv(t, secret)
	payload := eventJSON(t, "evt_other", "customer.updated", map[string]any{
		"id":       "cus_1",
		"metadata": map[string]any{"app": app},
	})
	w := e.post(payload, sign(payload))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
}

func TestBadSignature(t *testing.T) {
	e := newEnv(t, secret)
	payload := eventJSON(t, "evt_x", "checkout.session.completed", map[string]any{})

	tests := []struct {
		name      string
		signature string
	}{
		{"missing header", ""},
		{"garbage", "t=1,v1=deadbeef"},
		{"wrong secret", stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
			Payload:   payload,
			Secret:    "whsec_other",
			Timestamp: time.Now(),
		}).Header},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.post(payload, tt.signature)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status %d, want 400", w.Code)
			}
			if strings.Contains(w.Body.String(), "whsec") {
				t.Error("response leaks secret material")
			}
		})
	}
}

func TestMissingSecret(t *testing.T) {
	e := newEnv(t, "")
	payload := eventJSON(t, "evt_x", "checkout.session.completed", map[string]any{})
	if w := e.post(payload, sign(payload)); w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	e := newEnv(t, secret)
	req := httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d, want 405", w.Code)
	}
	if body := decodeBody(t, w); body["error"] == nil {
		t.Errorf("body %v", body)
	}
}

func TestBodyTooLarge(t *testing.T) {
	e := newEnv(t, secret)
	payload := eventJSON(t, "evt_big", "customer.updated", map[string]any{
		"blob": strings.Repeat("x", int(webhook.DefaultMaxBodyBytes)),
	})
	if w := e.post(payload, sign(payload)); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d, want 413", w.Code)
	}
}

func TestServeHTTPOnPlainMux(t *testing.T) {
	e := newEnv(t, secret)
	h := webhook.NewHandler(billing.NewProcessor(e.ledger, app), secret)

	mux := http.NewServeMux()
	mux.Handle("/hooks/stripe", h)

	payload := eventJSON(t, "evt_mux", "customer.updated", map[string]any{
		"metadata": map[string]any{"app": app},
	})
	req := httptest.NewRequest(http.MethodPost, "/hooks/stripe", bytes.NewReader(payload))
	req.Header.Set(webhook.SignatureHeader, sign(payload))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
}
