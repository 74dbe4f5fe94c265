package webhook

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/tidwall/gjson"

	"github.com/rechtskompass/ledger/billing"
)

// ErrUndecodable is returned for verified events whose object cannot be
// read.
var ErrUndecodable = errors.New("webhook: undecodable event payload")

// appPaths are tried in order for the application discriminator. Invoices
// carry it on the subscription they belong to.
var appPaths = []string{
	"metadata.app",
	"subscription_details.metadata.app",
	"parent.subscription_details.metadata.app",
}

// Decode maps a verified provider event onto a billing event.
func Decode(evt stripe.Event) (billing.Event, error) {
	if evt.Data == nil || len(evt.Data.Raw) == 0 || !gjson.ValidBytes(evt.Data.Raw) {
		return nil, ErrUndecodable
	}
	raw := evt.Data.Raw

	meta := billing.Meta{
		ID:   evt.ID,
		Type: string(evt.Type),
		App:  lookupApp(raw),
	}

	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
		}
		return checkoutCompleted(meta, &sess), nil

	case stripe.EventTypeInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
		}
		return billing.InvoicePaid{
			Meta:           meta,
			CustomerID:     refID(raw, "customer"),
			SubscriptionID: refID(raw, "subscription"),
			BillingReason:  string(inv.BillingReason),
		}, nil

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
		}
		return billing.SubscriptionDeleted{
			Meta:           meta,
			CustomerID:     refID(raw, "customer"),
			SubscriptionID: sub.ID,
		}, nil

	default:
		return billing.Unhandled{Meta: meta}, nil
	}
}

func checkoutCompleted(meta billing.Meta, sess *stripe.CheckoutSession) billing.CheckoutCompleted {
	e := billing.CheckoutCompleted{
		Meta:    meta,
		UserRef: sess.ClientReferenceID,
		Email:   sess.CustomerEmail,
		PlanID:  sess.Metadata["plan_id"],
	}
	if e.UserRef == "" {
		e.UserRef = sess.Metadata["user_id"]
	}
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		e.Email = sess.CustomerDetails.Email
	}
	if sess.Customer != nil {
		e.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		e.SubscriptionID = sess.Subscription.ID
	}
	return e
}

func lookupApp(raw []byte) string {
	for _, path := range appPaths {
		if v := gjson.GetBytes(raw, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// refID reads a reference that is either an id string or an expanded
// object.
func refID(raw []byte, path string) string {
	v := gjson.GetBytes(raw, path)
	if v.IsObject() {
		return v.Get("id").String()
	}
	return v.String()
}
