package payfast

import (
	"fmt"

	"github.com/storefront/checkout/internal/entity"
)

// Config carries the merchant account and the URLs the gateway redirects
// the buyer to or calls back on.
type Config struct {
	MerchantID  string
	MerchantKey string
	Passphrase  string
	ReturnURL   string
	CancelURL   string
	NotifyURL   string
}

// Builder produces signed payment-initiation payloads for the gateway.
type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// PaymentFields builds the redirect field set for an order, in the order
// the gateway mandates, with the computed signature appended last. The
// amount is formatted to two decimal places and the order id doubles as
// m_payment_id, the reference the ITN later reconciles against.
func (b *Builder) PaymentFields(o *entity.Order) []Field {
	var name, email string
	if o.GuestContact != nil {
		name = o.GuestContact.Name
		email = o.GuestContact.Email
	}

	fields := []Field{
		{Key: "merchant_id", Value: b.cfg.MerchantID},
		{Key: "merchant_key", Value: b.cfg.MerchantKey},
		{Key: "return_url", Value: b.cfg.ReturnURL},
		{Key: "cancel_url", Value: b.cfg.CancelURL},
		{Key: "notify_url", Value: b.cfg.NotifyURL},
		{Key: "name_first", Value: name},
		{Key: "email_address", Value: email},
		{Key: "m_payment_id", Value: o.ID},
		{Key: "amount", Value: o.TotalAmount.StringFixed(2)},
		{Key: "item_name", Value: fmt.Sprintf("Order %s", o.ID)},
	}

	return append(fields, Field{Key: SignatureKey, Value: Sign(fields, b.cfg.Passphrase)})
}

// Passphrase exposes the configured passphrase for ITN verification.
func (b *Builder) Passphrase() string {
	return b.cfg.Passphrase
}
