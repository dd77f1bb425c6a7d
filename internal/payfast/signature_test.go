package payfast

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/checkout/internal/entity"
)

var paymentFields = []Field{
	{Key: "merchant_id", Value: "10000100"},
	{Key: "merchant_key", Value: "46f0cd694581a"},
	{Key: "return_url", Value: "https://example.com/return"},
	{Key: "cancel_url", Value: "https://example.com/cancel"},
	{Key: "notify_url", Value: "https://example.com/notify"},
	{Key: "name_first", Value: ""},
	{Key: "email_address", Value: "buyer@example.com"},
	{Key: "m_payment_id", Value: "ORDER-1001"},
	{Key: "amount", Value: "621.00"},
	{Key: "item_name", Value: "Order ORDER-1001"},
}

func TestSign(t *testing.T) {
	// Empty values are skipped, URLs are percent-encoded, spaces become '+'.
	assert.Equal(t, "96ba37dc270bd9ffcb87855c35e1b04b", Sign(paymentFields, ""))
}

func TestSignWithPassphrase(t *testing.T) {
	assert.Equal(t, "c03ceb8d3a151db68a8c6c2e78c3ccd3", Sign(paymentFields, "secret passphrase"))
}

func TestSignOrderMatters(t *testing.T) {
	reversed := make([]Field, len(paymentFields))
	for i, f := range paymentFields {
		reversed[len(paymentFields)-1-i] = f
	}
	assert.NotEqual(t, Sign(paymentFields, ""), Sign(reversed, ""))
}

func TestVerify(t *testing.T) {
	fields := append([]Field{}, paymentFields...)
	fields = append(fields, Field{Key: SignatureKey, Value: Sign(paymentFields, "secret passphrase")})

	sig, ok := Lookup(fields, SignatureKey)
	require.True(t, ok)

	assert.True(t, Verify(fields, sig, "secret passphrase"))
	assert.False(t, Verify(fields, sig, "wrong passphrase"))
	assert.False(t, Verify(fields, "deadbeef", "secret passphrase"))

	// Tampering with any field after signing must fail verification.
	tampered := append([]Field{}, fields...)
	tampered[8] = Field{Key: "amount", Value: "1.00"}
	assert.False(t, Verify(tampered, sig, "secret passphrase"))
}

func TestParseFormPreservesOrder(t *testing.T) {
	raw := "m_payment_id=ORDER-1001&payment_status=COMPLETE&amount_gross=621.00&email_address=buyer%40example.com&item_name=Order+ORDER-1001"

	fields, err := ParseForm(raw)
	require.NoError(t, err)
	require.Len(t, fields, 5)

	assert.Equal(t, Field{Key: "m_payment_id", Value: "ORDER-1001"}, fields[0])
	assert.Equal(t, Field{Key: "payment_status", Value: "COMPLETE"}, fields[1])
	assert.Equal(t, Field{Key: "amount_gross", Value: "621.00"}, fields[2])
	assert.Equal(t, Field{Key: "email_address", Value: "buyer@example.com"}, fields[3])
	assert.Equal(t, Field{Key: "item_name", Value: "Order ORDER-1001"}, fields[4])
}

func TestParseFormRejectsBadEncoding(t *testing.T) {
	_, err := ParseForm("amount=%zz")
	assert.Error(t, err)
}

func TestSignVerifyRoundTripThroughForm(t *testing.T) {
	// A signed payload re-parsed from its wire form must verify: this is
	// exactly what the ITN path does with the gateway's callback body.
	raw := "m_payment_id=ORDER-1001&pf_payment_id=1089250&payment_status=COMPLETE&amount_gross=621.00&email_address=buyer%40example.com&signature=0505c80d5dcc97e43579162c263ed1f6"

	fields, err := ParseForm(raw)
	require.NoError(t, err)

	sig, ok := Lookup(fields, SignatureKey)
	require.True(t, ok)
	assert.True(t, Verify(fields, sig, "secret passphrase"))
}

func TestPaymentFields(t *testing.T) {
	b := NewBuilder(Config{
		MerchantID:  "10000100",
		MerchantKey: "46f0cd694581a",
		ReturnURL:   "https://example.com/return",
		CancelURL:   "https://example.com/cancel",
		NotifyURL:   "https://example.com/notify",
	})

	order := &entity.Order{
		ID:           "ORDER-1001",
		GuestContact: &entity.GuestContact{Email: "buyer@example.com"},
		TotalAmount:  decimal.RequireFromString("621"),
	}

	fields := b.PaymentFields(order)
	last := fields[len(fields)-1]
	assert.Equal(t, SignatureKey, last.Key)
	assert.Equal(t, "96ba37dc270bd9ffcb87855c35e1b04b", last.Value)

	amount, ok := Lookup(fields, "amount")
	require.True(t, ok)
	assert.Equal(t, "621.00", amount)

	ref, ok := Lookup(fields, "m_payment_id")
	require.True(t, ok)
	assert.Equal(t, "ORDER-1001", ref)

	assert.True(t, Verify(fields, last.Value, ""))
}
