// Package payfast implements the payment gateway's signed form protocol:
// building the redirect payload for payment initiation and verifying the
// signature on asynchronous ITN callbacks.
//
// The gateway mandates an MD5 digest over the canonical field string. That
// is the external protocol's contract, not a local design choice; changing
// the digest would break interoperability.
package payfast

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Field is a single key/value pair. Fields are carried as an ordered slice
// because the signature depends on field order: generated payloads use the
// gateway-mandated order and ITN verification uses the order the fields
// arrived in.
type Field struct {
	Key   string
	Value string
}

// SignatureKey is the reserved field name carrying the signature itself.
const SignatureKey = "signature"

// Sign computes the hex MD5 signature over the canonical form of fields.
// Canonical form: fields in the given order, empty values skipped, values
// URL-encoded with spaces as '+', joined as "key=value&" with the trailing
// '&' stripped, then "&passphrase=<encoded>" appended when a passphrase is
// configured.
func Sign(fields []Field, passphrase string) string {
	var b strings.Builder
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
		b.WriteByte('&')
	}
	canonical := strings.TrimSuffix(b.String(), "&")
	if passphrase != "" {
		canonical += "&passphrase=" + url.QueryEscape(passphrase)
	}

	sum := md5.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the signature over fields, excluding the signature field
// itself, and compares it to the provided value in constant time.
func Verify(fields []Field, provided, passphrase string) bool {
	input := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Key == SignatureKey {
			continue
		}
		input = append(input, f)
	}
	expected := Sign(input, passphrase)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(provided))) == 1
}

// ParseForm decodes a raw application/x-www-form-urlencoded body into an
// ordered field slice. The stdlib's url.ParseQuery returns a map and loses
// the order the gateway sent, which the signature depends on, so the body
// is walked pair by pair instead.
func ParseForm(raw string) ([]Field, error) {
	var fields []Field
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("failed to decode field key %q: %w", key, err)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode field %q: %w", k, err)
		}
		fields = append(fields, Field{Key: k, Value: v})
	}
	return fields, nil
}

// Lookup returns the first value for key in fields.
func Lookup(fields []Field, key string) (string, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}
