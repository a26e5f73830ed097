package tracing

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys used across spendcap.
const (
	AttrResourceID = attribute.Key("spendcap.resource_id")
	AttrAmountSats = attribute.Key("spendcap.amount_sats")
	AttrWindow     = attribute.Key("spendcap.window")
	AttrAllowed    = attribute.Key("spendcap.allowed")
	AttrRoute      = attribute.Key("http.route")
	AttrStatusCode = attribute.Key("http.response.status_code")
)

// ResourceID returns the resource attribute. Resource IDs go on spans
// only, never on metric labels.
func ResourceID(id string) attribute.KeyValue {
	return AttrResourceID.String(id)
}

// AmountSats returns the amount attribute.
func AmountSats(sats int64) attribute.KeyValue {
	return AttrAmountSats.Int64(sats)
}

// Window returns the window attribute.
func Window(name string) attribute.KeyValue {
	return AttrWindow.String(name)
}

// Allowed returns the decision attribute.
func Allowed(allowed bool) attribute.KeyValue {
	return AttrAllowed.Bool(allowed)
}
