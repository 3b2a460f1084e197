package model

// SubscriberRecord is one row of the materialized subscriber view. The
// set is recomputed in full on every reconciliation pass; rows are never
// mutated individually.
//
// Fields:
//
//	CustomerID – billing provider's customer id.
//	Email      – customer email, the join key to the identity provider.
//	Status     – subscription status as reported by the billing provider.
//	UID        – resolved identity uid; empty when the email is unknown
//	             to the identity provider.
type SubscriberRecord struct {
	CustomerID string
	Email      string
	Status     string
	UID        string
}
