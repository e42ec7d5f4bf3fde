// Package storage defines the persistence contracts for responses and
// conversations, plus the shared sentinel errors and tenant context helpers
// the adapters use.
//
// The StoredResponse record is the single strongly typed previous-response
// representation: the response object, its originating input-item list, and
// the raw provider messages used to produce it. Adapters live in the memory
// and postgres subpackages.
package storage
