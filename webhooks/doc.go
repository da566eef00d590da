// Package webhooks implements the inbound notification pipeline: raw body
// capture, signature verification, and idempotent dispatch to registered
// event handlers. Verification is strictly ordered before any ledger or
// store write; a request that cannot be authenticated leaves no trace.
package webhooks
