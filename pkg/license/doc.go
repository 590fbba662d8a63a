// Package license implements the client side of keygate's entitlement
// checks: a resilient HTTP transport that retries transient failures with
// exponential backoff, a typed validation client, and an evaluator that
// caches validation results and honors a bounded offline grace period.
//
// The evaluator is what a desktop client embeds at startup. It asks the
// remote authority whether the user is entitled, trusts a recent answer for
// a configurable interval, and keeps honoring the last known valid answer
// for a bounded grace window when the network is unreachable.
package license
