// Package notifier delivers task messages through a single Transport.
//
// Send is synchronous: it waits on a token-bucket rate limit, calls the
// transport, and retries failed attempts with jittered exponential backoff up
// to RetryMax times. Transports steer the policy by wrapping their errors with
// NoRetry (permanent failures) or RetryAfter (server supplied delay).
//
// # History
//
// The service keeps a small in-memory history of recent deliveries for
// operator visibility.
package notifier
