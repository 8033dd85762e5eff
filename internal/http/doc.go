// Package http wraps net/http for the catalog client and artwork fetches.
//
// Transport errors, 429 and 5xx responses are retried with exponential
// backoff; other non-2xx responses fail immediately with a *StatusError.
package http
