// Package middleware holds the gin middleware of the API: CORS, per-client
// and global rate limits, and request ids.
package middleware
