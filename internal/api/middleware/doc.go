// Package middleware provides Gin middleware for the API edge: CORS and
// per-identity rate limiting. Requests over budget are rejected before
// any handler or upstream work happens.
package middleware
