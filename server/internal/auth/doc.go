// Package auth provides authentication middleware for the collector.
//
// APIKey(mode, header, key) wraps an http.Handler and validates the API key
// carried in the named request header.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or absent,
// the middleware answers 401 immediately. Paths listed as public (the health
// check) are never challenged so agents can probe before authenticating.
package auth
