// Package security inspects the collector's TLS certificate. The agent logs
// the result at startup and the cert command prints it, so an expiring
// collector certificate is noticed before uploads start failing and the spool
// fills.
package security
