// Package probe answers one question cheaply: is the collector reachable?
//
// IsReachable first asks the health endpoint for {"status":"ok"}. When that
// route is missing or unhealthy it sends HEAD to the upload endpoint and
// treats any answer other than 404 or a server error as reachable; 405 and
// 501 mean the route exists but does not speak HEAD. Transport failures and
// timeouts collapse to false. The probe never returns an error.
package probe
