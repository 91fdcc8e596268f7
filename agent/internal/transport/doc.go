// Package transport builds the resty client shared by the probe, the
// shipper and the CLI. It applies the collector auth mode (mtls, apikey,
// bearer, basic) through a RoundTripper so every request carries the same
// credentials, and routes resty's internal logging into slog.
package transport
