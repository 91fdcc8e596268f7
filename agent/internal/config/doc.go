// Package config loads and watches the agent configuration file.
//
// Top-level types:
//   - Config{Agent}: the file's agent: section
//   - AgentConfig: collector_url, health_url, source_id, interval, schedule,
//     tick, image, local_copy, delivery, spool, auth, tls, control, logging,
//     notify
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none); Key(), Token() and
//     Password() resolve secrets from environment variables
//
// Load(path) applies defaults (60s interval, jpeg q85, 3 retries 5s apart,
// 10s timeout, 1000 spool files kept 24h) and validates. LoadOrDefault falls
// back to the defaults with a warning when the file is missing or invalid.
//
// Watch(ctx, path, onChange) uses fsnotify on the file's directory so the
// rename→create pattern of atomic-save editors is picked up, and calls
// onChange only with configs that pass validation.
package config
