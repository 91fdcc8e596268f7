// Package config loads the collector configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the collector binary).
//
// Config fields:
//   - Host, Port        listen address (default 0.0.0.0:8000)
//   - MaxUploadBytes    largest accepted multipart body (default 32 MiB)
//   - Auth.Mode         "apikey" or "none"
//   - Auth.KeyEnv       environment variable holding the expected API key
//   - Auth.Header       HTTP header carrying the key (default "X-API-Key")
//   - Storage.Backend   "fs" (date directories under Storage.Dir) or "s3"
//   - Storage.S3        bucket, prefix, region, optional endpoint
//   - Logging           level and optional log file
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
