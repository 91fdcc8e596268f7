// Package shipper delivers one capture to the collector as a multipart POST.
//
// TryDeliver makes a single attempt and classifies the result:
//
//	200 + {"status":"ok"}      Success
//	any other HTTP answer      ServerRejected(status)
//	request exceeded timeout   TimedOut
//	other transport failure    ConnectionFailed
//
// DeliverWithRetry makes up to MaxRetries+1 attempts with a fixed RetryDelay
// between them and returns the outcome of the last one. The delay is the
// only place the shipper blocks; it ends early when ctx is cancelled.
//
// Each attempt carries a fresh X-Request-ID (ULID) so agent and collector
// logs can be joined.
package shipper
