// Package collector implements the collector's HTTP surface.
//
//	GET  /health   200 {"status":"ok","message":"collector is running"}
//	POST /upload   multipart: file, timestamp, source
//	               200 {"status":"ok","path":...}
//	               400 {"error":"missing file"} | {"error":"empty filename"}
//	               413 {"error":"upload too large"}
//	               500 {"error":"internal server error"}
//	GET  /metrics  Prometheus exposition
//
// Uploads are named <timestamp>_<source><ext>. The timestamp and source form
// fields are reduced to a safe character set first; a missing timestamp
// becomes the receive time, a missing source becomes "client" and a missing
// extension becomes ".jpg".
package collector
